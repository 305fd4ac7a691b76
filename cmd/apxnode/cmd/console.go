package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/connection"
	"github.com/apx-embedded/goapx/internal/runtime"
)

var consoleCommands = []string{"info", "read", "write", "log", "help", "quit"}

// runConsole drives the interactive port console until quit or EOF.
func runConsole(client *connection.ClientConnection, instances []*runtime.NodeInstance) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var res []string
		for _, c := range consoleCommands {
			if strings.HasPrefix(c, prefix) {
				res = append(res, c)
			}
		}
		return res
	})

	for {
		input, err := line.Prompt("apx> ")
		if err != nil {
			// ctrl-c or EOF ends the console
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		fields := strings.Fields(input)
		switch fields[0] {
		case "quit", "exit":
			return nil
		case "help":
			fmt.Println("commands: info | read <node>/<port> | write <node>/<port> <value> | log | quit")
		case "info":
			printInfo(instances)
		case "log":
			if diagnostics == nil {
				fmt.Println("no diagnostics buffer")
				continue
			}
			for _, entry := range diagnostics.Dump() {
				fmt.Println(entry)
			}
		case "read":
			if len(fields) != 2 {
				fmt.Println("usage: read <node>/<port>")
				continue
			}
			doRead(client, instances, fields[1])
		case "write":
			if len(fields) != 3 {
				fmt.Println("usage: write <node>/<port> <value>")
				continue
			}
			doWrite(client, instances, fields[1], fields[2])
		default:
			fmt.Printf("unknown command: %s\n", fields[0])
		}
	}
}

func printInfo(instances []*runtime.NodeInstance) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Node", "Port", "Side", "Signature", "Offset", "Size"})
	for _, instance := range instances {
		for _, port := range instance.ProvidePorts() {
			sig, _ := port.PortSignature()
			table.Append([]string{
				instance.Name(), port.Name(), "provide", sig,
				strconv.Itoa(int(port.DataOffset())), strconv.Itoa(int(port.DataSize())),
			})
		}
		for _, port := range instance.RequirePorts() {
			sig, _ := port.PortSignature()
			table.Append([]string{
				instance.Name(), port.Name(), "require", sig,
				strconv.Itoa(int(port.DataOffset())), strconv.Itoa(int(port.DataSize())),
			})
		}
	}
	table.Render()
}

func findPort(instances []*runtime.NodeInstance, ref string) (*runtime.NodeInstance, *runtime.PortInstance) {
	i := strings.IndexByte(ref, '/')
	if i < 0 {
		// unqualified name: search all nodes
		for _, instance := range instances {
			if port := instance.FindPort(ref); port != nil {
				return instance, port
			}
		}
		return nil, nil
	}
	for _, instance := range instances {
		if instance.Name() == ref[:i] {
			return instance, instance.FindPort(ref[i+1:])
		}
	}
	return nil, nil
}

func doRead(client *connection.ClientConnection, instances []*runtime.NodeInstance, ref string) {
	instance, port := findPort(instances, ref)
	if port == nil {
		fmt.Printf("no such port: %s\n", ref)
		return
	}
	var data []byte
	var err error
	if port.PortType() == apx.RequirePort {
		data, err = client.ReadRequirePort(instance, port.ID())
	} else {
		data, err = instance.NodeData().ReadProvidePortData(port.DataOffset(), port.DataSize())
	}
	if err != nil {
		fmt.Printf("read failed: %v\n", err)
		return
	}
	fmt.Printf("%s = %# x\n", ref, data)
}

func doWrite(client *connection.ClientConnection, instances []*runtime.NodeInstance, ref, value string) {
	instance, port := findPort(instances, ref)
	if port == nil {
		fmt.Printf("no such port: %s\n", ref)
		return
	}
	if port.PortType() != apx.ProvidePort {
		fmt.Printf("%s is not a provide port\n", ref)
		return
	}
	number, err := strconv.ParseUint(strings.TrimPrefix(value, "0x"), numberBase(value), 64)
	if err != nil {
		fmt.Printf("invalid value: %s\n", value)
		return
	}
	data := make([]byte, port.DataSize())
	for i := range data {
		data[i] = byte(number >> (8 * i))
	}
	if err := client.WriteProvidePort(instance, port.ID(), data); err != nil {
		fmt.Printf("write failed: %v\n", err)
	}
}

func numberBase(value string) int {
	if strings.HasPrefix(value, "0x") {
		return 16
	}
	return 10
}

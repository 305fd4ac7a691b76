package cmd

import (
	"io/ioutil"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	log "github.com/apx-embedded/goapx/pkg/apxlog"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/connection"
	"github.com/apx-embedded/goapx/internal/runtime"
)

var rootCmd = &cobra.Command{
	Use:   "apxnode [definition.apx ...]",
	Short: "Connect apx nodes to a router",
	Long: `apxnode parses one or more node definition files, connects to an
apxrouter and publishes the nodes. An interactive console allows reading
and writing port values.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLevel(viper.GetString("log.level"))
		if err != nil {
			return err
		}
		log.AddLogger("stderr", os.Stderr, level, true)
		// the console's log command reads recent diagnostics back from
		// this ring regardless of the stderr level
		diagnostics = log.AddRing("diagnostics", 256, log.DEBUG)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		var stream net.Conn
		var err error
		if socket := viper.GetString("unix-socket"); socket != "" {
			stream, err = net.Dial("unix", socket)
		} else {
			stream, err = net.Dial("tcp", viper.GetString("connect"))
		}
		if err != nil {
			return err
		}

		client := connection.NewClientConnection(stream, &consoleEvents{})
		defer client.Close()

		instances := make([]*runtime.NodeInstance, 0, len(args))
		for _, path := range args {
			text, err := ioutil.ReadFile(path)
			if err != nil {
				return err
			}
			instance, err := client.BuildNode(string(text))
			if err != nil {
				return err
			}
			log.Info("loaded node %s from %s", instance.Name(), path)
			instances = append(instances, instance)
		}

		if err := client.Start(); err != nil {
			return err
		}

		if viper.GetBool("no-console") {
			select {}
		}
		return runConsole(client, instances)
	},
	SilenceUsage: true,
}

// diagnostics buffers recent log lines for the console's log command.
var diagnostics *log.Ring

// consoleEvents logs connection lifecycle and require-port updates.
type consoleEvents struct {
	connection.NopEvents
}

func (e *consoleEvents) Connected() {
	log.Info("connected to router")
}

func (e *consoleEvents) Disconnected(err error) {
	log.Warn("disconnected: %v", err)
}

func (e *consoleEvents) RequirePortsWritten(instance *runtime.NodeInstance, portIDs []apx.PortID) {
	for _, id := range portIDs {
		if port := instance.RequirePort(id); port != nil {
			log.Debug("require port updated: %s/%s", instance.Name(), port.Name())
		}
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("connect", "localhost:5000", "router TCP address")
	rootCmd.PersistentFlags().String("unix-socket", "", "router Unix socket path")
	rootCmd.PersistentFlags().Bool("no-console", false, "run without the interactive console")
	rootCmd.PersistentFlags().String("log.level", "warn", "log level: [debug, info, warn, error, critical]")

	viper.BindPFlags(rootCmd.PersistentFlags())
	viper.SetEnvPrefix("apx")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

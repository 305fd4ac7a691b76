package parser

import (
	"github.com/apx-embedded/goapx/internal/apx"
)

// Node is the parse-tree container for one node definition.
type Node struct {
	Name         string
	DataTypes    []*DataType
	ProvidePorts []*Port
	RequirePorts []*Port

	TypeMap map[string]*DataType
	PortMap map[string]*Port

	IsFinalized bool
}

// NewNode returns an empty node.
func NewNode(name string) *Node {
	return &Node{
		Name:    name,
		TypeMap: make(map[string]*DataType),
		PortMap: make(map[string]*Port),
	}
}

// AppendDataType adds a type declaration. Duplicate names are rejected.
func (n *Node) AppendDataType(dataType *DataType) error {
	if _, exists := n.TypeMap[dataType.Name]; exists {
		return apx.Errorf(apx.ErrParse, "duplicate type name %q", dataType.Name)
	}
	n.DataTypes = append(n.DataTypes, dataType)
	n.TypeMap[dataType.Name] = dataType
	return nil
}

// AppendPort adds a port declaration. Port names share one namespace across
// both sides; duplicates are rejected.
func (n *Node) AppendPort(port *Port) error {
	if _, exists := n.PortMap[port.Name]; exists {
		return apx.Errorf(apx.ErrParse, "duplicate port name %q", port.Name)
	}
	if port.Type == apx.ProvidePort {
		n.ProvidePorts = append(n.ProvidePorts, port)
	} else {
		n.RequirePorts = append(n.RequirePorts, port)
	}
	n.PortMap[port.Name] = port
	return nil
}

// NumProvidePorts returns the number of provide ports.
func (n *Node) NumProvidePorts() int { return len(n.ProvidePorts) }

// NumRequirePorts returns the number of require ports.
func (n *Node) NumRequirePorts() int { return len(n.RequirePorts) }

// ProvidePort returns the provide port with the given id, or nil.
func (n *Node) ProvidePort(id apx.PortID) *Port {
	if int(id) < len(n.ProvidePorts) {
		return n.ProvidePorts[id]
	}
	return nil
}

// RequirePort returns the require port with the given id, or nil.
func (n *Node) RequirePort(id apx.PortID) *Port {
	if int(id) < len(n.RequirePorts) {
		return n.RequirePorts[id]
	}
	return nil
}

// FindPort returns the port with the given name, or nil.
func (n *Node) FindPort(name string) *Port {
	return n.PortMap[name]
}

// FindDataType returns the type with the given name, or nil.
func (n *Node) FindDataType(name string) *DataType {
	return n.TypeMap[name]
}

// Finalize assigns ids, resolves all type references, flattens every port's
// element and derives each port's proper init value. Provide and require
// ports are numbered independently from 0.
func (n *Node) Finalize() error {
	if n.IsFinalized {
		return nil
	}
	for i, dataType := range n.DataTypes {
		dataType.ID = apx.TypeID(i)
	}
	for i, port := range n.ProvidePorts {
		port.ID = apx.PortID(i)
	}
	for i, port := range n.RequirePorts {
		port.ID = apx.PortID(i)
	}

	for _, dataType := range n.DataTypes {
		if err := dataType.DeriveTypes(n.DataTypes, n.TypeMap); err != nil {
			return err
		}
	}
	for _, dataType := range n.DataTypes {
		if dataType.HasAttributes() {
			derived, err := dataType.Derived()
			if err != nil {
				return err
			}
			if err := dataType.Attributes.CheckRanges(derived); err != nil {
				return err
			}
		}
	}

	for _, port := range n.allPorts() {
		if err := port.DeriveTypes(n.DataTypes, n.TypeMap); err != nil {
			return err
		}
		if err := port.Flatten(); err != nil {
			return err
		}
		if port.Attributes == nil {
			port.Attributes = &PortAttributes{}
		}
		if err := port.DeriveProperInitValue(); err != nil {
			return err
		}
	}

	n.IsFinalized = true
	return nil
}

func (n *Node) allPorts() []*Port {
	ports := make([]*Port, 0, len(n.ProvidePorts)+len(n.RequirePorts))
	ports = append(ports, n.ProvidePorts...)
	return append(ports, n.RequirePorts...)
}

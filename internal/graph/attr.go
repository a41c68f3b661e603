package graph

// Typed access to node attributes. EPContext models store their whole
// payload and bookkeeping in node attributes, so this is the boundary
// between the loosely-typed attribute bag and the typed records built on
// top of it.

// AttrInt returns the named INT attribute, or def when absent.
func (n *NodeProto) AttrInt(name string, def int64) int64 {
	if a := n.attr(name); a != nil {
		return a.I
	}
	return def
}

// AttrString returns the named STRING attribute, or def when absent.
func (n *NodeProto) AttrString(name, def string) string {
	if a := n.attr(name); a != nil {
		return string(a.S)
	}
	return def
}

// AttrBytes returns the named STRING attribute as raw bytes, or nil.
func (n *NodeProto) AttrBytes(name string) []byte {
	if a := n.attr(name); a != nil {
		return a.S
	}
	return nil
}

// HasAttr reports whether the node carries the named attribute.
func (n *NodeProto) HasAttr(name string) bool {
	return n.attr(name) != nil
}

// SetAttrInt sets the named INT attribute, replacing any existing value.
func (n *NodeProto) SetAttrInt(name string, v int64) {
	n.setAttr(AttributeProto{Name: name, Type: AttrInt, I: v})
}

// SetAttrString sets the named STRING attribute, replacing any existing
// value.
func (n *NodeProto) SetAttrString(name, v string) {
	n.setAttr(AttributeProto{Name: name, Type: AttrString, S: []byte(v)})
}

// SetAttrBytes sets the named STRING attribute from raw bytes, replacing
// any existing value.
func (n *NodeProto) SetAttrBytes(name string, v []byte) {
	n.setAttr(AttributeProto{Name: name, Type: AttrString, S: v})
}

func (n *NodeProto) attr(name string) *AttributeProto {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			return &n.Attributes[i]
		}
	}
	return nil
}

func (n *NodeProto) setAttr(a AttributeProto) {
	if existing := n.attr(a.Name); existing != nil {
		*existing = a
		return
	}
	n.Attributes = append(n.Attributes, a)
}

// AddNode appends a node to the graph and returns a pointer to it. The
// pointer stays valid until the next AddNode call.
func (g *GraphProto) AddNode(name, opType, domain, docString string, inputs, outputs []string) *NodeProto {
	g.Nodes = append(g.Nodes, NodeProto{
		Name:      name,
		OpType:    opType,
		Domain:    domain,
		DocString: docString,
		Inputs:    inputs,
		Outputs:   outputs,
	})
	return &g.Nodes[len(g.Nodes)-1]
}

// GetOrCreateValueInfo returns the declared tensor with the given name,
// creating it with the supplied element type and shape when missing.
func (g *GraphProto) GetOrCreateValueInfo(name string, elemType int32, shape []int64) *ValueInfoProto {
	for i := range g.ValueInfo {
		if g.ValueInfo[i].Name == name {
			return &g.ValueInfo[i]
		}
	}

	dims := make([]DimensionProto, len(shape))
	for i, d := range shape {
		dims[i] = DimensionProto{DimValue: d}
	}
	g.ValueInfo = append(g.ValueInfo, ValueInfoProto{
		Name: name,
		Type: &TypeProto{
			TensorType: &TensorTypeProto{
				ElemType: elemType,
				Shape:    &TensorShapeProto{Dims: dims},
			},
		},
	})
	return &g.ValueInfo[len(g.ValueInfo)-1]
}

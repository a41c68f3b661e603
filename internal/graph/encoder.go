package graph

import (
	"encoding/binary"
	"math"
)

// Marshal serializes a model to the protobuf wire format. It is the
// inverse of Parse: Parse(Marshal(m)) reproduces m for every field this
// package decodes.
func Marshal(m *ModelProto) []byte {
	e := &encoder{}
	if m.IRVersion != 0 {
		e.int64Field(1, m.IRVersion)
	}
	e.stringField(2, m.ProducerName)
	e.stringField(3, m.ProducerVersion)
	e.stringField(4, m.Domain)
	if m.ModelVersion != 0 {
		e.int64Field(5, m.ModelVersion)
	}
	e.stringField(6, m.DocString)
	if m.Graph != nil {
		e.embedded(7, m.Graph.encode)
	}
	for i := range m.OpsetImport {
		e.embedded(8, m.OpsetImport[i].encode)
	}
	for i := range m.MetadataProps {
		e.embedded(14, m.MetadataProps[i].encode)
	}
	return e.buf
}

type encoder struct {
	buf []byte
}

func (g *GraphProto) encode(e *encoder) {
	for i := range g.Nodes {
		e.embedded(1, g.Nodes[i].encode)
	}
	e.stringField(2, g.Name)
	e.stringField(10, g.DocString)
	for i := range g.Inputs {
		e.embedded(11, g.Inputs[i].encode)
	}
	for i := range g.Outputs {
		e.embedded(12, g.Outputs[i].encode)
	}
	for i := range g.ValueInfo {
		e.embedded(13, g.ValueInfo[i].encode)
	}
}

func (n *NodeProto) encode(e *encoder) {
	for _, in := range n.Inputs {
		e.stringField(1, in)
	}
	for _, out := range n.Outputs {
		e.stringField(2, out)
	}
	e.stringField(3, n.Name)
	e.stringField(4, n.OpType)
	for i := range n.Attributes {
		e.embedded(5, n.Attributes[i].encode)
	}
	e.stringField(6, n.DocString)
	e.stringField(7, n.Domain)
}

func (a *AttributeProto) encode(e *encoder) {
	e.stringField(1, a.Name)
	if a.F != 0 {
		e.float32Field(2, a.F)
	}
	if a.I != 0 {
		e.int64Field(3, a.I)
	}
	if a.S != nil {
		e.bytesField(4, a.S)
	}
	if len(a.Floats) > 0 {
		e.packedFloats(7, a.Floats)
	}
	if len(a.Ints) > 0 {
		e.packedInts(8, a.Ints)
	}
	for _, s := range a.Strings {
		e.bytesField(9, s)
	}
	if a.Type != 0 {
		e.int64Field(20, int64(a.Type))
	}
}

func (v *ValueInfoProto) encode(e *encoder) {
	e.stringField(1, v.Name)
	if v.Type != nil {
		e.embedded(2, v.Type.encode)
	}
}

func (t *TypeProto) encode(e *encoder) {
	if t.TensorType != nil {
		e.embedded(1, t.TensorType.encode)
	}
}

func (t *TensorTypeProto) encode(e *encoder) {
	if t.ElemType != 0 {
		e.int64Field(1, int64(t.ElemType))
	}
	if t.Shape != nil {
		e.embedded(2, t.Shape.encode)
	}
}

func (s *TensorShapeProto) encode(e *encoder) {
	for i := range s.Dims {
		e.embedded(1, s.Dims[i].encode)
	}
}

func (dim *DimensionProto) encode(e *encoder) {
	if dim.DimValue != 0 {
		e.int64Field(1, dim.DimValue)
	}
	e.stringField(2, dim.DimParam)
}

func (o *OperatorSetID) encode(e *encoder) {
	e.stringField(1, o.Domain)
	if o.Version != 0 {
		e.int64Field(2, o.Version)
	}
}

func (entry *StringStringEntry) encode(e *encoder) {
	e.stringField(1, entry.Key)
	e.stringField(2, entry.Value)
}

func (e *encoder) tag(field, wire int) {
	e.varint(uint64(field)<<3 | uint64(wire)) //nolint:gosec // G115: field numbers are small constants.
}

func (e *encoder) varint(v uint64) {
	e.buf = binary.AppendUvarint(e.buf, v)
}

func (e *encoder) int64Field(field int, v int64) {
	e.tag(field, wireVarint)
	e.varint(uint64(v)) //nolint:gosec // G115: two's-complement round trip with the decoder.
}

func (e *encoder) bytesField(field int, b []byte) {
	e.tag(field, wireBytes)
	e.varint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// stringField writes a string field, omitting it when empty (proto3
// default-value semantics).
func (e *encoder) stringField(field int, s string) {
	if s == "" {
		return
	}
	e.bytesField(field, []byte(s))
}

func (e *encoder) float32Field(field int, v float32) {
	e.tag(field, wire32Bit)
	e.buf = binary.LittleEndian.AppendUint32(e.buf, math.Float32bits(v))
}

func (e *encoder) packedFloats(field int, vs []float32) {
	e.tag(field, wireBytes)
	e.varint(uint64(len(vs) * 4))
	for _, v := range vs {
		e.buf = binary.LittleEndian.AppendUint32(e.buf, math.Float32bits(v))
	}
}

func (e *encoder) packedInts(field int, vs []int64) {
	var sub encoder
	for _, v := range vs {
		sub.varint(uint64(v)) //nolint:gosec // G115: two's-complement round trip.
	}
	e.bytesField(field, sub.buf)
}

// embedded writes a length-delimited submessage encoded by fn.
func (e *encoder) embedded(field int, fn func(*encoder)) {
	var sub encoder
	fn(&sub)
	e.bytesField(field, sub.buf)
}

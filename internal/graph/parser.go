package graph

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// Protobuf wire types.
const (
	wireVarint = 0
	wire64Bit  = 1
	wireBytes  = 2
	wire32Bit  = 5
)

// ParseFile parses an ONNX model from a file.
//
//nolint:gosec // G304: the model path is user-supplied by design.
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes.
func Parse(data []byte) (*ModelProto, error) {
	d := &decoder{buf: data}
	model := &ModelProto{}
	if err := d.model(model); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return model, nil
}

// decoder walks the protobuf wire format.
type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) model(m *ModelProto) error {
	return d.fields(func(field, wire int) error {
		switch field {
		case 1: // ir_version
			return d.int64To(&m.IRVersion)
		case 2: // producer_name
			return d.stringTo(&m.ProducerName)
		case 3: // producer_version
			return d.stringTo(&m.ProducerVersion)
		case 4: // domain
			return d.stringTo(&m.Domain)
		case 5: // model_version
			return d.int64To(&m.ModelVersion)
		case 6: // doc_string
			return d.stringTo(&m.DocString)
		case 7: // graph
			m.Graph = &GraphProto{}
			return d.embedded(m.Graph.decode)
		case 8: // opset_import
			var opset OperatorSetID
			if err := d.embedded(opset.decode); err != nil {
				return err
			}
			m.OpsetImport = append(m.OpsetImport, opset)
			return nil
		case 14: // metadata_props
			var entry StringStringEntry
			if err := d.embedded(entry.decode); err != nil {
				return err
			}
			m.MetadataProps = append(m.MetadataProps, entry)
			return nil
		default:
			return d.skip(wire)
		}
	})
}

func (g *GraphProto) decode(d *decoder) error {
	return d.fields(func(field, wire int) error {
		switch field {
		case 1: // node
			var node NodeProto
			if err := d.embedded(node.decode); err != nil {
				return err
			}
			g.Nodes = append(g.Nodes, node)
			return nil
		case 2: // name
			return d.stringTo(&g.Name)
		case 10: // doc_string
			return d.stringTo(&g.DocString)
		case 11: // input
			return d.valueInfoTo(&g.Inputs)
		case 12: // output
			return d.valueInfoTo(&g.Outputs)
		case 13: // value_info
			return d.valueInfoTo(&g.ValueInfo)
		default:
			return d.skip(wire)
		}
	})
}

func (n *NodeProto) decode(d *decoder) error {
	return d.fields(func(field, wire int) error {
		switch field {
		case 1: // input
			return d.stringListTo(&n.Inputs)
		case 2: // output
			return d.stringListTo(&n.Outputs)
		case 3: // name
			return d.stringTo(&n.Name)
		case 4: // op_type
			return d.stringTo(&n.OpType)
		case 5: // attribute
			var attr AttributeProto
			if err := d.embedded(attr.decode); err != nil {
				return err
			}
			n.Attributes = append(n.Attributes, attr)
			return nil
		case 6: // doc_string
			return d.stringTo(&n.DocString)
		case 7: // domain
			return d.stringTo(&n.Domain)
		default:
			return d.skip(wire)
		}
	})
}

func (a *AttributeProto) decode(d *decoder) error {
	return d.fields(func(field, wire int) error {
		switch field {
		case 1: // name
			return d.stringTo(&a.Name)
		case 2: // f
			v, err := d.float32()
			a.F = v
			return err
		case 3: // i
			return d.int64To(&a.I)
		case 4: // s
			b, err := d.bytes()
			a.S = b
			return err
		case 7: // floats (packed)
			return d.packedFloats(&a.Floats)
		case 8: // ints (packed)
			return d.packedInts(&a.Ints)
		case 9: // strings
			b, err := d.bytes()
			if err != nil {
				return err
			}
			a.Strings = append(a.Strings, b)
			return nil
		case 20: // type
			v, err := d.varint()
			a.Type = int32(v) //nolint:gosec // G115: attribute type enum fits in int32.
			return err
		default:
			return d.skip(wire)
		}
	})
}

func (v *ValueInfoProto) decode(d *decoder) error {
	return d.fields(func(field, wire int) error {
		switch field {
		case 1: // name
			return d.stringTo(&v.Name)
		case 2: // type
			v.Type = &TypeProto{}
			return d.embedded(v.Type.decode)
		default:
			return d.skip(wire)
		}
	})
}

func (t *TypeProto) decode(d *decoder) error {
	return d.fields(func(field, wire int) error {
		if field == 1 { // tensor_type
			t.TensorType = &TensorTypeProto{}
			return d.embedded(t.TensorType.decode)
		}
		return d.skip(wire)
	})
}

func (t *TensorTypeProto) decode(d *decoder) error {
	return d.fields(func(field, wire int) error {
		switch field {
		case 1: // elem_type
			v, err := d.varint()
			t.ElemType = int32(v) //nolint:gosec // G115: element type enum fits in int32.
			return err
		case 2: // shape
			t.Shape = &TensorShapeProto{}
			return d.embedded(t.Shape.decode)
		default:
			return d.skip(wire)
		}
	})
}

func (s *TensorShapeProto) decode(d *decoder) error {
	return d.fields(func(field, wire int) error {
		if field == 1 { // dim
			var dim DimensionProto
			if err := d.embedded(dim.decode); err != nil {
				return err
			}
			s.Dims = append(s.Dims, dim)
			return nil
		}
		return d.skip(wire)
	})
}

func (dim *DimensionProto) decode(d *decoder) error {
	return d.fields(func(field, wire int) error {
		switch field {
		case 1: // dim_value
			return d.int64To(&dim.DimValue)
		case 2: // dim_param
			return d.stringTo(&dim.DimParam)
		default:
			return d.skip(wire)
		}
	})
}

func (o *OperatorSetID) decode(d *decoder) error {
	return d.fields(func(field, wire int) error {
		switch field {
		case 1: // domain
			return d.stringTo(&o.Domain)
		case 2: // version
			return d.int64To(&o.Version)
		default:
			return d.skip(wire)
		}
	})
}

func (e *StringStringEntry) decode(d *decoder) error {
	return d.fields(func(field, wire int) error {
		switch field {
		case 1: // key
			return d.stringTo(&e.Key)
		case 2: // value
			return d.stringTo(&e.Value)
		default:
			return d.skip(wire)
		}
	})
}

// fields iterates the decoder's buffer, calling fn for each field tag.
func (d *decoder) fields(fn func(field, wire int) error) error {
	for d.pos < len(d.buf) {
		tag, err := d.varint()
		if err != nil {
			return err
		}
		field := int(tag >> 3)
		wire := int(tag & 0x7)
		if err := fn(field, wire); err != nil {
			return err
		}
	}
	return nil
}

// embedded reads a length-delimited submessage and decodes it with fn.
func (d *decoder) embedded(fn func(*decoder) error) error {
	data, err := d.bytes()
	if err != nil {
		return err
	}
	return fn(&decoder{buf: data})
}

func (d *decoder) varint() (uint64, error) {
	var result uint64
	var shift uint
	for {
		if d.pos >= len(d.buf) {
			return 0, io.ErrUnexpectedEOF
		}
		b := d.buf[d.pos]
		d.pos++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, errors.New("varint overflow")
		}
	}
}

func (d *decoder) int64To(dst *int64) error {
	v, err := d.varint()
	*dst = int64(v) //nolint:gosec // G115: two's-complement round trip with the encoder.
	return err
}

func (d *decoder) bytes() ([]byte, error) {
	length, err := d.varint()
	if err != nil {
		return nil, err
	}
	end := d.pos + int(length) //nolint:gosec // G115: bounds-checked below.
	if end < d.pos || end > len(d.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	result := d.buf[d.pos:end]
	d.pos = end
	return result, nil
}

func (d *decoder) stringTo(dst *string) error {
	b, err := d.bytes()
	if err != nil {
		return err
	}
	*dst = string(b)
	return nil
}

func (d *decoder) stringListTo(dst *[]string) error {
	b, err := d.bytes()
	if err != nil {
		return err
	}
	*dst = append(*dst, string(b))
	return nil
}

func (d *decoder) valueInfoTo(dst *[]ValueInfoProto) error {
	var vi ValueInfoProto
	if err := d.embedded(vi.decode); err != nil {
		return err
	}
	*dst = append(*dst, vi)
	return nil
}

func (d *decoder) float32() (float32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	bits := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return math.Float32frombits(bits), nil
}

func (d *decoder) packedFloats(dst *[]float32) error {
	data, err := d.bytes()
	if err != nil {
		return err
	}
	for i := 0; i+4 <= len(data); i += 4 {
		bits := binary.LittleEndian.Uint32(data[i:])
		*dst = append(*dst, math.Float32frombits(bits))
	}
	return nil
}

func (d *decoder) packedInts(dst *[]int64) error {
	data, err := d.bytes()
	if err != nil {
		return err
	}
	sub := &decoder{buf: data}
	for sub.pos < len(sub.buf) {
		v, err := sub.varint()
		if err != nil {
			return err
		}
		*dst = append(*dst, int64(v)) //nolint:gosec // G115: two's-complement round trip.
	}
	return nil
}

func (d *decoder) skip(wire int) error {
	switch wire {
	case wireVarint:
		_, err := d.varint()
		return err
	case wire64Bit:
		if d.pos+8 > len(d.buf) {
			return io.ErrUnexpectedEOF
		}
		d.pos += 8
		return nil
	case wireBytes:
		_, err := d.bytes()
		return err
	case wire32Bit:
		if d.pos+4 > len(d.buf) {
			return io.ErrUnexpectedEOF
		}
		d.pos += 4
		return nil
	default:
		return fmt.Errorf("unknown wire type: %d", wire)
	}
}

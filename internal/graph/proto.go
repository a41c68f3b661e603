// Package graph implements the subset of the ONNX protobuf model format
// that Kiln context-cache models use: the model/graph/node envelope, node
// attributes, and value-info type declarations. Tensor payloads (weights)
// are intentionally not decoded; cached context models carry their compiled
// artifact in a node attribute, not in initializers.
package graph

// ModelProto is the top-level ONNX model message.
type ModelProto struct {
	IRVersion       int64               // IR version (e.g., 7, 8, 9)
	OpsetImport     []OperatorSetID     // Opset version(s)
	ProducerName    string              // Tool that produced the model
	ProducerVersion string              // Tool version
	Domain          string              // Model domain
	ModelVersion    int64               // Model version number
	DocString       string              // Model description
	Graph           *GraphProto         // Main computation graph
	MetadataProps   []StringStringEntry // Key-value metadata
}

// GraphProto is a computation graph: nodes plus tensor declarations.
type GraphProto struct {
	Name      string           // Graph name
	Nodes     []NodeProto      // Operation nodes
	Inputs    []ValueInfoProto // Graph inputs
	Outputs   []ValueInfoProto // Graph outputs
	ValueInfo []ValueInfoProto // Declared intermediate tensors
	DocString string           // Graph description
}

// NodeProto is a single graph node.
type NodeProto struct {
	Name       string           // Node name
	OpType     string           // Operation type (e.g., "EPContext")
	Inputs     []string         // Input tensor names
	Outputs    []string         // Output tensor names
	Attributes []AttributeProto // Named, typed attributes
	Domain     string           // Operator domain (empty for default)
	DocString  string           // Node description
}

// ValueInfoProto declares a tensor's name and type.
type ValueInfoProto struct {
	Name string
	Type *TypeProto
}

// TypeProto describes a value's type. Only tensor types are used here.
type TypeProto struct {
	TensorType *TensorTypeProto
}

// TensorTypeProto describes element type and shape.
type TensorTypeProto struct {
	ElemType int32
	Shape    *TensorShapeProto
}

// TensorShapeProto lists tensor dimensions.
type TensorShapeProto struct {
	Dims []DimensionProto
}

// DimensionProto is a single dimension, static or symbolic.
type DimensionProto struct {
	DimValue int64  // Static dimension value
	DimParam string // Symbolic dimension name (e.g., "batch")
}

// AttributeProto is a named, typed node attribute.
type AttributeProto struct {
	Name    string
	Type    int32
	F       float32
	I       int64
	S       []byte
	Floats  []float32
	Ints    []int64
	Strings [][]byte
}

// OperatorSetID identifies an opset version.
type OperatorSetID struct {
	Domain  string
	Version int64
}

// StringStringEntry is a key-value metadata pair.
type StringStringEntry struct {
	Key   string
	Value string
}

// Tensor element data types (TensorTypeProto.ElemType).
const (
	ElemUndefined = 0
	ElemFloat     = 1  // float32
	ElemUint8     = 2  // uint8
	ElemInt8      = 3  // int8
	ElemUint16    = 4  // uint16
	ElemInt16     = 5  // int16
	ElemInt32     = 6  // int32
	ElemInt64     = 7  // int64
	ElemString    = 8  // string
	ElemBool      = 9  // bool
	ElemFloat16   = 10 // float16
	ElemDouble    = 11 // float64
	ElemUint32    = 12 // uint32
	ElemUint64    = 13 // uint64
)

// Attribute value types (AttributeProto.Type).
const (
	AttrUndefined = 0
	AttrFloat     = 1
	AttrInt       = 2
	AttrString    = 3
	AttrFloats    = 6
	AttrInts      = 7
	AttrStrings   = 8
)

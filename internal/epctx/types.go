// Package epctx implements the EPContext binary cache: persisting an
// accelerator-compiled context binary inside (or next to) an ONNX-style
// model file and reloading it later without recompiling.
package epctx

import "github.com/kiln-ml/kiln/internal/graph"

// FusedPartition pairs the fused node that replaced a subgraph with the
// filtered view of that subgraph. Partitions are produced by the upstream
// partitioner and are read-only here.
type FusedPartition struct {
	// NodeName is the unique, stable name of the fused node.
	NodeName string
	// Graph is the filtered subgraph. When loading a cached model it
	// contains exactly one EPContext node.
	Graph *graph.GraphProto
}

// TensorInfo describes a compiled tensor's element type and shape.
type TensorInfo struct {
	DataType int32
	Shape    []int64
}

// CompiledModel exposes what the cache needs from one partition's
// backend-compiled model: its declared tensor interface.
type CompiledModel interface {
	// InputNames returns input tensor names in declaration order.
	InputNames() []string
	// OutputNames returns output tensor names in declaration order.
	OutputNames() []string
	// TensorInfo returns type and shape for a declared tensor name.
	TensorInfo(name string) (TensorInfo, bool)
}

// ModelTable indexes compiled partition models by fused node name. The
// backend manager fills it when deserializing a cached context.
type ModelTable map[string]CompiledModel

// BackendManager is the accelerator backend's deserialization entry
// point. The cache treats it as an opaque capability: it hands over the
// raw context binary and never inspects what the backend builds from it.
type BackendManager interface {
	// LoadContextFromBuffer deserializes a cached context binary and
	// registers the partition models it contains into table. The sizing
	// hint is the maximum spill/fill size observed across the partitions
	// compiled together.
	LoadContextFromBuffer(buf []byte, nodeName string, table ModelTable, maxSpillFillSize int64) error
}

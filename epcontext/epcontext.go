// Package epcontext provides the public API for Kiln's accelerator
// context-binary cache.
//
// A context cache model is an ONNX-style graph whose partitions were
// replaced by EPContext nodes. Each node stands in for one fused
// partition and carries either the accelerator-compiled binary inline or
// a relative reference to an external cache file next to the model. On a
// later load the binary is handed back to the backend, skipping
// compilation entirely.
//
// # Writing a cache model
//
//	writer := &epcontext.Writer{}
//	err := writer.CreateContextNodes(model.Graph, compiledBinary, partitions, table, epcontext.WriterOptions{
//	    ModelPath:  "out/model_ctx.onnx",
//	    EmbedMode:  false,
//	    SDKVersion: mgr.SDKVersion(),
//	})
//
// # Loading a cache model
//
//	loader := &epcontext.Loader{}
//	err := loader.LoadCachedContexts(partitions, modelPath, backendManager, table)
//	if errors.Is(err, epcontext.ErrInvalidContextGraph) {
//	    // cached model unusable: fall back to full compilation
//	}
//
// # Sharing one binary across models
//
// When several context models are generated from one compiled context,
// pass the same SharedContext to every writer invocation with
// ShareContext set; only the invocation marked StopShareContext performs
// the physical write, and every model references the identical file.
package epcontext

import (
	"github.com/kiln-ml/kiln/internal/epctx"
	"github.com/kiln-ml/kiln/internal/graph"
)

// Core types, re-exported from the internal implementation.
type (
	// FusedPartition pairs a fused node name with its filtered subgraph.
	FusedPartition = epctx.FusedPartition

	// ContextNodeAttrs is the typed view over an EPContext node.
	ContextNodeAttrs = epctx.ContextNodeAttrs

	// TensorInfo describes a compiled tensor's type and shape.
	TensorInfo = epctx.TensorInfo

	// CompiledModel exposes a compiled partition's tensor interface.
	CompiledModel = epctx.CompiledModel

	// ModelTable indexes compiled partition models by fused node name.
	ModelTable = epctx.ModelTable

	// BackendManager is the backend's deserialize-from-buffer entry point.
	BackendManager = epctx.BackendManager

	// Loader reads cached context payloads and hands them to the backend.
	Loader = epctx.Loader

	// Writer emits EPContext nodes and persists the compiled binary.
	Writer = epctx.Writer

	// WriterOptions configures one context-node emission.
	WriterOptions = epctx.WriterOptions

	// SharedContext coordinates the cache filename of a sharing session.
	SharedContext = epctx.SharedContext

	// FileSystem abstracts loader/writer file access.
	FileSystem = epctx.FileSystem

	// Manifest is the digest sidecar for an external cache binary.
	Manifest = epctx.Manifest
)

// EPContext node identity.
const (
	ContextOp       = epctx.ContextOp
	ContextOpDomain = epctx.ContextOpDomain
	DefaultSource   = epctx.DefaultSource
)

// Errors. ErrInvalidContextGraph classifies every load-side failure;
// match it with errors.Is to trigger recompilation fallback.
var (
	ErrInvalidContextGraph = epctx.ErrInvalidContextGraph
	ErrUnsafePath          = epctx.ErrUnsafePath
	ErrEmptyCacheFile      = epctx.ErrEmptyCacheFile
	ErrUnknownTensor       = epctx.ErrUnknownTensor
	ErrDigestMismatch      = epctx.ErrDigestMismatch
)

// NewSharedContext returns an empty sharing-session coordinator.
func NewSharedContext() *SharedContext {
	return epctx.NewSharedContext()
}

// GraphHasContextNode reports whether a graph carries an EPContext node
// produced by one of the given backend sources (any source when none are
// given). Hosts use it to decide between the cache-load path and full
// compilation.
func GraphHasContextNode(g *graph.GraphProto, sources ...string) bool {
	return epctx.GraphHasContextNode(g, sources...)
}

// PartitionsHaveContextNode reports whether any fused partition carries a
// matching EPContext node.
func PartitionsHaveContextNode(partitions []FusedPartition, sources ...string) bool {
	return epctx.PartitionsHaveContextNode(partitions, sources...)
}

// MainContextPositions returns the indices of partitions whose EPContext
// node is marked main_context=1.
func MainContextPositions(partitions []FusedPartition) ([]int, error) {
	return epctx.MainContextPositions(partitions)
}

// SelectMaxSpillFill picks the maximum spill/fill size across the main
// positions and swaps its position into slot 0. First occurrence wins on
// ties.
func SelectMaxSpillFill(partitions []FusedPartition, mainPositions []int) (int64, error) {
	return epctx.SelectMaxSpillFill(partitions, mainPositions)
}

// ResolveExternalRef validates a relative cache reference and resolves it
// against the model directory. It rejects absolute paths and any
// reference containing "..".
func ResolveExternalRef(modelDir, ref string) (string, error) {
	return epctx.ResolveExternalRef(modelDir, ref)
}

// VerifyCacheBinary checks an external cache binary against its digest
// manifest.
func VerifyCacheBinary(binPath string) error {
	return epctx.VerifyCacheBinary(binPath)
}

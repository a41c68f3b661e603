package epctx

import (
	"fmt"
	"path/filepath"

	"github.com/kiln-ml/kiln/internal/graph"
	"github.com/kiln-ml/kiln/internal/logger"
)

// WriterOptions configures one context-node emission.
type WriterOptions struct {
	// ModelPath is where the context model will be written; the external
	// cache filename is derived from its stem.
	ModelPath string
	// EmbedMode stores the compiled binary inline on the main node
	// instead of in an external file.
	EmbedMode bool
	// SDKVersion is the backend toolchain version tag stamped on every
	// node.
	SDKVersion string
	// Source is the backend provenance tag. Empty means DefaultSource.
	Source string
	// MaxSpillFillSize is the memory-planner sizing hint for the main
	// node, the maximum observed across the session.
	MaxSpillFillSize int64
	// ShareContext makes this invocation part of a sharing session: all
	// participating models reference one physical cache file.
	ShareContext bool
	// StopShareContext marks the session's final participant, which
	// performs the physical write and ends the session.
	StopShareContext bool
	// Shared coordinates the session filename. Required when
	// ShareContext is set.
	Shared *SharedContext
	// EmitManifest writes a digest sidecar next to an external cache
	// file.
	EmitManifest bool
}

// Writer emits EPContext nodes for freshly compiled partitions and
// persists the compiled binary exactly once.
type Writer struct {
	// FS is the filesystem external cache files are written to. Nil
	// means the host filesystem.
	FS FileSystem
	// Log receives write diagnostics. Nil means the default logger.
	Log logger.Logger
}

func (w *Writer) fs() FileSystem {
	if w.FS != nil {
		return w.FS
	}
	return OSFileSystem{}
}

func (w *Writer) log() logger.Logger {
	if w.Log != nil {
		return w.Log
	}
	return logger.Default()
}

// CreateContextNodes adds one EPContext node per fused partition to g,
// in partition input order. The binary covers all partitions jointly, so
// only the first partition's node carries it (inline, or as a reference
// to the external file written here); that node is the main context. The
// remaining nodes are stamped main_context=0 and stay payload-free.
//
// Unlike load failures, write failures are returned as-is: a failed write
// is an environment problem recompilation cannot fix.
func (w *Writer) CreateContextNodes(g *graph.GraphProto, binary []byte, partitions []FusedPartition, table ModelTable, opts WriterOptions) error {
	if opts.ShareContext && opts.Shared == nil {
		return ErrNilSharedContext
	}
	source := opts.Source
	if source == "" {
		source = DefaultSource
	}

	for index := range partitions {
		partition := &partitions[index]
		model, ok := table[partition.NodeName]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPartition, partition.NodeName)
		}

		if err := declareValueInfos(g, model, model.InputNames()); err != nil {
			return err
		}
		if err := declareValueInfos(g, model, model.OutputNames()); err != nil {
			return err
		}

		node := g.AddNode(partition.NodeName, ContextOp, ContextOpDomain,
			"context binary cache for partition: "+partition.NodeName,
			model.InputNames(), model.OutputNames())

		attrs := ContextNodeAttrs{
			MainContext:   index == 0,
			EmbedMode:     opts.EmbedMode,
			SDKVersion:    opts.SDKVersion,
			PartitionName: partition.NodeName,
			Source:        source,
		}

		// The binary is dumped once; all partitions share one context.
		if index == 0 {
			if opts.EmbedMode {
				attrs.PayloadBytes = binary
			} else {
				name, err := w.writeExternal(binary, partitions, source, opts)
				if err != nil {
					return err
				}
				attrs.PayloadPath = name
				attrs.MaxSpillFillSize = opts.MaxSpillFillSize
			}
		}

		attrs.ApplyTo(node)
	}
	return nil
}

// writeExternal derives the external cache filename, coordinates it with
// the sharing session, and performs the physical write when this
// invocation is responsible for it. Returns the filename to store on the
// main node.
func (w *Writer) writeExternal(binary []byte, partitions []FusedPartition, source string, opts WriterOptions) (string, error) {
	path, name := ContextBinaryPath(opts.ModelPath, partitions[0].NodeName, source)

	sessionID := ""
	if opts.ShareContext {
		shared, claimed := opts.Shared.ClaimBinFileName(name)
		sessionID = opts.Shared.SessionID()
		if !claimed {
			// An earlier participant named the session's file; point at
			// it instead of creating a duplicate.
			name = shared
			path = filepath.Join(filepath.Dir(path), name)
		}
	}

	// The file is written when sharing is off, or by the session's final
	// participant; earlier participants only register nodes pointing at
	// the eventual shared file.
	if !opts.ShareContext || opts.StopShareContext {
		if err := w.fs().WriteFile(path, binary); err != nil {
			w.log().Error("failed to write context cache file", "path", path, "error", err)
			return "", err
		}
		w.log().Info("wrote context cache file", "path", path, "size", len(binary))

		if opts.EmitManifest {
			manifest := NewManifest(binary, partitions, opts.SDKVersion, source, sessionID)
			if err := WriteManifest(w.fs(), path, manifest); err != nil {
				return "", err
			}
		}
	}

	if opts.ShareContext && opts.StopShareContext {
		opts.Shared.Reset()
	}
	return name, nil
}

// declareValueInfos registers typed tensor declarations for the given
// names, taking type and shape from the compiled model.
func declareValueInfos(g *graph.GraphProto, model CompiledModel, names []string) error {
	for _, name := range names {
		info, ok := model.TensorInfo(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTensor, name)
		}
		g.GetOrCreateValueInfo(name, info.DataType, info.Shape)
	}
	return nil
}

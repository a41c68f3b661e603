package epctx

import (
	"fmt"
	"path/filepath"

	"github.com/kiln-ml/kiln/internal/graph"
	"github.com/kiln-ml/kiln/internal/logger"
)

// Loader reads cached context payloads out of EPContext nodes and hands
// them to the backend for deserialization.
//
// Every failure it returns matches ErrInvalidContextGraph, so hosts can
// distinguish "this cached model is unusable, recompile" from environment
// errors.
type Loader struct {
	// FS is the filesystem used for external payloads. Nil means the host
	// filesystem. Embed-mode loads never touch it.
	FS FileSystem
	// Log receives load failures. Nil means the default logger.
	Log logger.Logger
}

func (l *Loader) fs() FileSystem {
	if l.FS != nil {
		return l.FS
	}
	return OSFileSystem{}
}

func (l *Loader) log() logger.Logger {
	if l.Log != nil {
		return l.Log
	}
	return logger.Default()
}

// LoadFromGraph loads the cached context carried by a filtered partition
// graph and hands it to mgr together with the node's name, the sizing
// hint, and the table the backend registers its models into. The graph
// must contain exactly one EPContext node.
func (l *Loader) LoadFromGraph(g *graph.GraphProto, modelPath string, mgr BackendManager, table ModelTable, maxSpillFillSize int64) error {
	err := l.loadFromGraph(g, modelPath, mgr, table, maxSpillFillSize)
	if err != nil {
		l.log().Error("failed to load cached context", "model", modelPath, "error", err)
		return invalidGraph(err)
	}
	return nil
}

func (l *Loader) loadFromGraph(g *graph.GraphProto, modelPath string, mgr BackendManager, table ModelTable, maxSpillFillSize int64) error {
	node, err := soleContextNode(g)
	if err != nil {
		return err
	}

	buf, err := l.payloadFromMainNode(node, modelPath)
	if err != nil {
		return err
	}

	if err := mgr.LoadContextFromBuffer(buf, node.Name, table, maxSpillFillSize); err != nil {
		return fmt.Errorf("%w: node %s: %v", ErrBackendLoad, node.Name, err)
	}
	return nil
}

// payloadFromMainNode extracts the compiled binary from a context node:
// the inline attribute bytes in embed mode, otherwise the content of the
// externally referenced cache file.
func (l *Loader) payloadFromMainNode(node *graph.NodeProto, modelPath string) ([]byte, error) {
	attrs, err := ContextAttrsFromNode(node)
	if err != nil {
		return nil, err
	}

	if attrs.EmbedMode {
		return attrs.PayloadBytes, nil
	}

	modelDir := filepath.Dir(modelPath)
	binPath, err := ResolveExternalRef(modelDir, attrs.PayloadPath)
	if err != nil {
		return nil, err
	}

	info, err := l.fs().Stat(binPath)
	if err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrCacheFileMissing, binPath)
	}

	buf, err := l.fs().ReadFile(binPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read context cache file %s: %w", binPath, err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCacheFile, binPath)
	}
	return buf, nil
}

// LoadCachedContexts is the full load path for a set of fused partitions
// cut from one cached model: it finds the main context positions, selects
// the maximum spill/fill size (reordering so the largest becomes
// authoritative), and loads each main context through mgr.
func (l *Loader) LoadCachedContexts(partitions []FusedPartition, modelPath string, mgr BackendManager, table ModelTable) error {
	mainPositions, err := MainContextPositions(partitions)
	if err != nil {
		return invalidGraph(err)
	}

	maxSpillFillSize, err := SelectMaxSpillFill(partitions, mainPositions)
	if err != nil {
		return invalidGraph(err)
	}

	for _, pos := range mainPositions {
		if err := l.LoadFromGraph(partitions[pos].Graph, modelPath, mgr, table, maxSpillFillSize); err != nil {
			return err
		}
	}
	return nil
}

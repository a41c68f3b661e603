package epctx

import (
	"strings"

	"github.com/kiln-ml/kiln/internal/graph"
)

// EPContext node identity.
const (
	// ContextOp is the op type of a cache node.
	ContextOp = "EPContext"
	// ContextOpDomain is the custom operator domain cache nodes live in.
	ContextOpDomain = "com.kiln"
	// DefaultSource is the provenance tag stamped on nodes this module
	// writes, and recognized when loading.
	DefaultSource = "KilnExecutionProvider"
)

// EPContext attribute names. These follow the public EPContext schema so
// cache models interoperate with other tooling that reads it.
const (
	attrMainContext   = "main_context"
	attrEmbedMode     = "embed_mode"
	attrCacheContext  = "ep_cache_context"
	attrMaxSize       = "max_size"
	attrSDKVersion    = "ep_sdk_version"
	attrPartitionName = "partition_name"
	attrSource        = "source"
)

// ContextNodeAttrs is the typed view over the recognized attribute set of
// an EPContext node. Conversion to and from the generic attribute bag
// happens only at this boundary; the rest of the package works on this
// record.
type ContextNodeAttrs struct {
	MainContext      bool   // exactly one node per compiled set has this
	EmbedMode        bool   // payload inline vs. external file reference
	PayloadBytes     []byte // inline compiled binary (EmbedMode)
	PayloadPath      string // relative cache file reference (!EmbedMode)
	MaxSpillFillSize int64  // memory-planner sizing hint, main node only
	SDKVersion       string // backend toolchain version tag
	PartitionName    string // originating fused partition
	Source           string // backend provenance tag
}

// ContextAttrsFromNode extracts the typed attribute record from a node.
// Returns ErrNotContextNode when the node is not an EPContext node.
func ContextAttrsFromNode(n *graph.NodeProto) (ContextNodeAttrs, error) {
	if n.OpType != ContextOp {
		return ContextNodeAttrs{}, ErrNotContextNode
	}
	attrs := ContextNodeAttrs{
		MainContext:      n.AttrInt(attrMainContext, 0) == 1,
		EmbedMode:        n.AttrInt(attrEmbedMode, 1) == 1,
		MaxSpillFillSize: n.AttrInt(attrMaxSize, 0),
		SDKVersion:       n.AttrString(attrSDKVersion, ""),
		PartitionName:    n.AttrString(attrPartitionName, ""),
		Source:           n.AttrString(attrSource, ""),
	}
	if attrs.EmbedMode {
		attrs.PayloadBytes = n.AttrBytes(attrCacheContext)
	} else {
		attrs.PayloadPath = n.AttrString(attrCacheContext, "")
	}
	return attrs, nil
}

// ApplyTo stamps the record onto a node as EPContext attributes. The
// payload attribute is only written when the record carries one; non-main
// nodes stay payload-free.
func (a ContextNodeAttrs) ApplyTo(n *graph.NodeProto) {
	if a.MainContext {
		n.SetAttrInt(attrMainContext, 1)
	} else {
		n.SetAttrInt(attrMainContext, 0)
	}
	if a.EmbedMode {
		n.SetAttrInt(attrEmbedMode, 1)
		if a.PayloadBytes != nil {
			n.SetAttrBytes(attrCacheContext, a.PayloadBytes)
		}
	} else {
		n.SetAttrInt(attrEmbedMode, 0)
		if a.PayloadPath != "" {
			n.SetAttrString(attrCacheContext, a.PayloadPath)
		}
	}
	if a.MaxSpillFillSize > 0 {
		n.SetAttrInt(attrMaxSize, a.MaxSpillFillSize)
	}
	n.SetAttrString(attrSDKVersion, a.SDKVersion)
	n.SetAttrString(attrPartitionName, a.PartitionName)
	n.SetAttrString(attrSource, a.Source)
}

// IsContextNode reports whether the node is an EPContext node, regardless
// of which backend produced it.
func IsContextNode(n *graph.NodeProto) bool {
	return n.OpType == ContextOp
}

// nodeHasSource reports whether the node's source attribute matches one of
// the accepted backend tags, compared case-insensitively.
func nodeHasSource(n *graph.NodeProto, sources []string) bool {
	src := strings.ToLower(n.AttrString(attrSource, ""))
	for _, s := range sources {
		if src == strings.ToLower(s) {
			return true
		}
	}
	return false
}

// GraphHasContextNode reports whether the graph carries an EPContext node
// produced by one of the given backend sources. With no sources, any
// EPContext node matches.
func GraphHasContextNode(g *graph.GraphProto, sources ...string) bool {
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if !IsContextNode(n) {
			continue
		}
		if len(sources) == 0 || nodeHasSource(n, sources) {
			return true
		}
	}
	return false
}

// PartitionsHaveContextNode reports whether any fused partition's filtered
// graph carries a matching EPContext node.
func PartitionsHaveContextNode(partitions []FusedPartition, sources ...string) bool {
	for i := range partitions {
		if partitions[i].Graph != nil && GraphHasContextNode(partitions[i].Graph, sources...) {
			return true
		}
	}
	return false
}

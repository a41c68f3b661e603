package epctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiln-ml/kiln/internal/graph"
)

func TestContextAttrsRoundTripEmbedded(t *testing.T) {
	want := ContextNodeAttrs{
		MainContext:   true,
		EmbedMode:     true,
		PayloadBytes:  []byte{1, 2, 3},
		SDKVersion:    "2.38.0",
		PartitionName: "part_0",
		Source:        DefaultSource,
	}

	g := &graph.GraphProto{}
	node := g.AddNode("part_0", ContextOp, ContextOpDomain, "", nil, nil)
	want.ApplyTo(node)

	got, err := ContextAttrsFromNode(node)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestContextAttrsRoundTripExternal(t *testing.T) {
	want := ContextNodeAttrs{
		MainContext:      true,
		PayloadPath:      "model_ctx.bin",
		MaxSpillFillSize: 8192,
		SDKVersion:       "2.38.0",
		PartitionName:    "part_0",
		Source:           DefaultSource,
	}

	g := &graph.GraphProto{}
	node := g.AddNode("part_0", ContextOp, ContextOpDomain, "", nil, nil)
	want.ApplyTo(node)

	got, err := ContextAttrsFromNode(node)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestContextAttrsNonMainExplicitZero(t *testing.T) {
	g := &graph.GraphProto{}
	node := g.AddNode("part_1", ContextOp, ContextOpDomain, "", nil, nil)
	ContextNodeAttrs{EmbedMode: true, Source: DefaultSource}.ApplyTo(node)

	assert.True(t, node.HasAttr(attrMainContext), "non-main nodes carry an explicit zero marker")
	assert.Equal(t, int64(0), node.AttrInt(attrMainContext, 1))
}

func TestContextAttrsFromForeignNode(t *testing.T) {
	g := &graph.GraphProto{}
	node := g.AddNode("gemm", "Gemm", "", "", nil, nil)

	_, err := ContextAttrsFromNode(node)
	assert.ErrorIs(t, err, ErrNotContextNode)
}

func TestGraphHasContextNode(t *testing.T) {
	g := &graph.GraphProto{}
	g.AddNode("gemm", "Gemm", "", "", nil, nil)
	node := g.AddNode("part_0", ContextOp, ContextOpDomain, "", nil, nil)
	node.SetAttrString("source", DefaultSource)

	assert.True(t, GraphHasContextNode(g))
	assert.True(t, GraphHasContextNode(g, DefaultSource))
	assert.True(t, GraphHasContextNode(g, "kilnexecutionprovider"), "source match is case-insensitive")
	assert.True(t, GraphHasContextNode(g, "other", DefaultSource))
	assert.False(t, GraphHasContextNode(g, "OtherProvider"))
}

func TestGraphHasContextNodeIgnoresForeignOps(t *testing.T) {
	g := &graph.GraphProto{}
	g.AddNode("gemm", "Gemm", "", "", nil, nil)

	assert.False(t, GraphHasContextNode(g))
}

func TestPartitionsHaveContextNode(t *testing.T) {
	plain := &graph.GraphProto{}
	plain.AddNode("gemm", "Gemm", "", "", nil, nil)

	parts := []FusedPartition{
		{NodeName: "plain", Graph: plain},
		contextPartition("part_0", ContextNodeAttrs{MainContext: true, EmbedMode: true, Source: DefaultSource}),
	}

	assert.True(t, PartitionsHaveContextNode(parts))
	assert.True(t, PartitionsHaveContextNode(parts, DefaultSource))
	assert.False(t, PartitionsHaveContextNode(parts[:1]))
	assert.False(t, PartitionsHaveContextNode(nil))
}

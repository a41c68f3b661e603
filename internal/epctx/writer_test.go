package epctx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiln-ml/kiln/internal/graph"
	"github.com/kiln-ml/kiln/internal/logger"
)

func newTestWriter(fs FileSystem) *Writer {
	return &Writer{FS: fs, Log: logger.Discard()}
}

// writerFixture prepares three fused partitions covered by one compiled
// binary, with the backend source tag embedded in the partition names.
func writerFixture() ([]FusedPartition, ModelTable) {
	names := []string{
		DefaultSource + "_part_0",
		DefaultSource + "_part_1",
		DefaultSource + "_part_2",
	}
	partitions := make([]FusedPartition, len(names))
	table := make(ModelTable, len(names))
	for i, name := range names {
		partitions[i] = FusedPartition{NodeName: name}
		table[name] = newFakeModel([]string{name + "_in"}, []string{name + "_out"})
	}
	return partitions, table
}

// filteredPartitions cuts the emitted graph back into one-node filtered
// views, the shape the loader receives.
func filteredPartitions(g *graph.GraphProto) []FusedPartition {
	parts := make([]FusedPartition, len(g.Nodes))
	for i := range g.Nodes {
		sub := &graph.GraphProto{Nodes: []graph.NodeProto{g.Nodes[i]}}
		parts[i] = FusedPartition{NodeName: g.Nodes[i].Name, Graph: sub}
	}
	return parts
}

func TestCreateContextNodesEmbeddedRoundTrip(t *testing.T) {
	partitions, table := writerFixture()
	binary := []byte("jointly-compiled-context")
	g := &graph.GraphProto{Name: "ctx"}

	spy := newSpyFS()
	writer := newTestWriter(spy)
	err := writer.CreateContextNodes(g, binary, partitions, table, WriterOptions{
		ModelPath:  "out/model_ctx.onnx",
		EmbedMode:  true,
		SDKVersion: "2.38.0",
	})
	require.NoError(t, err)
	require.Len(t, g.Nodes, 3)
	assert.Zero(t, spy.calls, "embedded writes must not touch the filesystem")

	mains := 0
	for i := range g.Nodes {
		attrs, err := ContextAttrsFromNode(&g.Nodes[i])
		require.NoError(t, err)
		assert.True(t, attrs.EmbedMode)
		assert.Equal(t, "2.38.0", attrs.SDKVersion)
		assert.Equal(t, DefaultSource, attrs.Source)
		assert.Equal(t, g.Nodes[i].Name, attrs.PartitionName)
		if attrs.MainContext {
			mains++
			assert.Equal(t, binary, attrs.PayloadBytes)
		} else {
			assert.False(t, g.Nodes[i].HasAttr(attrCacheContext), "non-main nodes carry no payload")
			assert.False(t, g.Nodes[i].HasAttr(attrMaxSize), "non-main nodes carry no sizing attribute")
		}
	}
	assert.Equal(t, 1, mains, "exactly one main context node per invocation")

	// A loader fed the filtered views must reproduce the original binary
	// without any filesystem access.
	backend := &fakeBackend{}
	loader := newTestLoader(spy)
	require.NoError(t, loader.LoadCachedContexts(filteredPartitions(g), "elsewhere/model_ctx.onnx", backend, ModelTable{}))
	require.Len(t, backend.buffers, 1)
	assert.Equal(t, binary, backend.buffers[0])
	assert.Zero(t, spy.calls)
}

func TestCreateContextNodesExternalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model_ctx.onnx")
	partitions, table := writerFixture()
	binary := []byte{0xca, 0xfe, 0xf0, 0x0d}
	g := &graph.GraphProto{}

	writer := newTestWriter(nil)
	err := writer.CreateContextNodes(g, binary, partitions, table, WriterOptions{
		ModelPath:        modelPath,
		SDKVersion:       "2.38.0",
		MaxSpillFillSize: 4096,
	})
	require.NoError(t, err)

	attrs, err := ContextAttrsFromNode(&g.Nodes[0])
	require.NoError(t, err)
	assert.Equal(t, "model_ctx_part_0.bin", attrs.PayloadPath, "source tag is stripped from the filename")
	assert.Equal(t, int64(4096), attrs.MaxSpillFillSize)

	written, err := os.ReadFile(filepath.Join(dir, "model_ctx_part_0.bin"))
	require.NoError(t, err)
	assert.Equal(t, binary, written)

	backend := &fakeBackend{}
	loader := newTestLoader(nil)
	require.NoError(t, loader.LoadCachedContexts(filteredPartitions(g), modelPath, backend, ModelTable{}))
	require.Len(t, backend.buffers, 1)
	assert.Equal(t, binary, backend.buffers[0])
	assert.Equal(t, []int64{4096}, backend.sizes)
}

func TestCreateContextNodesDeclaresTensors(t *testing.T) {
	partitions, table := writerFixture()
	g := &graph.GraphProto{}

	writer := newTestWriter(newSpyFS())
	err := writer.CreateContextNodes(g, []byte("bin"), partitions, table, WriterOptions{
		ModelPath: "m.onnx",
		EmbedMode: true,
	})
	require.NoError(t, err)

	// One input and one output declaration per partition.
	assert.Len(t, g.ValueInfo, 6)
	assert.Equal(t, []string{partitions[0].NodeName + "_in"}, g.Nodes[0].Inputs)
	assert.Equal(t, []string{partitions[0].NodeName + "_out"}, g.Nodes[0].Outputs)
}

func TestCreateContextNodesUnknownTensor(t *testing.T) {
	partitions, table := writerFixture()
	broken := table[partitions[0].NodeName].(*fakeModel)
	delete(broken.infos, partitions[0].NodeName+"_in")

	writer := newTestWriter(newSpyFS())
	err := writer.CreateContextNodes(&graph.GraphProto{}, []byte("bin"), partitions, table, WriterOptions{
		ModelPath: "m.onnx",
		EmbedMode: true,
	})
	assert.ErrorIs(t, err, ErrUnknownTensor)
}

func TestCreateContextNodesUnknownPartition(t *testing.T) {
	partitions, table := writerFixture()
	delete(table, partitions[1].NodeName)

	writer := newTestWriter(newSpyFS())
	err := writer.CreateContextNodes(&graph.GraphProto{}, []byte("bin"), partitions, table, WriterOptions{
		ModelPath: "m.onnx",
		EmbedMode: true,
	})
	assert.ErrorIs(t, err, ErrUnknownPartition)
}

func TestCreateContextNodesWriteFailure(t *testing.T) {
	partitions, table := writerFixture()

	writer := newTestWriter(failingFS{})
	err := writer.CreateContextNodes(&graph.GraphProto{}, []byte("bin"), partitions, table, WriterOptions{
		ModelPath: "m.onnx",
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidContextGraph, "write failures are environment errors, not graph errors")
}

func TestCreateContextNodesShareRequiresCoordinator(t *testing.T) {
	partitions, table := writerFixture()

	writer := newTestWriter(newSpyFS())
	err := writer.CreateContextNodes(&graph.GraphProto{}, []byte("bin"), partitions, table, WriterOptions{
		ModelPath:    "m.onnx",
		ShareContext: true,
	})
	assert.ErrorIs(t, err, ErrNilSharedContext)
}

func TestSharingSessionWritesOnceWithOneFilename(t *testing.T) {
	dir := t.TempDir()
	shared := NewSharedContext()
	binary := []byte("shared-context")

	var names []string
	for i, model := range []string{"model_a_ctx.onnx", "model_b_ctx.onnx", "model_c_ctx.onnx"} {
		final := i == 2
		partitions := []FusedPartition{{NodeName: DefaultSource + "_graph"}}
		table := ModelTable{partitions[0].NodeName: newFakeModel([]string{"x"}, []string{"y"})}
		g := &graph.GraphProto{}

		writer := newTestWriter(nil)
		err := writer.CreateContextNodes(g, binary, partitions, table, WriterOptions{
			ModelPath:        filepath.Join(dir, model),
			ShareContext:     true,
			StopShareContext: final,
			Shared:           shared,
		})
		require.NoError(t, err)

		attrs, err := ContextAttrsFromNode(&g.Nodes[0])
		require.NoError(t, err)
		names = append(names, attrs.PayloadPath)

		binPath := filepath.Join(dir, attrs.PayloadPath)
		if _, statErr := os.Stat(binPath); final {
			require.NoError(t, statErr, "final participant performs the physical write")
		} else {
			assert.ErrorIs(t, statErr, os.ErrNotExist, "earlier participants only register nodes")
		}
	}

	assert.Equal(t, "model_a_ctx_graph.bin", names[0])
	assert.Equal(t, names[0], names[1])
	assert.Equal(t, names[0], names[2], "all participants reference the identical filename")
	assert.Empty(t, shared.BinFileName(), "the final participant ends the session")

	written, err := os.ReadFile(filepath.Join(dir, names[0]))
	require.NoError(t, err)
	assert.Equal(t, binary, written)
}

func TestCreateContextNodesEmitsManifest(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model_ctx.onnx")
	partitions, table := writerFixture()
	binary := []byte("manifested-context")

	writer := newTestWriter(nil)
	err := writer.CreateContextNodes(&graph.GraphProto{}, binary, partitions, table, WriterOptions{
		ModelPath:    modelPath,
		SDKVersion:   "2.38.0",
		EmitManifest: true,
	})
	require.NoError(t, err)

	binPath := filepath.Join(dir, "model_ctx_part_0.bin")
	require.NoError(t, VerifyCacheBinary(binPath))

	m, err := ReadManifest(binPath)
	require.NoError(t, err)
	assert.Equal(t, PayloadDigest(binary), m.Digest)
	assert.Equal(t, int64(len(binary)), m.Size)
	assert.Equal(t, "2.38.0", m.SDKVersion)
	assert.Len(t, m.Partitions, 3)

	// Tampering must be caught.
	require.NoError(t, os.WriteFile(binPath, []byte("tampered"), 0o600))
	assert.ErrorIs(t, VerifyCacheBinary(binPath), ErrDigestMismatch)
}

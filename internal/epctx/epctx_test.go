package epctx

// Shared test doubles: an in-memory backend manager, a compiled-model
// stub, and a spying filesystem.

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/kiln-ml/kiln/internal/graph"
)

// fakeBackend records every buffer handed to it.
type fakeBackend struct {
	err     error
	buffers [][]byte
	names   []string
	sizes   []int64
}

func (b *fakeBackend) LoadContextFromBuffer(buf []byte, nodeName string, table ModelTable, maxSpillFillSize int64) error {
	if b.err != nil {
		return b.err
	}
	b.buffers = append(b.buffers, buf)
	b.names = append(b.names, nodeName)
	b.sizes = append(b.sizes, maxSpillFillSize)
	return nil
}

// fakeModel is a compiled-model stub with a fixed tensor interface.
type fakeModel struct {
	inputs  []string
	outputs []string
	infos   map[string]TensorInfo
}

func newFakeModel(inputs, outputs []string) *fakeModel {
	m := &fakeModel{
		inputs:  inputs,
		outputs: outputs,
		infos:   make(map[string]TensorInfo),
	}
	for _, n := range append(append([]string{}, inputs...), outputs...) {
		m.infos[n] = TensorInfo{DataType: graph.ElemFloat, Shape: []int64{1, 8}}
	}
	return m
}

func (m *fakeModel) InputNames() []string  { return m.inputs }
func (m *fakeModel) OutputNames() []string { return m.outputs }

func (m *fakeModel) TensorInfo(name string) (TensorInfo, bool) {
	info, ok := m.infos[name]
	return info, ok
}

// spyFS is an in-memory FileSystem that counts every access.
type spyFS struct {
	calls int
	files map[string][]byte
}

func newSpyFS() *spyFS {
	return &spyFS{files: make(map[string][]byte)}
}

func (s *spyFS) Stat(name string) (os.FileInfo, error) {
	s.calls++
	data, ok := s.files[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return spyFileInfo{name: name, size: int64(len(data))}, nil
}

func (s *spyFS) ReadFile(name string) ([]byte, error) {
	s.calls++
	data, ok := s.files[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func (s *spyFS) WriteFile(name string, data []byte) error {
	s.calls++
	s.files[name] = data
	return nil
}

type spyFileInfo struct {
	name string
	size int64
}

func (i spyFileInfo) Name() string       { return i.name }
func (i spyFileInfo) Size() int64        { return i.size }
func (i spyFileInfo) Mode() fs.FileMode  { return 0o644 }
func (i spyFileInfo) ModTime() time.Time { return time.Time{} }
func (i spyFileInfo) IsDir() bool        { return false }
func (i spyFileInfo) Sys() any           { return nil }

// failingFS rejects writes, for write-error paths.
type failingFS struct{}

func (failingFS) Stat(string) (os.FileInfo, error) { return nil, fs.ErrNotExist }
func (failingFS) ReadFile(string) ([]byte, error)  { return nil, fs.ErrNotExist }
func (failingFS) WriteFile(string, []byte) error   { return errors.New("disk full") }

// contextPartition builds a filtered partition graph holding exactly one
// EPContext node stamped with attrs.
func contextPartition(name string, attrs ContextNodeAttrs) FusedPartition {
	g := &graph.GraphProto{Name: name}
	node := g.AddNode(name, ContextOp, ContextOpDomain, "", nil, nil)
	attrs.ApplyTo(node)
	return FusedPartition{NodeName: name, Graph: g}
}

// mainPartitions builds one main-context partition per size entry.
func mainPartitions(sizes []int64) []FusedPartition {
	parts := make([]FusedPartition, len(sizes))
	for i, size := range sizes {
		parts[i] = contextPartition(
			partitionName(i),
			ContextNodeAttrs{MainContext: true, EmbedMode: true, MaxSpillFillSize: size, Source: DefaultSource},
		)
	}
	return parts
}

func partitionName(i int) string {
	return "part_" + string(rune('a'+i))
}

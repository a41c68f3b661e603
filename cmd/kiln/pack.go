package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kiln-ml/kiln/internal/epctx"
	"github.com/kiln-ml/kiln/internal/graph"
)

// packJob is the YAML description of a context model to build.
type packJob struct {
	Model            string          `yaml:"model"`    // output model path
	Binary           string          `yaml:"binary"`   // compiled binary to cache
	Embed            bool            `yaml:"embed"`    // inline instead of external file
	SDKVersion       string          `yaml:"sdk_version"`
	Source           string          `yaml:"source"`
	MaxSpillFillSize int64           `yaml:"max_spill_fill_size"`
	Manifest         bool            `yaml:"manifest"` // emit digest sidecar
	Partitions       []packPartition `yaml:"partitions"`
}

type packPartition struct {
	Name    string                `yaml:"name"`
	Inputs  []string              `yaml:"inputs"`
	Outputs []string              `yaml:"outputs"`
	Tensors map[string]packTensor `yaml:"tensors"`
}

type packTensor struct {
	DType int32   `yaml:"dtype"`
	Shape []int64 `yaml:"shape"`
}

// packPartition implements epctx.CompiledModel over the YAML declaration.
func (p *packPartition) InputNames() []string  { return p.Inputs }
func (p *packPartition) OutputNames() []string { return p.Outputs }

func (p *packPartition) TensorInfo(name string) (epctx.TensorInfo, bool) {
	t, ok := p.Tensors[name]
	if !ok {
		return epctx.TensorInfo{}, false
	}
	return epctx.TensorInfo{DataType: t.DType, Shape: t.Shape}, true
}

func parsePackJob(data []byte) (*packJob, error) {
	var job packJob
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse pack job: %w", err)
	}
	if job.Model == "" {
		return nil, fmt.Errorf("pack job is missing 'model'")
	}
	if job.Binary == "" {
		return nil, fmt.Errorf("pack job is missing 'binary'")
	}
	if len(job.Partitions) == 0 {
		return nil, fmt.Errorf("pack job declares no partitions")
	}
	for i := range job.Partitions {
		if job.Partitions[i].Name == "" {
			return nil, fmt.Errorf("partition %d is missing 'name'", i)
		}
	}
	return &job, nil
}

func runPack(job *packJob, cmd *cobra.Command) error {
	binary, err := os.ReadFile(job.Binary) //nolint:gosec // G304: job paths are user-supplied by design.
	if err != nil {
		return err
	}

	partitions := make([]epctx.FusedPartition, len(job.Partitions))
	table := make(epctx.ModelTable, len(job.Partitions))
	for i := range job.Partitions {
		p := &job.Partitions[i]
		partitions[i] = epctx.FusedPartition{NodeName: p.Name}
		table[p.Name] = p
	}

	model := &graph.ModelProto{
		IRVersion:       9,
		ProducerName:    "kiln",
		ProducerVersion: version,
		OpsetImport:     []graph.OperatorSetID{{Version: 19}},
		Graph:           &graph.GraphProto{Name: "kiln_context_model"},
	}

	writer := &epctx.Writer{}
	err = writer.CreateContextNodes(model.Graph, binary, partitions, table, epctx.WriterOptions{
		ModelPath:        job.Model,
		EmbedMode:        job.Embed,
		SDKVersion:       job.SDKVersion,
		Source:           job.Source,
		MaxSpillFillSize: job.MaxSpillFillSize,
		EmitManifest:     job.Manifest,
	})
	if err != nil {
		return err
	}

	declareGraphBoundary(model.Graph, job.Partitions)

	if err := os.WriteFile(job.Model, graph.Marshal(model), 0o644); err != nil { //nolint:gosec // G306: model files are not secrets.
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote context model %s (%d partitions)\n", job.Model, len(partitions))
	return nil
}

// declareGraphBoundary promotes the partitions' declared tensors to graph
// inputs and outputs so the emitted model stands alone.
func declareGraphBoundary(g *graph.GraphProto, partitions []packPartition) {
	byName := make(map[string]graph.ValueInfoProto, len(g.ValueInfo))
	for _, vi := range g.ValueInfo {
		byName[vi.Name] = vi
	}
	seen := make(map[string]bool)
	for i := range partitions {
		for _, name := range partitions[i].Inputs {
			if vi, ok := byName[name]; ok && !seen["in/"+name] {
				g.Inputs = append(g.Inputs, vi)
				seen["in/"+name] = true
			}
		}
		for _, name := range partitions[i].Outputs {
			if vi, ok := byName[name]; ok && !seen["out/"+name] {
				g.Outputs = append(g.Outputs, vi)
				seen["out/"+name] = true
			}
		}
	}
}

func newPackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack <job.yaml>",
		Short: "Build a context-cache model from a YAML job file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0]) //nolint:gosec // G304: job path is user-supplied by design.
			if err != nil {
				return err
			}
			job, err := parsePackJob(data)
			if err != nil {
				return err
			}
			return runPack(job, cmd)
		},
	}
	return cmd
}

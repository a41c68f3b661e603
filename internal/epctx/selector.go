package epctx

import (
	"fmt"

	"github.com/kiln-ml/kiln/internal/graph"
)

// soleContextNode returns the single EPContext node a filtered partition
// graph must contain. Upstream partitioning guarantees the shape; a
// violation means the model was not produced by a context-cache writer.
func soleContextNode(g *graph.GraphProto) (*graph.NodeProto, error) {
	if g == nil || len(g.Nodes) != 1 {
		n := 0
		if g != nil {
			n = len(g.Nodes)
		}
		return nil, fmt.Errorf("%w: got %d nodes", ErrPartitionShape, n)
	}
	node := &g.Nodes[0]
	if !IsContextNode(node) {
		return nil, fmt.Errorf("%w: %s has op type %q", ErrNotContextNode, node.Name, node.OpType)
	}
	return node, nil
}

// MainContextPositions scans the fused partitions and returns the indices
// of those whose EPContext node has main_context=1, in input order. Every
// filtered graph must contain exactly one EPContext node.
func MainContextPositions(partitions []FusedPartition) ([]int, error) {
	var positions []int
	for i := range partitions {
		node, err := soleContextNode(partitions[i].Graph)
		if err != nil {
			return nil, err
		}
		if node.AttrInt(attrMainContext, 0) == 1 {
			positions = append(positions, i)
		}
	}
	if len(positions) == 0 {
		return nil, ErrNoMainContext
	}
	return positions, nil
}

// SelectMaxSpillFill finds the maximum spill/fill size across the main
// context positions and swaps the position carrying it into slot 0, since
// the backend's memory planner must be initialized from the largest
// working set and the loader treats slot 0 as authoritative. The relative
// order of the remaining positions is unchanged. Ties keep the first
// maximal position.
func SelectMaxSpillFill(partitions []FusedPartition, mainPositions []int) (int64, error) {
	var maxSize int64
	maxIndex := 0
	for i, pos := range mainPositions {
		node, err := soleContextNode(partitions[pos].Graph)
		if err != nil {
			return 0, err
		}
		if size := node.AttrInt(attrMaxSize, 0); size > maxSize {
			maxSize = size
			maxIndex = i
		}
	}
	if maxIndex != 0 {
		mainPositions[0], mainPositions[maxIndex] = mainPositions[maxIndex], mainPositions[0]
	}
	return maxSize, nil
}

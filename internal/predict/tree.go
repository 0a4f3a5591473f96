// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package predict

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// node is one regression tree node. Left == 0 marks a leaf: the root is node 0 and
// can never be a child.
type node struct {
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int32   `json:"l,omitempty"`
	Right     int32   `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// Tree is a regression tree stored as a flat node slice.
type Tree struct {
	Nodes []node `json:"nodes"`
}

// predict walks the tree for row x.
func (t *Tree) predict(x []float64) float64 {
	i := int32(0)
	for {
		n := &t.Nodes[i]
		if n.Left == 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// treeParams bound tree growth.
type treeParams struct {
	maxDepth int
	minLeaf  int
}

// minGain is the smallest squared-error reduction worth a split.
const minGain = 1e-9

type treeBuilder struct {
	x      [][]float64
	y      []float64
	params treeParams
	nodes  []node
}

// growTree fits a CART regression tree to the rows in idx using variance reduction.
func growTree(x [][]float64, y []float64, idx []int, params treeParams) Tree {
	b := &treeBuilder{x: x, y: y, params: params}
	b.grow(idx, 0)
	return Tree{Nodes: b.nodes}
}

func (b *treeBuilder) grow(idx []int, depth int) int32 {
	id := int32(len(b.nodes))
	b.nodes = append(b.nodes, node{Value: b.mean(idx)})

	if depth >= b.params.maxDepth || len(idx) < 2*b.params.minLeaf {
		return id
	}
	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

func (b *treeBuilder) mean(idx []int) float64 {
	vals := make([]float64, len(idx))
	for k, i := range idx {
		vals[k] = b.y[i]
	}
	return stat.Mean(vals, nil)
}

// bestSplit scans every feature for the threshold that most reduces squared error
// while leaving at least minLeaf rows on each side. Ties keep the lowest feature
// index so training is deterministic.
func (b *treeBuilder) bestSplit(idx []int) (feature int, threshold float64, ok bool) {
	n := len(idx)
	ys := make([]float64, n)
	for k, i := range idx {
		ys[k] = b.y[i]
	}
	total := floats.Sum(ys)
	parentScore := total * total / float64(n)

	bestScore := parentScore + minGain
	sorted := slices.Clone(idx)
	for f := range b.x[idx[0]] {
		slices.SortStableFunc(sorted, func(a, c int) int { return cmp.Compare(b.x[a][f], b.x[c][f]) })

		var leftSum float64
		for k := 0; k < n-1; k++ {
			leftSum += b.y[sorted[k]]
			nl := k + 1
			if nl < b.params.minLeaf || n-nl < b.params.minLeaf {
				continue
			}
			lo, hi := b.x[sorted[k]][f], b.x[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(n-nl)
			if score > bestScore {
				bestScore = score
				feature, threshold, ok = f, (lo+hi)/2, true
			}
		}
	}
	return feature, threshold, ok
}

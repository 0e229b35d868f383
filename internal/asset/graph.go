package asset

import (
	"fmt"
	"slices"
)

// Node is one asset's entry in the dependency graph.
type Node struct {
	Key           Key
	PartitionsDef PartitionsDef
	Parents       []Key
}

// Graph is the immutable asset dependency graph for one evaluation pass.
//
// The graph is built once from compiled policy definitions and then only
// read. Lookups by key are O(1); enumeration is always in sorted key
// order for deterministic evaluation.
type Graph struct {
	nodes    map[Key]Node
	children map[Key][]Key
}

// NewGraph builds a Graph from the given nodes.
// Every parent reference must name another node in the slice; dangling
// references are an error.
func NewGraph(nodes []Node) (*Graph, error) {
	g := &Graph{
		nodes:    make(map[Key]Node, len(nodes)),
		children: make(map[Key][]Key),
	}
	for _, n := range nodes {
		if _, dup := g.nodes[n.Key]; dup {
			return nil, fmt.Errorf("duplicate asset %q", n.Key)
		}
		if n.PartitionsDef == nil {
			n.PartitionsDef = UnpartitionedDef{}
		}
		g.nodes[n.Key] = n
	}
	for _, n := range nodes {
		for _, parent := range n.Parents {
			if _, ok := g.nodes[parent]; !ok {
				return nil, fmt.Errorf("asset %q depends on unknown asset %q", n.Key, parent)
			}
			g.children[parent] = append(g.children[parent], n.Key)
		}
	}
	for _, kids := range g.children {
		slices.Sort(kids)
	}
	return g, nil
}

// Keys returns every asset key in sorted order.
func (g *Graph) Keys() []Key {
	keys := make([]Key, 0, len(g.nodes))
	for k := range g.nodes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Has reports whether the asset is in the graph.
func (g *Graph) Has(key Key) bool {
	_, ok := g.nodes[key]
	return ok
}

// PartitionsDef returns the partitions definition for an asset.
func (g *Graph) PartitionsDef(key Key) (PartitionsDef, error) {
	n, ok := g.nodes[key]
	if !ok {
		return nil, &UnknownAssetError{Asset: key}
	}
	return n.PartitionsDef, nil
}

// Parents returns the direct upstream dependencies of an asset, in
// declaration order.
func (g *Graph) Parents(key Key) []Key {
	return slices.Clone(g.nodes[key].Parents)
}

// Children returns the direct downstream dependents of an asset, sorted.
func (g *Graph) Children(key Key) []Key {
	return slices.Clone(g.children[key])
}

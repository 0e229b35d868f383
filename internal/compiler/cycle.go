package compiler

import (
	"fmt"
	"strings"
)

// AnalyzeCycles performs static cycle analysis on asset dependencies.
//
// Unlike rule-trigger graphs, asset dependency graphs must be DAGs:
// an asset cannot wait on a parent that transitively waits on it, so
// every cycle is an error.
//
// The algorithm:
//  1. Build an asset → parents edge set from the specs' deps lists
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop as an error
//
// A DAG returns an empty list. Deps naming undeclared assets are
// ignored here; Validate reports those separately.
func AnalyzeCycles(specs []AssetSpec) []ValidationError {
	graph := make(dependencyGraph, len(specs))
	declared := make(map[string]bool, len(specs))
	for _, spec := range specs {
		declared[spec.Key] = true
	}
	for _, spec := range specs {
		if graph[spec.Key] == nil {
			graph[spec.Key] = []string{}
		}
		for _, dep := range spec.Deps {
			if declared[dep] {
				graph[spec.Key] = append(graph[spec.Key], dep)
			}
		}
	}

	var errs []ValidationError
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			path := reconstructCyclePath(scc, graph)
			errs = append(errs, ValidationError{
				Field:   "deps",
				Message: fmt.Sprintf("dependency cycle: %s", strings.Join(path, " -> ")),
				Code:    ErrDependencyCycle,
			})
		}
	}
	return errs
}

// dependencyGraph maps asset key → list of parent asset keys.
type dependencyGraph map[string][]string

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's
// algorithm. Single-node SCCs without self-loops are not cycles.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for node := range graph {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructCyclePath builds a readable cycle path from an SCC by
// following edges among SCC members until the walk returns to its
// start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}
	if len(scc) == 1 {
		return []string{scc[0], scc[0]}
	}

	sccSet := make(map[string]bool, len(scc))
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}

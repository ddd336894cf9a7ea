package registry

import (
	"sort"

	"github.com/conneroisu/weave/internal/scanner"
	"github.com/conneroisu/weave/internal/types"
)

// DependencyAnalyzer derives the component graph from the tags each
// template contains. It reads the registry at call time, so results follow
// reloads.
type DependencyAnalyzer struct {
	registry *ComponentRegistry
	scanner  *scanner.TagScanner
}

// NewDependencyAnalyzer creates a new dependency analyzer
func NewDependencyAnalyzer(registry *ComponentRegistry) *DependencyAnalyzer {
	return &DependencyAnalyzer{
		registry: registry,
		scanner:  scanner.NewTagScanner(),
	}
}

// AnalyzeComponent returns the registered components referenced by
// component's template, sorted and without duplicates. Tags naming unknown
// components are left out.
func (da *DependencyAnalyzer) AnalyzeComponent(component *types.Component) []string {
	seen := make(map[string]bool)
	var deps []string
	for _, tag := range da.scanner.FindTags(component.Template) {
		if seen[tag.Name] {
			continue
		}
		seen[tag.Name] = true
		if _, ok := da.registry.Get(tag.Name); ok {
			deps = append(deps, tag.Name)
		}
	}
	sort.Strings(deps)

	return deps
}

// GetDependencyGraph maps every component to its direct dependencies.
func (da *DependencyAnalyzer) GetDependencyGraph() map[string][]string {
	components := da.registry.GetAll()

	graph := make(map[string][]string, len(components))
	for name, component := range components {
		graph[name] = da.AnalyzeComponent(component)
	}

	return graph
}

// GetDependents returns the components that reference componentName
// directly, sorted.
func (da *DependencyAnalyzer) GetDependents(componentName string) []string {
	var dependents []string
	for name, deps := range da.GetDependencyGraph() {
		for _, dep := range deps {
			if dep == componentName {
				dependents = append(dependents, name)

				break
			}
		}
	}
	sort.Strings(dependents)

	return dependents
}

// DetectCircularDependencies returns the cycles in the component graph. Each
// cycle starts and ends with the same name; a component that includes itself
// yields a two-element cycle. Expanding any component on a cycle fails with
// a CyclicComponentError.
func (da *DependencyAnalyzer) DetectCircularDependencies() [][]string {
	graph := da.GetDependencyGraph()

	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	var cycles [][]string
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	for _, name := range names {
		if !visited[name] {
			if cycle := detectCycleDFS(name, graph, visited, recStack, nil); cycle != nil {
				cycles = append(cycles, cycle)
			}
		}
	}

	return cycles
}

func detectCycleDFS(component string, graph map[string][]string, visited, recStack map[string]bool, path []string) []string {
	visited[component] = true
	recStack[component] = true
	path = append(path, component)

	for _, dep := range graph[component] {
		if !visited[dep] {
			if cycle := detectCycleDFS(dep, graph, visited, recStack, path); cycle != nil {
				return cycle
			}

			continue
		}
		if !recStack[dep] {
			continue
		}
		for i, p := range path {
			if p == dep {
				cycle := make([]string, 0, len(path)-i+1)
				cycle = append(cycle, path[i:]...)

				return append(cycle, dep)
			}
		}
	}

	recStack[component] = false

	return nil
}

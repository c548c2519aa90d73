package diff

import (
	"sort"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

// sortByDependencies orders new tables so a table comes after the tables its
// foreign keys reference (Kahn's algorithm, ties broken by declaration
// order). Tables caught in a cycle are appended in declaration order.
func sortByDependencies(tables []*models.Table) []*models.Table {
	index := make(map[string]int, len(tables))
	for i, t := range tables {
		index[t.Name] = i
	}

	inDegree := make([]int, len(tables))
	dependents := make([][]int, len(tables))
	for i, t := range tables {
		seen := make(map[int]bool)
		for _, fk := range t.ForeignKeys() {
			j, ok := index[fk.RefTable]
			if !ok || j == i || seen[j] {
				continue
			}
			seen[j] = true
			dependents[j] = append(dependents[j], i)
			inDegree[i]++
		}
	}

	var queue []int
	for i := range tables {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	done := make([]bool, len(tables))
	out := make([]*models.Table, 0, len(tables))
	for len(queue) > 0 {
		sort.Ints(queue)
		current := queue[0]
		queue = queue[1:]

		done[current] = true
		out = append(out, tables[current])
		for _, dep := range dependents[current] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	for i, t := range tables {
		if !done[i] {
			out = append(out, t)
		}
	}
	return out
}

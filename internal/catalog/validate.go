package catalog

import (
	"container/heap"

	"hr-lifecycle/backend/pkg/models"
)

// effectTriggers lists the statuses an effect template may be registered for.
var effectTriggers = map[models.TaskStatus]struct{}{
	models.TaskInProgress: {},
	models.TaskCompleted:  {},
	models.TaskFailed:     {},
	models.TaskSkipped:    {},
}

// buildGraph validates a normalized track definition and returns its indexed graph.
//
// Validation rejects:
//   - empty track name or a track without tasks
//   - empty or duplicate task ids, or a task stamped with another track
//   - dependencies on undefined ids, self-dependencies and duplicate edges
//   - any dependency cycle (direct or indirect)
//   - a track with no required task
//   - malformed effect templates
func buildGraph(def TrackDefinition) (*trackGraph, error) {
	track := def.Track
	if track == "" {
		return nil, invalidf(track, "track name is required")
	}
	if len(def.Tasks) == 0 {
		return nil, invalidf(track, "track has no tasks")
	}

	g := &trackGraph{
		track:    track,
		tasks:    def.Tasks,
		index:    make(map[string]int, len(def.Tasks)),
		outgoing: make([][]int, len(def.Tasks)),
		incoming: make([][]int, len(def.Tasks)),
	}

	hasRequired := false
	for i, task := range def.Tasks {
		if task.ID == "" {
			return nil, invalidf(track, "task %d: id is required", i)
		}
		if _, dup := g.index[task.ID]; dup {
			return nil, invalidf(track, "duplicate task id %q", task.ID)
		}
		if task.Track != track {
			return nil, invalidf(track, "task %q belongs to track %q", task.ID, task.Track)
		}
		g.index[task.ID] = i
		if task.Required {
			hasRequired = true
		}
		for j, eff := range task.SideEffects {
			if !eff.Kind.IsValid() {
				return nil, invalidf(track, "task %q effect %d: unknown kind %q", task.ID, j, eff.Kind)
			}
			if _, ok := effectTriggers[eff.On]; !ok {
				return nil, invalidf(track, "task %q effect %d: invalid trigger status %q", task.ID, j, eff.On)
			}
			if eff.TemplateID == "" {
				return nil, invalidf(track, "task %q effect %d: template is required", task.ID, j)
			}
			if !eff.Recipient.isValid() {
				return nil, invalidf(track, "task %q effect %d: unknown recipient %q", task.ID, j, eff.Recipient)
			}
		}
	}
	if !hasRequired {
		return nil, invalidf(track, "track has no required task")
	}

	for i, task := range def.Tasks {
		seen := make(map[string]struct{}, len(task.DependsOn))
		for _, dep := range task.DependsOn {
			if dep == task.ID {
				return nil, invalidf(track, "task %q depends on itself", task.ID)
			}
			if _, dup := seen[dep]; dup {
				return nil, invalidf(track, "task %q lists dependency %q twice", task.ID, dep)
			}
			seen[dep] = struct{}{}
			from, ok := g.index[dep]
			if !ok {
				return nil, invalidf(track, "task %q depends on undefined task %q", task.ID, dep)
			}
			g.outgoing[from] = append(g.outgoing[from], i)
			g.incoming[i] = append(g.incoming[i], from)
		}
	}

	order := g.topoOrderIndices()
	if len(order) != len(g.tasks) {
		return nil, cycleError(track, g.findCycle())
	}
	g.order = order
	return g, nil
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrderIndices runs Kahn's algorithm with declaration order as the tie-breaker.
func (g *trackGraph) topoOrderIndices() []int {
	indeg := make([]int, len(g.tasks))
	for i := range g.incoming {
		indeg[i] = len(g.incoming[i])
	}

	ready := &intMinHeap{}
	heap.Init(ready)
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

// findCycle extracts one cycle path, visiting nodes in declaration order.
func (g *trackGraph) findCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(g.tasks))
	stack := make([]int, 0, len(g.tasks))
	var cycle []int

	var visit func(u int) bool
	visit = func(u int) bool {
		color[u] = grey
		stack = append(stack, u)
		for _, v := range g.outgoing[u] {
			switch color[v] {
			case grey:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == v {
						cycle = append([]int{}, stack[i:]...)
						cycle = append(cycle, v)
						return true
					}
				}
			case white:
				if visit(v) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
		return false
	}

	for i := range g.tasks {
		if color[i] == white && visit(i) {
			break
		}
	}
	path := make([]string, 0, len(cycle))
	for _, idx := range cycle {
		path = append(path, g.tasks[idx].ID)
	}
	return path
}

package core

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/nishio/ai-project-manager/pkg/models"
)

// NodeKind tells task nodes apart from the synthetic ones the graph adds.
type NodeKind string

const (
	NodeTask     NodeKind = "task"
	NodeArchived NodeKind = "archived"
	NodeMissing  NodeKind = "missing"
	NodeHuman    NodeKind = "human"
)

// EdgeKind is the dependency kind an edge was built from.
type EdgeKind string

const (
	EdgeMust       EdgeKind = "MUST"
	EdgeNiceToHave EdgeKind = "NICE_TO_HAVE"
	EdgeHuman      EdgeKind = "HUMAN"
)

// Blocking reason kinds.
const (
	ReasonTask  = "task"
	ReasonHuman = "human"
)

const defaultBlockReason = "prerequisite not done"

// GraphNode is one vertex of the dependency graph.
type GraphNode struct {
	ID       string          `json:"id"`
	Kind     NodeKind        `json:"kind"`
	Title    string          `json:"title,omitempty"`
	Status   string          `json:"status,omitempty"`
	Type     models.TaskType `json:"type,omitempty"`
	Action   string          `json:"action,omitempty"`
	Assignee string          `json:"assignee,omitempty"`
}

// GraphEdge points from a prerequisite to the task that depends on it.
type GraphEdge struct {
	From   string   `json:"from"`
	To     string   `json:"to"`
	Kind   EdgeKind `json:"kind"`
	Reason string   `json:"reason,omitempty"`
}

// BlockingReason explains one thing keeping a task from being executable.
type BlockingReason struct {
	Kind     string `json:"kind"`
	TaskID   string `json:"task_id,omitempty"`
	Status   string `json:"status"`
	Assignee string `json:"assignee,omitempty"`
	Action   string `json:"action,omitempty"`
	Reason   string `json:"reason"`
}

// BlockedTask pairs a task with everything blocking it.
type BlockedTask struct {
	TaskID  string           `json:"task_id"`
	Reasons []BlockingReason `json:"reasons"`
}

// Analysis splits the live tasks into executable and blocked, both in
// backlog order.
type Analysis struct {
	Executable []string      `json:"executable"`
	Blocked    []BlockedTask `json:"blocked"`
}

// DependencyGraph is the prerequisite graph over live tasks, with archived
// tasks present as Done context nodes.
type DependencyGraph struct {
	nodes     []GraphNode
	index     map[string]int
	edges     []GraphEdge
	live      []models.Task
	dangling  []string
	selfLoops []string
	directed  *simple.DirectedGraph
}

// NewDependencyGraph builds the graph without checking for cycles. Use
// BuildGraph unless a cyclic graph must still be inspected or rendered.
func NewDependencyGraph(tasks, archived []models.Task) *DependencyGraph {
	g := &DependencyGraph{
		index:    make(map[string]int),
		live:     FlattenTasks(tasks),
		directed: simple.NewDirectedGraph(),
	}

	for _, t := range g.live {
		if _, dup := g.index[t.ID]; dup {
			continue
		}
		g.addNode(GraphNode{ID: t.ID, Kind: NodeTask, Title: t.Title, Status: string(t.Status), Type: taskTypeOrDefault(t.Type)})
	}
	for _, t := range FlattenTasks(archived) {
		if _, known := g.index[t.ID]; known {
			continue
		}
		g.addNode(GraphNode{ID: t.ID, Kind: NodeArchived, Title: t.Title, Status: string(models.StatusDone), Type: taskTypeOrDefault(t.Type)})
	}

	for _, t := range g.live {
		if t.Dependencies == nil {
			continue
		}
		for _, d := range t.Dependencies.Must {
			g.addTaskEdge(d, t.ID, EdgeMust)
		}
		for _, d := range t.Dependencies.NiceToHave {
			g.addTaskEdge(d, t.ID, EdgeNiceToHave)
		}
		for _, h := range t.Dependencies.Human {
			hid := HumanNodeID(h.Assignee, t.ID)
			if _, ok := g.index[hid]; !ok {
				// Only "waiting" blocks, so a missing status is kept as is.
				g.addNode(GraphNode{ID: hid, Kind: NodeHuman, Action: h.Action, Assignee: h.Assignee, Status: string(h.Status)})
			}
			g.addEdge(GraphEdge{From: hid, To: t.ID, Kind: EdgeHuman, Reason: h.Reason})
		}
	}
	return g
}

// BuildGraph builds the dependency graph and fails with a
// *CyclicDependencyError when it is not acyclic.
func BuildGraph(tasks, archived []models.Task) (*DependencyGraph, error) {
	g := NewDependencyGraph(tasks, archived)
	if cycles := g.Cycles(); len(cycles) > 0 {
		return nil, &CyclicDependencyError{Cycles: cycles}
	}
	return g, nil
}

// HumanNodeID names the synthetic node for a human dependency.
func HumanNodeID(assignee, taskID string) string {
	return fmt.Sprintf("HUMAN_%s_%s", assignee, taskID)
}

func taskTypeOrDefault(t models.TaskType) models.TaskType {
	if t == "" {
		return models.TaskTypeTask
	}
	return t
}

func (g *DependencyGraph) addNode(n GraphNode) {
	g.index[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.directed.AddNode(simple.Node(len(g.nodes) - 1))
}

func (g *DependencyGraph) addTaskEdge(d models.TaskDependency, dependent string, kind EdgeKind) {
	if _, ok := g.index[d.TaskID]; !ok {
		g.addNode(GraphNode{ID: d.TaskID, Kind: NodeMissing})
		g.dangling = append(g.dangling, d.TaskID)
	}
	g.addEdge(GraphEdge{From: d.TaskID, To: dependent, Kind: kind, Reason: d.Reason})
}

func (g *DependencyGraph) addEdge(e GraphEdge) {
	g.edges = append(g.edges, e)
	from, to := g.index[e.From], g.index[e.To]
	if from == to {
		// simple graphs reject self edges; keep them for the cycle report.
		g.selfLoops = append(g.selfLoops, e.From)
		return
	}
	g.directed.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
}

// Nodes returns every node in insertion order.
func (g *DependencyGraph) Nodes() []GraphNode {
	return append([]GraphNode(nil), g.nodes...)
}

// Edges returns every edge in insertion order.
func (g *DependencyGraph) Edges() []GraphEdge {
	return append([]GraphEdge(nil), g.edges...)
}

// Node looks up a node by ID.
func (g *DependencyGraph) Node(id string) (GraphNode, bool) {
	i, ok := g.index[id]
	if !ok {
		return GraphNode{}, false
	}
	return g.nodes[i], true
}

// Dangling returns referenced task IDs that are neither live nor archived.
func (g *DependencyGraph) Dangling() []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range g.dangling {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Cycles returns every elementary cycle, each rotated to start at its
// smallest ID, sorted for stable output. Self-dependencies are one-element
// cycles.
func (g *DependencyGraph) Cycles() [][]string {
	var cycles [][]string
	seenSelf := make(map[string]bool)
	for _, id := range g.selfLoops {
		if !seenSelf[id] {
			seenSelf[id] = true
			cycles = append(cycles, []string{id})
		}
	}
	for _, path := range topo.DirectedCyclesIn(g.directed) {
		// gonum closes each cycle by repeating the first node.
		ids := make([]string, 0, len(path)-1)
		for _, n := range path[:len(path)-1] {
			ids = append(ids, g.nodes[n.ID()].ID)
		}
		cycles = append(cycles, rotateToSmallest(ids))
	}
	sort.Slice(cycles, func(i, j int) bool {
		a, b := cycles[i], cycles[j]
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
	return cycles
}

func rotateToSmallest(ids []string) []string {
	lo := 0
	for i, id := range ids {
		if id < ids[lo] {
			lo = i
		}
	}
	return append(append([]string{}, ids[lo:]...), ids[:lo]...)
}

// Analyze classifies every live task. A task is blocked by a waiting human
// dependency or by a must prerequisite that is not Done; nice_to_have
// prerequisites never block.
func (g *DependencyGraph) Analyze() Analysis {
	res := Analysis{Executable: []string{}, Blocked: []BlockedTask{}}
	seen := make(map[string]bool)
	for _, t := range g.live {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		reasons := g.blockingReasons(t)
		if len(reasons) == 0 {
			res.Executable = append(res.Executable, t.ID)
			continue
		}
		res.Blocked = append(res.Blocked, BlockedTask{TaskID: t.ID, Reasons: reasons})
	}
	return res
}

func (g *DependencyGraph) blockingReasons(t models.Task) []BlockingReason {
	if t.Dependencies == nil {
		return nil
	}
	var reasons []BlockingReason
	for _, h := range t.Dependencies.Human {
		if h.Status != models.HumanWaiting {
			continue
		}
		reasons = append(reasons, BlockingReason{
			Kind:     ReasonHuman,
			Assignee: h.Assignee,
			Action:   h.Action,
			Status:   string(h.Status),
			Reason:   h.Reason,
		})
	}
	for _, d := range t.Dependencies.Must {
		pre, ok := g.Node(d.TaskID)
		if ok && pre.Status == string(models.StatusDone) {
			continue
		}
		status := pre.Status
		if status == "" {
			status = "Unknown"
		}
		reason := d.Reason
		if reason == "" {
			reason = defaultBlockReason
		}
		reasons = append(reasons, BlockingReason{
			Kind:   ReasonTask,
			TaskID: d.TaskID,
			Status: status,
			Reason: reason,
		})
	}
	return reasons
}

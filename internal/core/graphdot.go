package core

import (
	"fmt"

	"github.com/emicklei/dot"

	"github.com/nishio/ai-project-manager/pkg/models"
)

// RenderDOT renders the dependency graph as Graphviz DOT text. Pipe the
// result through `dot -Tpng` for an image.
func RenderDOT(g *DependencyGraph) string {
	out := dot.NewGraph(dot.Directed)
	out.ID("Tasks")
	out.Attr("rankdir", "LR")

	nodes := make(map[string]dot.Node, len(g.nodes))
	for _, n := range g.nodes {
		node := out.Node(n.ID)
		switch n.Kind {
		case NodeHuman:
			status := n.Status
			if status == "" {
				status = "no status"
			}
			node.Label(fmt.Sprintf("%s\n(%s)", n.Action, status)).
				Attr("shape", "ellipse").
				Attr("style", "filled").
				Attr("fillcolor", "lightblue")
		case NodeMissing:
			node.Label(fmt.Sprintf("%s\n(missing)", n.ID)).
				Attr("shape", "box").
				Attr("style", "dashed")
		default:
			node.Label(fmt.Sprintf("%s: %s\n(%s)", n.ID, n.Title, n.Status)).
				Attr("shape", "box")
			switch {
			case n.Type == models.TaskTypeProject:
				node.Attr("style", "rounded,filled").Attr("fillcolor", "lightgreen")
			case n.Kind == NodeArchived:
				node.Attr("style", "rounded,filled").Attr("fillcolor", "lightgrey")
			default:
				node.Attr("style", "rounded")
			}
		}
		nodes[n.ID] = node
	}

	for _, e := range g.edges {
		switch e.Kind {
		case EdgeMust:
			out.Edge(nodes[e.From], nodes[e.To], fmt.Sprintf("%s\n%s", e.Kind, e.Reason)).Attr("color", "red")
		case EdgeNiceToHave:
			out.Edge(nodes[e.From], nodes[e.To], fmt.Sprintf("%s\n%s", e.Kind, e.Reason)).
				Attr("color", "blue").
				Attr("style", "dashed")
		default:
			out.Edge(nodes[e.From], nodes[e.To], e.Reason).Attr("color", "green")
		}
	}
	return out.String()
}

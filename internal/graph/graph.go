// Package graph renders a declaration graph as Graphviz DOT or Mermaid.
package graph

import (
	"fmt"
	"io"
	"strings"

	"github.com/emicklei/dot"

	"csf-controls-demo/internal/decl"
)

// Format specifies the output format for the graph.
type Format string

const (
	FormatDOT     Format = "dot"
	FormatMermaid Format = "mermaid"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatDOT:
		return FormatDOT, nil
	case FormatMermaid:
		return FormatMermaid, nil
	}
	return "", fmt.Errorf("unknown graph format %q (want dot or mermaid)", s)
}

// Generator draws an edge from every resource to each resource it is
// declared after. Data references are solid, ordering-only dependencies are
// dashed and parent links are grey.
type Generator struct {
	Format Format
	// ClusterByService groups resources by provider module (ec2, lb, iam...).
	ClusterByService bool
}

func (g *Generator) Generate(graph *decl.Graph, w io.Writer) error {
	d := g.build(graph)

	var out string
	if g.Format == FormatMermaid {
		out = dot.MermaidGraph(d, dot.MermaidTopToBottom)
	} else {
		out = d.String()
	}
	_, err := io.WriteString(w, out)
	return err
}

func (g *Generator) GenerateString(graph *decl.Graph) (string, error) {
	var sb strings.Builder
	if err := g.Generate(graph, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (g *Generator) build(graph *decl.Graph) *dot.Graph {
	d := dot.NewGraph(dot.Directed)
	d.Attr("rankdir", "TB")
	d.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", "box")
		n.Attr("fontname", "Arial")
	})
	d.EdgeInitializer(func(e dot.Edge) {
		e.Attr("fontname", "Arial")
		e.Attr("fontsize", "10")
	})

	clusters := make(map[string]*dot.Graph)
	nodes := make(map[decl.Ref]dot.Node, graph.Len())
	for _, r := range graph.Resources() {
		parent := d
		if g.ClusterByService {
			svc := service(r.Ref.Kind)
			c, ok := clusters[svc]
			if !ok {
				c = d.Subgraph(svc, dot.ClusterOption{})
				c.Attr("style", "rounded")
				clusters[svc] = c
			}
			parent = c
		}
		// Names are only unique per kind.
		n := parent.Node(r.Ref.String())
		n.Label(r.Ref.Name + "\\n[" + r.Ref.Kind.Short() + "]")
		nodes[r.Ref] = n
	}

	for _, r := range graph.Resources() {
		from := nodes[r.Ref]
		refs := make(map[decl.Ref]bool, len(r.Refs))
		for _, ref := range r.Refs {
			refs[ref] = true
		}
		for _, dep := range r.Edges() {
			to, ok := nodes[dep]
			if !ok {
				continue
			}
			e := d.Edge(from, to)
			switch {
			case refs[dep]:
			case dep == r.Parent:
				e.Attr("color", "grey")
			default:
				e.Attr("style", "dashed")
			}
		}
	}
	return d
}

// service returns the provider module of a kind, e.g. "ec2".
func service(k decl.Kind) string {
	short := k.Short()
	if i := strings.Index(short, "."); i > 0 {
		return short[:i]
	}
	return "other"
}

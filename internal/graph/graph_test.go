package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csf-controls-demo/internal/decl"
)

func testGraph(t *testing.T) *decl.Graph {
	t.Helper()
	vpc := decl.NewRef(decl.KindVpc, "demo-vpc")
	subnet := decl.NewRef(decl.KindSubnet, "demo-public-subnet-a")
	lb := decl.NewRef(decl.KindLoadBalancer, "demo-pub-alb")
	g := decl.NewGraph()
	require.NoError(t, g.Add(
		decl.Resource{Ref: vpc},
		decl.Resource{Ref: subnet, Parent: vpc, Refs: []decl.Ref{vpc}},
		decl.Resource{Ref: lb, Refs: []decl.Ref{subnet}, DependsOn: []decl.Ref{vpc}},
	))
	return g
}

func TestGenerateDOT(t *testing.T) {
	out, err := (&Generator{}).GenerateString(testGraph(t))
	require.NoError(t, err)

	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, "demo-vpc")
	assert.Contains(t, out, "[ec2.Subnet]")
	assert.Contains(t, out, "dashed")
	assert.NotContains(t, out, "cluster_")
}

func TestGenerateClustered(t *testing.T) {
	out, err := (&Generator{ClusterByService: true}).GenerateString(testGraph(t))
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(out, "subgraph cluster_"), out)
	assert.Contains(t, out, `label="ec2"`)
	assert.Contains(t, out, `label="lb"`)
}

func TestGenerateKeepsKindsApart(t *testing.T) {
	vpc := decl.NewRef(decl.KindVpc, "demo")
	sg := decl.NewRef(decl.KindSecurityGroup, "demo")
	g := decl.NewGraph()
	require.NoError(t, g.Add(
		decl.Resource{Ref: vpc},
		decl.Resource{Ref: sg, Parent: vpc, Refs: []decl.Ref{vpc}},
	))

	out, err := (&Generator{}).GenerateString(g)
	require.NoError(t, err)

	assert.Contains(t, out, "[ec2.Vpc]")
	assert.Contains(t, out, "[ec2.SecurityGroup]")
	assert.Contains(t, out, "n2->n1", out)
}

func TestGenerateMermaid(t *testing.T) {
	out, err := (&Generator{Format: FormatMermaid}).GenerateString(testGraph(t))
	require.NoError(t, err)

	assert.True(t, strings.Contains(out, "flowchart") || strings.Contains(out, "graph"), out)
	assert.NotContains(t, out, "digraph")
}

func TestGenerateIsStable(t *testing.T) {
	a, err := (&Generator{ClusterByService: true}).GenerateString(testGraph(t))
	require.NoError(t, err)
	b, err := (&Generator{ClusterByService: true}).GenerateString(testGraph(t))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatDOT, f)

	f, err = ParseFormat("Mermaid")
	require.NoError(t, err)
	assert.Equal(t, FormatMermaid, f)

	_, err = ParseFormat("svg")
	assert.Error(t, err)
}

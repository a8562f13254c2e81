package decl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ref(name string) Ref {
	return NewRef(KindSubnet, name)
}

func TestKindShort(t *testing.T) {
	assert.Equal(t, "ec2.Subnet", KindSubnet.Short())
	assert.Equal(t, "lb.TargetGroup", KindTargetGroup.Short())
	assert.Equal(t, "custom", Kind("custom").Short())
}

func TestResourceEdgesDeduplicates(t *testing.T) {
	r := Resource{
		Ref:       ref("a"),
		Parent:    ref("p"),
		Refs:      []Ref{ref("b"), ref("p")},
		DependsOn: []Ref{ref("b"), ref("c")},
	}
	assert.Equal(t, []Ref{ref("p"), ref("b"), ref("c")}, r.Edges())
}

func TestGraphAddRejectsDuplicates(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Add(Resource{Ref: ref("a")}))
	err := g.Add(Resource{Ref: ref("a")})
	require.ErrorIs(t, err, ErrDuplicate)

	// same name, different kind is fine
	require.NoError(t, g.Add(Resource{Ref: NewRef(KindRouteTable, "a")}))
	assert.Equal(t, 2, g.Len())
}

func TestGraphOrder(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Add(
		Resource{Ref: ref("route"), Refs: []Ref{ref("table"), ref("nat")}},
		Resource{Ref: ref("vpc")},
		Resource{Ref: ref("table"), Parent: ref("vpc")},
		Resource{Ref: ref("nat"), Refs: []Ref{ref("vpc")}},
	))

	order, err := g.Order()
	require.NoError(t, err)
	assert.Equal(t, []Ref{ref("vpc"), ref("table"), ref("nat"), ref("route")}, order)

	again, err := g.Order()
	require.NoError(t, err)
	assert.Equal(t, order, again)
}

func TestGraphValidate(t *testing.T) {
	t.Run("dangling", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.Add(Resource{Ref: ref("a"), Refs: []Ref{ref("missing")}}))
		assert.ErrorIs(t, g.Validate(), ErrDangling)
	})

	t.Run("cycle", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.Add(
			Resource{Ref: ref("a"), Refs: []Ref{ref("b")}},
			Resource{Ref: ref("b"), Refs: []Ref{ref("a")}},
			Resource{Ref: ref("c")},
		))
		err := g.Validate()
		require.ErrorIs(t, err, ErrCycle)
		assert.Contains(t, err.Error(), "ec2.Subnet::a")
		assert.NotContains(t, err.Error(), "ec2.Subnet::c")
	})

	t.Run("ok", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.Add(Resource{Ref: ref("a")}, Resource{Ref: ref("b"), Parent: ref("a")}))
		assert.NoError(t, g.Validate())
	})
}

func TestGraphDependents(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Add(
		Resource{Ref: ref("vpc")},
		Resource{Ref: ref("x"), Parent: ref("vpc")},
		Resource{Ref: ref("y"), DependsOn: []Ref{ref("vpc")}},
	))
	assert.Equal(t, []Ref{ref("x"), ref("y")}, g.Dependents(ref("vpc")))
	assert.Equal(t, []Ref{ref("vpc")}, g.Dependencies(ref("y")))
}

func TestMergeTags(t *testing.T) {
	base := map[string]string{"a": "1", "Name": "x"}
	out := MergeTags(base, map[string]string{"Name": "y"})
	assert.Equal(t, "y", out["Name"])
	assert.Equal(t, "x", base["Name"])
}

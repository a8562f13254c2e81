package plan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"csf-controls-demo/internal/decl"
	"csf-controls-demo/internal/settings"
	"csf-controls-demo/internal/topology"
)

func testInputs() Inputs {
	s := settings.Defaults()
	s.SSHKeyName = "ops"
	return Inputs{
		Settings: s,
		Region:   "us-east-1",
		Zones:    []string{"us-east-1a", "us-east-1b", "us-east-1c"},
		ImageID:  "ami-0abc",
	}
}

func TestBuild(t *testing.T) {
	p, err := Build(testInputs())
	require.NoError(t, err)

	assert.Equal(t, []string{"us-east-1a", "us-east-1b"}, p.Topology.Zones())
	assert.Equal(t, 47+4+1+11, p.Graph.Len())
	assert.Len(t, p.Order, p.Graph.Len())

	assert.Equal(t, "/demoWebCluster/nginx_stub_status_config", p.Parameter.Path)
	assert.Equal(t, "String", p.Parameter.Type)
	assert.Equal(t, "text", p.Parameter.DataType)
	assert.Equal(t, p.StubStatus, p.Parameter.Value)
	assert.Contains(t, p.StubStatus, "listen 0.0.0.0:8113;")
	assert.Contains(t, p.StubStatus, "allow 10.100.0.0/16;")
	assert.Contains(t, p.StubStatus, "location = /metrics")
	assert.Contains(t, p.UserData, "/demoWebCluster/nginx_stub_status_config")
	assert.Contains(t, p.UserData, "us-east-1")

	assert.Equal(t, "/metrics", p.Balancer.TargetGroup.HealthCheck.Path)
	assert.Equal(t, 8113, p.Balancer.TargetGroup.HealthCheck.Port)
	assert.Equal(t, p.UserData, p.Compute.Launch.UserData())
	assert.Contains(t, p.Compute.Launch.DependsOn, p.Parameter.Ref)
}

func TestOrderRespectsDependencies(t *testing.T) {
	p, err := Build(testInputs())
	require.NoError(t, err)

	pos := make(map[decl.Ref]int, len(p.Order))
	for i, ref := range p.Order {
		pos[ref] = i
	}
	for _, ref := range p.Order {
		for _, dep := range p.Graph.Dependencies(ref) {
			assert.Less(t, pos[dep], pos[ref], "%s must follow %s", ref, dep)
		}
	}
	assert.Equal(t, p.Topology.Vpc.Ref, p.Order[0])
}

func TestBuildIsDeterministic(t *testing.T) {
	a, err := Build(testInputs())
	require.NoError(t, err)
	b, err := Build(testInputs())
	require.NoError(t, err)

	assert.Equal(t, a.Order, b.Order)
	assert.Equal(t, a.ConfigHash, b.ConfigHash)
	assert.Equal(t, a.Summary(), b.Summary())
}

func TestConfigHashFollowsRenderedConfig(t *testing.T) {
	a, err := Build(testInputs())
	require.NoError(t, err)

	in := testInputs()
	in.Settings.MonitoringPath = "status"
	b, err := Build(in)
	require.NoError(t, err)
	assert.NotEqual(t, a.ConfigHash, b.ConfigHash)

	// The image is not part of the rendered config.
	in = testInputs()
	in.ImageID = "ami-0def"
	c, err := Build(in)
	require.NoError(t, err)
	assert.Equal(t, a.ConfigHash, c.ConfigHash)

	assert.NotEqual(t, contentHash("ab", "c"), contentHash("a", "bc"))
}

func TestBuildErrors(t *testing.T) {
	in := testInputs()
	in.Settings.SSHKeyName = ""
	_, err := Build(in)
	assert.ErrorIs(t, err, settings.ErrMissingSSHKey)

	in = testInputs()
	in.Zones = []string{"us-east-1a"}
	_, err = Build(in)
	assert.ErrorIs(t, err, topology.ErrInsufficientZones)

	in = testInputs()
	in.Region = ""
	_, err = Build(in)
	assert.Error(t, err)

	in = testInputs()
	in.ImageID = ""
	_, err = Build(in)
	assert.Error(t, err)
}

func TestSummary(t *testing.T) {
	p, err := Build(testInputs())
	require.NoError(t, err)

	s := p.Summary()
	assert.Equal(t, Controls{
		CrossZoneLoadBalancing: true,
		DeletionProtection:     true,
		HealthCheck:            true,
		PublicIP:               false,
		InstanceProfile:        true,
		IMDSv2:                 true,
		PrivateSubnetsOnly:     true,
		NatPerZone:             true,
	}, s.Controls)
	assert.Equal(t, 4, s.Kinds["ec2.Subnet"])
	assert.Equal(t, 2, s.Kinds["ec2.NatGateway"])
	assert.Equal(t, 1, s.Kinds["autoscaling.Group"])
	assert.Contains(t, s.KindNames(), "ssm.Parameter")

	out, err := s.YAML()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "region: us-east-1\n"))

	var back Summary
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, s.Resources, back.Resources)
}

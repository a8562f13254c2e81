package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csf-controls-demo/internal/awsapi"
	"csf-controls-demo/internal/plan"
	"csf-controls-demo/internal/settings"
)

type fakeEC2 struct {
	// instances are returned only for their group's tag.
	group     string
	instances []awsapi.Instance
	tables    []awsapi.RouteTable
	gateways  []awsapi.NatGateway
	subnets   map[string]awsapi.Subnet
	err       error
}

func (f *fakeEC2) InstancesByTag(ctx context.Context, key, value string) ([]awsapi.Instance, error) {
	if key != GroupNameTag || value != f.group {
		return nil, f.err
	}
	return f.instances, f.err
}

func (f *fakeEC2) RouteTables(ctx context.Context, pattern string) ([]awsapi.RouteTable, error) {
	return f.tables, nil
}

func (f *fakeEC2) NatGateways(ctx context.Context, ids []string) ([]awsapi.NatGateway, error) {
	return f.gateways, nil
}

func (f *fakeEC2) Subnets(ctx context.Context, ids []string) (map[string]awsapi.Subnet, error) {
	return f.subnets, nil
}

type fakeELB struct {
	attrs map[string]string
	tgs   []awsapi.TargetGroup
	err   error
}

func (f *fakeELB) LoadBalancer(ctx context.Context, name string) (awsapi.LoadBalancer, error) {
	if f.err != nil {
		return awsapi.LoadBalancer{}, f.err
	}
	return awsapi.LoadBalancer{Name: name, ARN: "arn:lb"}, nil
}

func (f *fakeELB) Attributes(ctx context.Context, lbARN string) (map[string]string, error) {
	return f.attrs, nil
}

func (f *fakeELB) TargetGroups(ctx context.Context, lbARN string) ([]awsapi.TargetGroup, error) {
	return f.tgs, nil
}

func compliant() (*fakeEC2, *fakeELB) {
	ec2 := &fakeEC2{
		group: "demoWebCluster",
		instances: []awsapi.Instance{{
			ID:              "i-1",
			InstanceProfile: "arn:aws:iam::1:instance-profile/demo",
			HTTPTokens:      "required",
		}},
		tables: []awsapi.RouteTable{
			{ID: "rtb-a", Name: "demo-private-rt-a", SubnetIDs: []string{"priv-a"}, DefaultNatGateway: "nat-a"},
			{ID: "rtb-b", Name: "demo-private-rt-b", SubnetIDs: []string{"priv-b"}, DefaultNatGateway: "nat-b"},
		},
		gateways: []awsapi.NatGateway{
			{ID: "nat-a", SubnetID: "pub-a"},
			{ID: "nat-b", SubnetID: "pub-b"},
		},
		subnets: map[string]awsapi.Subnet{
			"priv-a": {ID: "priv-a", Zone: "a"},
			"priv-b": {ID: "priv-b", Zone: "b"},
			"pub-a":  {ID: "pub-a", Zone: "a"},
			"pub-b":  {ID: "pub-b", Zone: "b"},
		},
	}
	elb := &fakeELB{
		attrs: map[string]string{AttrDeletionProtection: "true", AttrCrossZone: "true"},
		tgs: []awsapi.TargetGroup{{
			Name:               "demo-target-group",
			Port:               80,
			HealthCheckEnabled: true,
			HealthCheckPort:    "8113",
			HealthCheckPath:    "/metrics",
		}},
	}
	return ec2, elb
}

func expectations() Expectations {
	s := settings.Defaults()
	return ExpectationsFor(s)
}

func TestExpectationsFor(t *testing.T) {
	exp := expectations()
	assert.Equal(t, "demo-pub-alb", exp.LoadBalancerName)
	assert.Equal(t, "demoWebCluster", exp.GroupName)
	assert.Equal(t, "demo-private-rt-*", exp.PrivateRouteTables)
	assert.Equal(t, 8113, exp.MonitoringPort)
	assert.Equal(t, "/metrics", exp.MonitoringPath)
}

func TestExpectationsMatchDeclaredGroup(t *testing.T) {
	s := settings.Defaults()
	s.SSHKeyName = "demo-key"
	s.ClusterName = "otherCluster"
	p, err := plan.Build(plan.Inputs{
		Settings: s,
		Region:   "us-east-1",
		Zones:    []string{"us-east-1a", "us-east-1b"},
		ImageID:  "ami-0123456789abcdef0",
	})
	require.NoError(t, err)

	exp := ExpectationsFor(s)
	assert.Equal(t, p.Compute.Scaling.Name(), exp.GroupName)
	assert.Equal(t, p.Balancer.LoadBalancer.Ref.Name, exp.LoadBalancerName)
}

func TestRunAuditsOnlyTheDeclaredGroup(t *testing.T) {
	ec2, elb := compliant()
	ec2.group = "someOtherGroup"
	ec2.instances[0].PublicIP = "54.1.2.3"

	r, err := Run(context.Background(), ec2, elb, expectations())
	require.NoError(t, err)
	require.Len(t, r.Failed(), 1)
	assert.Equal(t, "instance.present", r.Failed()[0].Check)
	assert.Equal(t, "demoWebCluster", r.Failed()[0].Resource)
}

func TestRunCompliant(t *testing.T) {
	ec2, elb := compliant()
	r, err := Run(context.Background(), ec2, elb, expectations())
	require.NoError(t, err)
	assert.True(t, r.OK(), "%+v", r.Failed())
	assert.NotEmpty(t, r.Findings)
}

func TestRunFindsViolations(t *testing.T) {
	ec2, elb := compliant()
	elb.attrs[AttrDeletionProtection] = "false"
	elb.tgs[0].HealthCheckEnabled = false
	ec2.instances[0].PublicIP = "54.1.2.3"
	ec2.instances[0].InstanceProfile = ""
	ec2.tables[1].DefaultNatGateway = ""
	ec2.tables[1].DefaultGateway = "igw-1"
	// nat-a moved into zone b.
	ec2.gateways[0].SubnetID = "pub-b"

	r, err := Run(context.Background(), ec2, elb, expectations())
	require.NoError(t, err)
	assert.False(t, r.OK())

	failed := map[string]string{}
	for _, f := range r.Failed() {
		failed[f.Check+"/"+f.Resource] = f.Detail
	}
	assert.Contains(t, failed, "lb.deletion-protection/demo-pub-alb")
	assert.Contains(t, failed, "tg.health-check/demo-target-group")
	assert.Equal(t, "public ip 54.1.2.3", failed["instance.no-public-ip/i-1"])
	assert.Contains(t, failed, "instance.profile/i-1")
	assert.Equal(t, "default route targets igw-1", failed["route.nat-default/demo-private-rt-b"])
	assert.Contains(t, failed, "route.nat-zone/demo-private-rt-a")
	assert.NotContains(t, failed, "lb.cross-zone/demo-pub-alb")
	assert.Len(t, failed, 6)
}

func TestRunWrongHealthCheckTarget(t *testing.T) {
	ec2, elb := compliant()
	elb.tgs[0].HealthCheckPort = "traffic-port"

	r, err := Run(context.Background(), ec2, elb, expectations())
	require.NoError(t, err)
	require.Len(t, r.Failed(), 1)
	assert.Equal(t, "tg.health-check-target", r.Failed()[0].Check)
	assert.Equal(t, "probes 80/metrics, want 8113/metrics", r.Failed()[0].Detail)
}

func TestRunNothingDeployed(t *testing.T) {
	ec2, elb := compliant()
	ec2.instances = nil
	ec2.tables = nil
	elb.tgs = nil

	r, err := Run(context.Background(), ec2, elb, expectations())
	require.NoError(t, err)
	checks := []string{}
	for _, f := range r.Failed() {
		checks = append(checks, f.Check)
	}
	assert.ElementsMatch(t, []string{"tg.health-check", "instance.present", "route.nat-default"}, checks)
}

func TestRunPropagatesAPIErrors(t *testing.T) {
	boom := errors.New("access denied")

	ec2, elb := compliant()
	elb.err = boom
	_, err := Run(context.Background(), ec2, elb, expectations())
	assert.ErrorIs(t, err, boom)

	ec2, elb = compliant()
	ec2.err = boom
	_, err = Run(context.Background(), ec2, elb, expectations())
	assert.ErrorIs(t, err, boom)
}

// Package audit checks a deployed stack against the controls the plan
// declares. It only reads; findings are reported, never fixed.
package audit

import (
	"context"
	"fmt"
	"sort"

	"csf-controls-demo/internal/awsapi"
	"csf-controls-demo/internal/settings"
)

const (
	AttrDeletionProtection = "deletion_protection.enabled"
	AttrCrossZone          = "load_balancing.cross_zone.enabled"

	// GroupNameTag is set by the autoscaling service on every instance it
	// launches, whatever Name the group propagates.
	GroupNameTag = "aws:autoscaling:groupName"
)

type EC2 interface {
	InstancesByTag(ctx context.Context, key, value string) ([]awsapi.Instance, error)
	RouteTables(ctx context.Context, pattern string) ([]awsapi.RouteTable, error)
	NatGateways(ctx context.Context, ids []string) ([]awsapi.NatGateway, error)
	Subnets(ctx context.Context, ids []string) (map[string]awsapi.Subnet, error)
}

type ELB interface {
	LoadBalancer(ctx context.Context, name string) (awsapi.LoadBalancer, error)
	Attributes(ctx context.Context, lbARN string) (map[string]string, error)
	TargetGroups(ctx context.Context, lbARN string) ([]awsapi.TargetGroup, error)
}

// Expectations name the deployed resources and the values they must carry.
type Expectations struct {
	LoadBalancerName string
	// GroupName is the autoscaling group whose instances are audited.
	GroupName string
	// PrivateRouteTables is a Name tag filter, "*" allowed.
	PrivateRouteTables string
	MonitoringPort     int
	MonitoringPath     string
}

// ExpectationsFor derives what a stack built from s should look like.
func ExpectationsFor(s settings.Settings) Expectations {
	return Expectations{
		LoadBalancerName:   s.Prefix + "-pub-alb",
		GroupName:          s.ClusterName,
		PrivateRouteTables: s.Prefix + "-private-rt-*",
		MonitoringPort:     s.MonitoringPort,
		MonitoringPath:     "/" + s.MonitoringPath,
	}
}

type Finding struct {
	Check    string `yaml:"check"`
	Resource string `yaml:"resource"`
	Passed   bool   `yaml:"passed"`
	Detail   string `yaml:"detail,omitempty"`
}

type Report struct {
	Findings []Finding `yaml:"findings"`
}

func (r *Report) add(check, resource string, passed bool, format string, args ...any) {
	f := Finding{Check: check, Resource: resource, Passed: passed}
	if !passed {
		f.Detail = fmt.Sprintf(format, args...)
	}
	r.Findings = append(r.Findings, f)
}

func (r Report) Failed() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if !f.Passed {
			out = append(out, f)
		}
	}
	return out
}

func (r Report) OK() bool {
	return len(r.Failed()) == 0
}

// Run audits the load balancer, the fleet and the private routing.
func Run(ctx context.Context, ec2 EC2, elb ELB, exp Expectations) (Report, error) {
	var r Report
	if err := checkLoadBalancer(ctx, elb, exp, &r); err != nil {
		return r, err
	}
	if err := checkInstances(ctx, ec2, exp, &r); err != nil {
		return r, err
	}
	if err := checkRouting(ctx, ec2, exp, &r); err != nil {
		return r, err
	}
	return r, nil
}

func checkLoadBalancer(ctx context.Context, elb ELB, exp Expectations, r *Report) error {
	lb, err := elb.LoadBalancer(ctx, exp.LoadBalancerName)
	if err != nil {
		return err
	}
	attrs, err := elb.Attributes(ctx, lb.ARN)
	if err != nil {
		return err
	}
	for _, a := range []struct{ check, key string }{
		{"lb.deletion-protection", AttrDeletionProtection},
		{"lb.cross-zone", AttrCrossZone},
	} {
		v := attrs[a.key]
		r.add(a.check, lb.Name, v == "true", "%s is %q", a.key, v)
	}

	tgs, err := elb.TargetGroups(ctx, lb.ARN)
	if err != nil {
		return err
	}
	if len(tgs) == 0 {
		r.add("tg.health-check", lb.Name, false, "no target groups")
	}
	for _, tg := range tgs {
		r.add("tg.health-check", tg.Name, tg.HealthCheckEnabled, "health check disabled")
		port := tg.HealthCheckPortNumber()
		ok := port == exp.MonitoringPort && tg.HealthCheckPath == exp.MonitoringPath
		r.add("tg.health-check-target", tg.Name, ok, "probes %d%s, want %d%s",
			port, tg.HealthCheckPath, exp.MonitoringPort, exp.MonitoringPath)
	}
	return nil
}

func checkInstances(ctx context.Context, ec2 EC2, exp Expectations, r *Report) error {
	instances, err := ec2.InstancesByTag(ctx, GroupNameTag, exp.GroupName)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		r.add("instance.present", exp.GroupName, false, "no running instances")
		return nil
	}
	for _, i := range instances {
		r.add("instance.no-public-ip", i.ID, i.PublicIP == "", "public ip %s", i.PublicIP)
		r.add("instance.profile", i.ID, i.InstanceProfile != "", "no instance profile")
		r.add("instance.imdsv2", i.ID, i.HTTPTokens == "required", "http tokens %q", i.HTTPTokens)
	}
	return nil
}

// checkRouting verifies every private route table sends its default route to
// a NAT gateway in the same zone as the subnets it serves.
func checkRouting(ctx context.Context, ec2 EC2, exp Expectations, r *Report) error {
	tables, err := ec2.RouteTables(ctx, exp.PrivateRouteTables)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		r.add("route.nat-default", exp.PrivateRouteTables, false, "no private route tables")
		return nil
	}

	natIDs := make(map[string]bool)
	subnetIDs := make(map[string]bool)
	for _, t := range tables {
		if t.DefaultNatGateway != "" {
			natIDs[t.DefaultNatGateway] = true
		}
		for _, s := range t.SubnetIDs {
			subnetIDs[s] = true
		}
	}
	gateways, err := ec2.NatGateways(ctx, keys(natIDs))
	if err != nil {
		return err
	}
	natSubnet := make(map[string]string, len(gateways))
	for _, g := range gateways {
		natSubnet[g.ID] = g.SubnetID
		subnetIDs[g.SubnetID] = true
	}
	subnets, err := ec2.Subnets(ctx, keys(subnetIDs))
	if err != nil {
		return err
	}

	for _, t := range tables {
		name := t.Name
		if name == "" {
			name = t.ID
		}
		if t.DefaultNatGateway == "" {
			target := t.DefaultGateway
			if target == "" {
				target = "nothing"
			}
			r.add("route.nat-default", name, false, "default route targets %s", target)
			continue
		}
		r.add("route.nat-default", name, true, "")

		natZone := subnets[natSubnet[t.DefaultNatGateway]].Zone
		same := natZone != ""
		for _, s := range t.SubnetIDs {
			if subnets[s].Zone != natZone {
				same = false
			}
		}
		r.add("route.nat-zone", name, same, "nat gateway %s is in zone %q", t.DefaultNatGateway, natZone)
	}
	return nil
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

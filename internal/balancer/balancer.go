// Package balancer declares the internet-facing application load balancer in
// front of the web fleet.
package balancer

import (
	"errors"
	"fmt"

	"csf-controls-demo/internal/decl"
	"csf-controls-demo/internal/topology"
)

const ProtocolHTTP = "HTTP"

type Config struct {
	Prefix       string
	Region       string
	ListenerPort int
	TargetPort   int
	HealthCheck  HealthCheck
	Tags         map[string]string
}

// HealthCheck probes the monitoring endpoint of each target. It is always
// enabled.
type HealthCheck struct {
	Protocol         string
	Port             int
	Path             string
	HealthyThreshold int
	Interval         int
}

func (HealthCheck) Enabled() bool { return true }

// LoadBalancer carries no switch for cross-zone balancing or deletion
// protection: both are always on.
type LoadBalancer struct {
	decl.Resource
	Type           string
	SecurityGroups []decl.Ref
	Subnets        []decl.Ref
}

func (LoadBalancer) Internal() bool           { return false }
func (LoadBalancer) CrossZone() bool          { return true }
func (LoadBalancer) DeletionProtection() bool { return true }

type TargetGroup struct {
	decl.Resource
	Port        int
	Protocol    string
	Vpc         decl.Ref
	HealthCheck HealthCheck
}

// Listener forwards everything it receives to TargetGroup.
type Listener struct {
	decl.Resource
	Port        int
	Protocol    string
	TargetGroup decl.Ref
}

type Balancer struct {
	SecurityGroup topology.SecurityGroup
	LoadBalancer  LoadBalancer
	TargetGroup   TargetGroup
	Listener      Listener
}

func (b *Balancer) Resources() []decl.Resource {
	return []decl.Resource{
		b.SecurityGroup.Resource,
		b.LoadBalancer.Resource,
		b.TargetGroup.Resource,
		b.Listener.Resource,
	}
}

// Build declares the load balancer across the public subnets of topo.
func Build(cfg Config, topo *topology.Topology) (*Balancer, error) {
	if topo == nil || len(topo.Pairs) == 0 {
		return nil, errors.New("load balancer needs at least one public subnet")
	}
	if cfg.ListenerPort <= 0 || cfg.TargetPort <= 0 {
		return nil, fmt.Errorf("invalid listener/target port %d/%d", cfg.ListenerPort, cfg.TargetPort)
	}
	if cfg.HealthCheck.Port <= 0 || cfg.HealthCheck.Path == "" {
		return nil, errors.New("health check needs a port and a path")
	}
	name := func(s string) string { return cfg.Prefix + "-" + s }
	tags := func(n string) map[string]string {
		return decl.MergeTags(cfg.Tags, map[string]string{"Name": n})
	}
	vpc := topo.Vpc.Ref

	sg := topology.SecurityGroup{
		Resource: decl.Resource{
			Ref:    decl.NewRef(decl.KindSecurityGroup, name("alb-security-group")),
			Parent: vpc,
			Refs:   []decl.Ref{vpc},
			Tags:   tags(fmt.Sprintf("%s-sg-%s", cfg.Prefix, cfg.Region)),
		},
		Description: "Allow inbound traffic from WAN over HTTP",
		Ingress: []topology.SecurityRule{{
			Description: "Allow HTTP from WAN",
			Protocol:    topology.ProtocolTCP,
			Ports:       topology.Port(cfg.ListenerPort),
			CIDRs:       []string{topology.AnyIPv4},
		}},
		Egress: []topology.SecurityRule{topology.EgressAll()},
	}

	subnets := topo.PublicSubnets()
	lb := LoadBalancer{
		Resource: decl.Resource{
			Ref:  decl.NewRef(decl.KindLoadBalancer, name("pub-alb")),
			Refs: append([]decl.Ref{sg.Ref}, subnets...),
			Tags: tags(name("public-alb")),
		},
		Type:           "application",
		SecurityGroups: []decl.Ref{sg.Ref},
		Subnets:        subnets,
	}

	hc := cfg.HealthCheck
	if hc.Protocol == "" {
		hc.Protocol = ProtocolHTTP
	}
	tg := TargetGroup{
		Resource: decl.Resource{
			Ref:    decl.NewRef(decl.KindTargetGroup, name("target-group")),
			Parent: lb.Ref,
			Refs:   []decl.Ref{vpc},
			Tags:   tags(name("alb-target-group")),
		},
		Port:        cfg.TargetPort,
		Protocol:    ProtocolHTTP,
		Vpc:         vpc,
		HealthCheck: hc,
	}

	listener := Listener{
		Resource: decl.Resource{
			Ref:    decl.NewRef(decl.KindListener, name("pub-alb-listener")),
			Parent: lb.Ref,
			Refs:   []decl.Ref{lb.Ref, tg.Ref},
		},
		Port:        cfg.ListenerPort,
		Protocol:    ProtocolHTTP,
		TargetGroup: tg.Ref,
	}

	return &Balancer{
		SecurityGroup: sg,
		LoadBalancer:  lb,
		TargetGroup:   tg,
		Listener:      listener,
	}, nil
}

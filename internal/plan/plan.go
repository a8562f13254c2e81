// Package plan runs the whole declaration pass: from settings, a region, the
// available zones and an image it produces every resource of the stack, in
// dependency order, without talking to any provider.
package plan

import (
	"errors"
	"fmt"

	"csf-controls-demo/internal/balancer"
	"csf-controls-demo/internal/compute"
	"csf-controls-demo/internal/decl"
	"csf-controls-demo/internal/render"
	"csf-controls-demo/internal/settings"
	"csf-controls-demo/internal/topology"
)

const (
	ParameterType     = "String"
	ParameterDataType = "text"
)

// Inputs are what the provider has to tell us before anything is declared.
type Inputs struct {
	Settings settings.Settings
	Region   string
	// Zones in the order the provider reports them. Only the first
	// Settings.ZoneCount() are used.
	Zones   []string
	ImageID string
}

// Parameter is the SSM parameter carrying the rendered monitoring config.
type Parameter struct {
	decl.Resource
	Path     string
	Type     string
	DataType string
	Value    string
}

type Plan struct {
	Inputs     Inputs
	Topology   *topology.Topology
	Balancer   *balancer.Balancer
	Compute    *compute.Compute
	Parameter  Parameter
	StubStatus string
	UserData   string
	// ConfigHash is the sha256 of everything an instance is booted from.
	ConfigHash string
	Graph      *decl.Graph
	Order      []decl.Ref
}

// Build declares the stack. Configuration errors are returned before
// anything is built.
func Build(in Inputs) (*Plan, error) {
	s := in.Settings
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if in.Region == "" {
		return nil, errors.New("region is required")
	}

	p := &Plan{Inputs: in}
	var err error

	p.StubStatus, err = render.StubStatus(s.MonitoringPort, s.MonitoringPath, s.VpcCIDR)
	if err != nil {
		return nil, fmt.Errorf("rendering stub status config: %w", err)
	}
	p.UserData, err = render.UserData(s.ParameterPath(), in.Region, s.NginxConfigPath)
	if err != nil {
		return nil, fmt.Errorf("rendering user data: %w", err)
	}
	p.ConfigHash = contentHash(p.StubStatus, p.UserData)

	p.Topology, err = topology.Build(topology.NetworkConfig{
		Prefix:         s.Prefix,
		Region:         in.Region,
		CIDR:           s.VpcCIDR,
		PublicCIDRs:    s.PublicSubnetCIDRs,
		PrivateCIDRs:   s.PrivateSubnetCIDRs,
		MonitoringPort: s.MonitoringPort,
		Tags:           s.Tags(),
	}, in.Zones)
	if err != nil {
		return nil, err
	}

	p.Balancer, err = balancer.Build(balancer.Config{
		Prefix:       s.Prefix,
		Region:       in.Region,
		ListenerPort: s.ServicePort,
		TargetPort:   s.ServicePort,
		HealthCheck: balancer.HealthCheck{
			Protocol:         balancer.ProtocolHTTP,
			Port:             s.MonitoringPort,
			Path:             "/" + s.MonitoringPath,
			HealthyThreshold: s.HealthyThreshold,
			Interval:         s.HealthCheckInterval,
		},
		Tags: s.Tags(),
	}, p.Topology)
	if err != nil {
		return nil, err
	}

	p.Parameter = Parameter{
		Resource: decl.Resource{
			Ref:  decl.NewRef(decl.KindParameter, s.Prefix+"-nginx-stub-config"),
			Tags: decl.MergeTags(s.Tags(), map[string]string{"Name": s.Prefix + "-nginx-config"}),
		},
		Path:     s.ParameterPath(),
		Type:     ParameterType,
		DataType: ParameterDataType,
		Value:    p.StubStatus,
	}

	p.Compute, err = compute.Build(compute.Config{
		Prefix:               s.Prefix,
		Region:               in.Region,
		ClusterName:          s.ClusterName,
		KeyName:              s.SSHKeyName,
		InstanceType:         s.InstanceType,
		ImageID:              in.ImageID,
		ServicePort:          s.ServicePort,
		MonitoringPort:       s.MonitoringPort,
		Capacity:             s.Capacity,
		MinHealthyPercentage: s.MinHealthyPercentage,
		InstanceWarmup:       s.InstanceWarmup,
		ConfigHash:           p.ConfigHash,
		Tags:                 s.Tags(),
	}, p.Topology, p.Balancer, p.UserData)
	if err != nil {
		return nil, err
	}
	// Instances fetch the parameter at first boot.
	p.Compute.Launch.DependsOn = append(p.Compute.Launch.DependsOn, p.Parameter.Ref)

	p.Graph = decl.NewGraph()
	for _, rs := range [][]decl.Resource{
		p.Topology.Resources(),
		p.Balancer.Resources(),
		{p.Parameter.Resource},
		p.Compute.Resources(),
	} {
		if err := p.Graph.Add(rs...); err != nil {
			return nil, err
		}
	}
	if err := p.Graph.Validate(); err != nil {
		return nil, err
	}
	p.Order, err = p.Graph.Order()
	if err != nil {
		return nil, err
	}
	return p, nil
}

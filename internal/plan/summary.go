package plan

import (
	"sort"

	"gopkg.in/yaml.v3"
)

// Summary is the operator view of a plan.
type Summary struct {
	Region       string         `yaml:"region"`
	Zones        []string       `yaml:"zones"`
	ImageID      string         `yaml:"image_id"`
	ConfigHash   string         `yaml:"config_hash"`
	Parameter    string         `yaml:"parameter"`
	Resources    int            `yaml:"resources"`
	Kinds        map[string]int `yaml:"kinds"`
	Controls     Controls       `yaml:"controls"`
	Declarations []string       `yaml:"declarations"`
}

// Controls are the security properties the plan guarantees.
type Controls struct {
	CrossZoneLoadBalancing bool `yaml:"cross_zone_load_balancing"`
	DeletionProtection     bool `yaml:"deletion_protection"`
	HealthCheck            bool `yaml:"health_check"`
	PublicIP               bool `yaml:"public_ip"`
	InstanceProfile        bool `yaml:"instance_profile"`
	IMDSv2                 bool `yaml:"imdsv2"`
	PrivateSubnetsOnly     bool `yaml:"private_subnets_only"`
	NatPerZone             bool `yaml:"nat_per_zone"`
}

func (p *Plan) Summary() Summary {
	s := Summary{
		Region:     p.Inputs.Region,
		Zones:      p.Topology.Zones(),
		ImageID:    p.Inputs.ImageID,
		ConfigHash: p.ConfigHash,
		Parameter:  p.Parameter.Path,
		Resources:  len(p.Order),
		Kinds:      make(map[string]int),
	}
	for _, ref := range p.Order {
		s.Kinds[ref.Kind.Short()]++
		s.Declarations = append(s.Declarations, ref.String())
	}

	lb := p.Balancer.LoadBalancer
	launch := p.Compute.Launch
	s.Controls = Controls{
		CrossZoneLoadBalancing: lb.CrossZone(),
		DeletionProtection:     lb.DeletionProtection(),
		HealthCheck:            p.Balancer.TargetGroup.HealthCheck.Enabled(),
		PublicIP:               launch.AssociatePublicIP(),
		InstanceProfile:        !launch.InstanceProfile().IsZero(),
		IMDSv2:                 launch.RequireIMDSv2(),
		PrivateSubnetsOnly:     subnetsPrivate(p),
		NatPerZone:             natPerZone(p),
	}
	return s
}

func (s Summary) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// KindNames returns the kinds in the summary, sorted.
func (s Summary) KindNames() []string {
	out := make([]string, 0, len(s.Kinds))
	for k := range s.Kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func subnetsPrivate(p *Plan) bool {
	private := make(map[string]bool)
	for _, ref := range p.Topology.PrivateSubnets() {
		private[ref.Name] = true
	}
	for _, ref := range p.Compute.Scaling.Subnets() {
		if !private[ref.Name] {
			return false
		}
	}
	return true
}

func natPerZone(p *Plan) bool {
	seen := make(map[string]bool)
	for _, pair := range p.Topology.Pairs {
		if pair.Private.RouteTable.DefaultRoute.Target != pair.Nat.Ref || seen[pair.Nat.Ref.Name] {
			return false
		}
		seen[pair.Nat.Ref.Name] = true
	}
	return true
}

// Package topology builds the network layout of the stack: one VPC, an
// internet gateway, public and private network ACLs, and per availability
// zone a public/private subnet pair with its own NAT gateway.
package topology

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/hashicorp/go-multierror"

	"csf-controls-demo/internal/decl"
)

var (
	ErrInsufficientZones = errors.New("not enough availability zones")
	ErrCIDRMismatch      = errors.New("public and private subnet cidr counts differ")
	ErrInvalidCIDR       = errors.New("invalid cidr")
	ErrOverlappingCIDR   = errors.New("overlapping subnet cidrs")
	ErrInvalidPort       = errors.New("invalid port")
)

// Rule numbers start at RuleNumberBase and grow by RuleNumberStep so rules can
// be inserted later without renumbering.
const (
	RuleNumberBase = 100
	RuleNumberStep = 10
)

type NetworkConfig struct {
	Prefix         string
	Region         string
	CIDR           string
	PublicCIDRs    []string
	PrivateCIDRs   []string
	MonitoringPort int
	Tags           map[string]string
}

// ZoneCount is the number of subnet pairs the config asks for.
func (c NetworkConfig) ZoneCount() int {
	return len(c.PublicCIDRs)
}

// Validate checks the config against the zones the provider reports.
func (c NetworkConfig) Validate(zones []string) error {
	var result *multierror.Error

	n := len(c.PublicCIDRs)
	if n == 0 {
		result = multierror.Append(result, fmt.Errorf("%w: no subnet pairs requested", ErrInvalidCIDR))
	}
	if len(c.PrivateCIDRs) != n {
		result = multierror.Append(result, fmt.Errorf("%w: %d public, %d private", ErrCIDRMismatch, n, len(c.PrivateCIDRs)))
	}
	if len(zones) < n {
		result = multierror.Append(result, fmt.Errorf("%w: %d available, %d required", ErrInsufficientZones, len(zones), n))
	} else {
		seen := make(map[string]bool, n)
		for i, z := range zones[:n] {
			if z == "" {
				result = multierror.Append(result, fmt.Errorf("availability zone %d has no name", i))
			} else if seen[z] {
				result = multierror.Append(result, fmt.Errorf("availability zone %s listed twice", z))
			}
			seen[z] = true
		}
	}

	if c.MonitoringPort <= 0 || c.MonitoringPort > 65535 {
		result = multierror.Append(result, fmt.Errorf("%w: monitoring port %d", ErrInvalidPort, c.MonitoringPort))
	}

	vpc, err := netip.ParsePrefix(c.CIDR)
	if err != nil {
		return multierror.Append(result, fmt.Errorf("%w: vpc %q: %v", ErrInvalidCIDR, c.CIDR, err)).ErrorOrNil()
	}

	var subnets []netip.Prefix
	var names []string
	for _, group := range []struct {
		kind  string
		cidrs []string
	}{{"public", c.PublicCIDRs}, {"private", c.PrivateCIDRs}} {
		for _, s := range group.cidrs {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("%w: %s subnet %q: %v", ErrInvalidCIDR, group.kind, s, err))
				continue
			}
			if p.Masked() != p {
				result = multierror.Append(result, fmt.Errorf("%w: %s subnet %q is not a network address", ErrInvalidCIDR, group.kind, s))
				continue
			}
			if p.Bits() < vpc.Bits() || !vpc.Contains(p.Addr()) {
				result = multierror.Append(result, fmt.Errorf("%w: %s subnet %s is outside vpc %s", ErrInvalidCIDR, group.kind, s, c.CIDR))
				continue
			}
			subnets = append(subnets, p)
			names = append(names, s)
		}
	}
	for i := range subnets {
		for j := i + 1; j < len(subnets); j++ {
			if subnets[i].Overlaps(subnets[j]) {
				result = multierror.Append(result, fmt.Errorf("%w: %s and %s", ErrOverlappingCIDR, names[i], names[j]))
			}
		}
	}
	return result.ErrorOrNil()
}

// Topology is the declared network. It is a value: nothing in it changes
// after Build returns.
type Topology struct {
	Config          NetworkConfig
	Vpc             decl.Resource
	InternetGateway decl.Resource
	PublicACL       ACL
	PrivateACL      ACL
	Pairs           []SubnetPair
	EndpointClasses []EndpointClass
}

// Build declares the topology for the first ZoneCount zones. It fails without
// declaring anything when the config is invalid or the provider reports
// fewer zones than subnet pairs.
func Build(cfg NetworkConfig, zones []string) (*Topology, error) {
	if err := cfg.Validate(zones); err != nil {
		return nil, err
	}
	b := newBuilder(cfg)

	t := &Topology{
		Config:          cfg,
		Vpc:             b.vpc,
		InternetGateway: b.igw,
		PublicACL:       b.publicACL(),
		PrivateACL:      b.privateACL(),
	}
	t.Pairs = make([]SubnetPair, cfg.ZoneCount())
	for i, zone := range zones[:cfg.ZoneCount()] {
		t.Pairs[i] = b.pair(i, zone)
	}
	t.EndpointClasses = b.endpointClasses(t.PrivateSubnets())
	return t, nil
}

func (t *Topology) Zones() []string {
	out := make([]string, len(t.Pairs))
	for i, p := range t.Pairs {
		out[i] = p.Zone
	}
	return out
}

func (t *Topology) PublicSubnets() []decl.Ref {
	out := make([]decl.Ref, len(t.Pairs))
	for i, p := range t.Pairs {
		out[i] = p.Public.Ref
	}
	return out
}

func (t *Topology) PrivateSubnets() []decl.Ref {
	out := make([]decl.Ref, len(t.Pairs))
	for i, p := range t.Pairs {
		out[i] = p.Private.Ref
	}
	return out
}

func (t *Topology) EndpointClass(name string) (EndpointClass, bool) {
	for _, c := range t.EndpointClasses {
		if c.Name == name {
			return c, true
		}
	}
	return EndpointClass{}, false
}

// Resources returns every declaration in an order where each resource follows
// the ones it references.
func (t *Topology) Resources() []decl.Resource {
	out := []decl.Resource{t.Vpc, t.InternetGateway}
	for _, acl := range []ACL{t.PublicACL, t.PrivateACL} {
		out = append(out, acl.Resource)
		for _, r := range acl.Rules {
			out = append(out, r.Resource)
		}
	}
	for _, p := range t.Pairs {
		out = append(out, subnetResources(p.Public)...)
		out = append(out, p.Nat.ElasticIP, p.Nat.Resource)
		out = append(out, subnetResources(p.Private)...)
	}
	for _, c := range t.EndpointClasses {
		out = append(out, c.SecurityGroup.Resource)
		for _, e := range c.Endpoints {
			out = append(out, e.Resource)
		}
	}
	return out
}

func subnetResources(s Subnet) []decl.Resource {
	return []decl.Resource{
		s.Resource,
		s.ACLAssociation,
		s.RouteTable.Resource,
		s.RouteTable.Association,
		s.RouteTable.DefaultRoute.Resource,
	}
}

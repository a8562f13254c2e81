package topology

import "csf-controls-demo/internal/decl"

const (
	AnyIPv4      = "0.0.0.0/0"
	ProtocolTCP  = "tcp"
	ProtocolAll  = "-1"
	PortHTTP     = 80
	PortHTTPS    = 443
	EphemeralMin = 1024
	EphemeralMax = 65535
)

type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

type Action string

const (
	Allow Action = "allow"
	Deny  Action = "deny"
)

// PortRange is inclusive on both ends. The zero value means all ports.
type PortRange struct {
	From int
	To   int
}

func Port(p int) PortRange {
	return PortRange{From: p, To: p}
}

func (r PortRange) Contains(p int) bool {
	return p >= r.From && p <= r.To
}

// AclRule is one numbered entry of a network ACL. Lower priorities are
// evaluated first and the first match wins.
type AclRule struct {
	decl.Resource
	Direction Direction
	Priority  int
	Protocol  string
	Action    Action
	CIDR      string
	Ports     PortRange
}

type ACL struct {
	decl.Resource
	Rules []AclRule
}

// RulesFor returns the rules of one direction in priority order.
func (a ACL) RulesFor(d Direction) []AclRule {
	var out []AclRule
	for _, r := range a.Rules {
		if r.Direction == d {
			out = append(out, r)
		}
	}
	return out
}

// Route sends Destination to Target, an internet gateway or a NAT gateway.
type Route struct {
	decl.Resource
	Destination string
	Target      decl.Ref
}

type RouteTable struct {
	decl.Resource
	Association  decl.Resource
	DefaultRoute Route
}

type Subnet struct {
	decl.Resource
	Zone           string
	CIDR           string
	Public         bool
	ACLAssociation decl.Resource
	RouteTable     RouteTable
}

type NatGateway struct {
	decl.Resource
	ElasticIP decl.Resource
	Subnet    decl.Ref
}

// SubnetPair is everything declared for one availability zone. Pairs share
// nothing but the VPC, the gateway and the ACLs.
type SubnetPair struct {
	Index   int
	Zone    string
	Public  Subnet
	Private Subnet
	Nat     NatGateway
}

type SecurityRule struct {
	Description string
	Protocol    string
	Ports       PortRange
	CIDRs       []string
	// Source is a security group allowed as traffic origin, zero when CIDRs
	// are used instead.
	Source decl.Ref
}

// EgressAll allows every outbound connection.
func EgressAll() SecurityRule {
	return SecurityRule{
		Description: "Egress all",
		Protocol:    ProtocolAll,
		CIDRs:       []string{AnyIPv4},
	}
}

type SecurityGroup struct {
	decl.Resource
	Description string
	Ingress     []SecurityRule
	Egress      []SecurityRule
}

type Endpoint struct {
	decl.Resource
	Service       string
	ServiceName   string
	Type          string
	Subnets       []decl.Ref
	SecurityGroup decl.Ref
}

// EndpointClass groups the private endpoints of one backing service behind a
// dedicated security group.
type EndpointClass struct {
	Name          string
	SecurityGroup SecurityGroup
	Endpoints     []Endpoint
}

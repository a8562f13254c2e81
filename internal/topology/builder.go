package topology

import (
	"fmt"
	"strings"

	"csf-controls-demo/internal/decl"
)

// builder holds the resources shared by every zone. pair and the ACL methods
// only read from it, so each zone is derived independently of the others.
type builder struct {
	cfg  NetworkConfig
	vpc  decl.Resource
	igw  decl.Resource
	pub  decl.Ref
	priv decl.Ref
}

func newBuilder(cfg NetworkConfig) builder {
	b := builder{cfg: cfg}
	b.vpc = decl.Resource{
		Ref:  decl.NewRef(decl.KindVpc, b.name("vpc")),
		Tags: b.tags(b.name("vpc", cfg.Region)),
	}
	b.igw = decl.Resource{
		Ref:    decl.NewRef(decl.KindInternetGateway, b.name("igw")),
		Parent: b.vpc.Ref,
		Refs:   []decl.Ref{b.vpc.Ref},
		Tags:   b.tags(b.name("igw", cfg.Region)),
	}
	b.pub = decl.NewRef(decl.KindNetworkAcl, b.name("public-acl"))
	b.priv = decl.NewRef(decl.KindNetworkAcl, b.name("private-acl"))
	return b
}

func (b builder) name(parts ...string) string {
	return b.cfg.Prefix + "-" + strings.Join(parts, "-")
}

func (b builder) tags(name string) map[string]string {
	return decl.MergeTags(b.cfg.Tags, map[string]string{"Name": name})
}

type ruleSpec struct {
	cidr  string
	ports PortRange
}

func (b builder) acl(ref decl.Ref, kind string, inbound, outbound []ruleSpec) ACL {
	acl := ACL{Resource: decl.Resource{
		Ref:    ref,
		Parent: b.vpc.Ref,
		Refs:   []decl.Ref{b.vpc.Ref},
		Tags:   b.tags(ref.Name),
	}}
	for _, group := range []struct {
		dir   Direction
		specs []ruleSpec
	}{{Inbound, inbound}, {Outbound, outbound}} {
		for i, spec := range group.specs {
			priority := RuleNumberBase + i*RuleNumberStep
			acl.Rules = append(acl.Rules, AclRule{
				Resource: decl.Resource{
					Ref:    decl.NewRef(decl.KindNetworkAclRule, b.name(kind, "nacl", string(group.dir), fmt.Sprint(priority))),
					Parent: ref,
					Refs:   []decl.Ref{ref},
				},
				Direction: group.dir,
				Priority:  priority,
				Protocol:  ProtocolTCP,
				Action:    Allow,
				CIDR:      spec.cidr,
				Ports:     spec.ports,
			})
		}
	}
	return acl
}

func (b builder) publicACL() ACL {
	web := []ruleSpec{
		{AnyIPv4, Port(PortHTTP)},
		{AnyIPv4, Port(PortHTTPS)},
		{AnyIPv4, PortRange{EphemeralMin, EphemeralMax}},
	}
	return b.acl(b.pub, "public", web, web)
}

// privateACL only admits web and monitoring traffic from inside the VPC. The
// ephemeral range is open to anywhere for replies to connections the private
// hosts initiate through the NAT gateways.
func (b builder) privateACL() ACL {
	inbound := []ruleSpec{
		{b.cfg.CIDR, Port(PortHTTP)},
		{b.cfg.CIDR, Port(PortHTTPS)},
		{b.cfg.CIDR, Port(b.cfg.MonitoringPort)},
		{AnyIPv4, PortRange{EphemeralMin, EphemeralMax}},
	}
	outbound := []ruleSpec{
		{AnyIPv4, Port(PortHTTP)},
		{AnyIPv4, Port(PortHTTPS)},
		{AnyIPv4, PortRange{EphemeralMin, EphemeralMax}},
	}
	return b.acl(b.priv, "private", inbound, outbound)
}

// pair derives everything declared for zone i.
func (b builder) pair(i int, zone string) SubnetPair {
	public := b.subnet(zone, "public", b.cfg.PublicCIDRs[i], b.pub, b.igw.Ref)

	eip := decl.Resource{
		Ref:    decl.NewRef(decl.KindEip, b.name("eip", zone)),
		Parent: b.vpc.Ref,
		Tags:   b.tags(b.name("eip", zone)),
	}
	nat := NatGateway{
		Resource: decl.Resource{
			Ref:       decl.NewRef(decl.KindNatGateway, b.name("nat-gateway", zone)),
			Parent:    b.vpc.Ref,
			Refs:      []decl.Ref{eip.Ref, public.Ref},
			DependsOn: []decl.Ref{b.vpc.Ref},
			Tags:      b.tags(b.name("nat", zone)),
		},
		ElasticIP: eip,
		Subnet:    public.Ref,
	}

	private := b.subnet(zone, "private", b.cfg.PrivateCIDRs[i], b.priv, nat.Ref)

	return SubnetPair{
		Index:   i,
		Zone:    zone,
		Public:  public,
		Private: private,
		Nat:     nat,
	}
}

// subnet declares a subnet with its ACL association and a dedicated route
// table whose default route goes to gateway.
func (b builder) subnet(zone, kind, cidr string, acl, gateway decl.Ref) Subnet {
	ref := decl.NewRef(decl.KindSubnet, b.name(kind, "subnet", zone))
	rt := decl.NewRef(decl.KindRouteTable, b.name(kind, "rt", zone))
	return Subnet{
		Resource: decl.Resource{
			Ref:    ref,
			Parent: b.vpc.Ref,
			Refs:   []decl.Ref{b.vpc.Ref},
			Tags:   b.tags(ref.Name),
		},
		Zone:   zone,
		CIDR:   cidr,
		Public: kind == "public",
		ACLAssociation: decl.Resource{
			Ref:    decl.NewRef(decl.KindNetworkAclAssociation, b.name(kind, "nacl-association", zone)),
			Parent: ref,
			Refs:   []decl.Ref{acl, ref},
		},
		RouteTable: RouteTable{
			Resource: decl.Resource{
				Ref:    rt,
				Parent: ref,
				Refs:   []decl.Ref{b.vpc.Ref},
				Tags:   b.tags(rt.Name),
			},
			Association: decl.Resource{
				Ref:    decl.NewRef(decl.KindRouteTableAssociation, b.name(kind, "rt-association", zone)),
				Parent: ref,
				Refs:   []decl.Ref{rt, ref},
			},
			DefaultRoute: Route{
				Resource: decl.Resource{
					Ref:    decl.NewRef(decl.KindRoute, b.name(kind, "wan-route", zone)),
					Parent: ref,
					Refs:   []decl.Ref{rt, gateway},
				},
				Destination: AnyIPv4,
				Target:      gateway,
			},
		},
	}
}

var endpointClasses = []struct {
	name        string
	description string
	// target is how the ingress rule names the service.
	target   string
	services []string
}{
	{"ssm", "Allow fetching SSM parameters from private subnets", "SSM Parameter Store", []string{"ssm", "ssmmessages", "ec2messages"}},
	{"s3", "Allow fetching S3 content from private subnets", "S3", []string{"s3"}},
}

// endpointClasses declares the interface endpoints once for the whole VPC,
// each class behind a security group that only accepts TLS from the VPC.
func (b builder) endpointClasses(subnets []decl.Ref) []EndpointClass {
	out := make([]EndpointClass, 0, len(endpointClasses))
	for _, class := range endpointClasses {
		sg := SecurityGroup{
			Resource: decl.Resource{
				Ref:    decl.NewRef(decl.KindSecurityGroup, b.name("vpc", class.name, "security-group")),
				Parent: b.vpc.Ref,
				Refs:   []decl.Ref{b.vpc.Ref},
				Tags:   b.tags(b.name("vpc", class.name, "sg", b.cfg.Region)),
			},
			Description: class.description,
			Ingress: []SecurityRule{{
				Description: "Allow HTTPS communication with " + class.target,
				Protocol:    ProtocolTCP,
				Ports:       Port(PortHTTPS),
				CIDRs:       []string{b.cfg.CIDR},
			}},
			Egress: []SecurityRule{EgressAll()},
		}
		ec := EndpointClass{Name: class.name, SecurityGroup: sg}
		for _, svc := range class.services {
			refs := append([]decl.Ref{b.vpc.Ref, sg.Ref}, subnets...)
			ec.Endpoints = append(ec.Endpoints, Endpoint{
				Resource: decl.Resource{
					Ref:    decl.NewRef(decl.KindVpcEndpoint, b.name("endpoint", svc)),
					Parent: b.vpc.Ref,
					Refs:   refs,
					Tags:   b.tags(b.name(svc, "endpoint", b.cfg.Region)),
				},
				Service:       svc,
				ServiceName:   fmt.Sprintf("com.amazonaws.%s.%s", b.cfg.Region, svc),
				Type:          "Interface",
				Subnets:       append([]decl.Ref(nil), subnets...),
				SecurityGroup: sg.Ref,
			})
		}
		out = append(out, ec)
	}
	return out
}

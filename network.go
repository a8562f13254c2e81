package main

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"csf-controls-demo/internal/decl"
	"csf-controls-demo/internal/topology"
)

type Network struct {
	vpc            *ec2.Vpc
	publicSubnets  []*ec2.Subnet
	privateSubnets []*ec2.Subnet
	natGateways    []*ec2.NatGateway
	endpoints      map[string]*ec2.VpcEndpoint
}

func NewNetwork(ctx *pulumi.Context, reg *registry, topo *topology.Topology) (*Network, error) {
	network := &Network{endpoints: make(map[string]*ec2.VpcEndpoint)}
	var err error

	network.vpc, err = ec2.NewVpc(ctx, topo.Vpc.Ref.Name, &ec2.VpcArgs{
		CidrBlock:          pulumi.String(topo.Config.CIDR),
		EnableDnsHostnames: pulumi.Bool(true),
		EnableDnsSupport:   pulumi.Bool(true),
		Tags:               tags(topo.Vpc),
	})
	if err != nil {
		return nil, fmt.Errorf("Error creating vpc: %w", err)
	}
	reg.add(topo.Vpc.Ref, network.vpc)

	opts, err := reg.options(topo.InternetGateway)
	if err != nil {
		return nil, err
	}
	igw, err := ec2.NewInternetGateway(ctx, topo.InternetGateway.Ref.Name, &ec2.InternetGatewayArgs{
		VpcId: network.vpc.ID(),
		Tags:  tags(topo.InternetGateway),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating internet gateway: %w", err)
	}
	reg.add(topo.InternetGateway.Ref, igw)

	for _, acl := range []topology.ACL{topo.PublicACL, topo.PrivateACL} {
		if err := newNetworkAcl(ctx, reg, network.vpc, acl); err != nil {
			return nil, err
		}
	}

	for _, pair := range topo.Pairs {
		public, err := newSubnet(ctx, reg, network.vpc, pair.Public)
		if err != nil {
			return nil, err
		}
		network.publicSubnets = append(network.publicSubnets, public)

		nat, err := newNatGateway(ctx, reg, pair.Nat)
		if err != nil {
			return nil, err
		}
		network.natGateways = append(network.natGateways, nat)

		private, err := newSubnet(ctx, reg, network.vpc, pair.Private)
		if err != nil {
			return nil, err
		}
		network.privateSubnets = append(network.privateSubnets, private)
	}

	for _, class := range topo.EndpointClasses {
		sg, err := newSecurityGroup(ctx, reg, network.vpc, class.SecurityGroup)
		if err != nil {
			return nil, err
		}
		for _, e := range class.Endpoints {
			subnets, err := reg.ids(e.Subnets)
			if err != nil {
				return nil, err
			}
			opts, err := reg.options(e.Resource)
			if err != nil {
				return nil, err
			}
			endpoint, err := ec2.NewVpcEndpoint(ctx, e.Ref.Name, &ec2.VpcEndpointArgs{
				VpcId:            network.vpc.ID(),
				ServiceName:      pulumi.String(e.ServiceName),
				VpcEndpointType:  pulumi.String(e.Type),
				SubnetIds:        subnets,
				SecurityGroupIds: pulumi.StringArray{sg.ID()},
				Tags:             tags(e.Resource),
			}, opts...)
			if err != nil {
				return nil, fmt.Errorf("Error creating %s endpoint: %w", e.Service, err)
			}
			reg.add(e.Ref, endpoint)
			network.endpoints[e.Service] = endpoint
		}
	}

	ctx.Export("vpcId", network.vpc.ID())
	return network, nil
}

func newNetworkAcl(ctx *pulumi.Context, reg *registry, vpc *ec2.Vpc, acl topology.ACL) error {
	opts, err := reg.options(acl.Resource)
	if err != nil {
		return err
	}
	nacl, err := ec2.NewNetworkAcl(ctx, acl.Ref.Name, &ec2.NetworkAclArgs{
		VpcId: vpc.ID(),
		Tags:  tags(acl.Resource),
	}, opts...)
	if err != nil {
		return fmt.Errorf("Error creating network acl: %w", err)
	}
	reg.add(acl.Ref, nacl)

	for _, rule := range acl.Rules {
		opts, err := reg.options(rule.Resource)
		if err != nil {
			return err
		}
		r, err := ec2.NewNetworkAclRule(ctx, rule.Ref.Name, &ec2.NetworkAclRuleArgs{
			NetworkAclId: nacl.ID(),
			RuleNumber:   pulumi.Int(rule.Priority),
			Egress:       pulumi.Bool(rule.Direction == topology.Outbound),
			Protocol:     pulumi.String(rule.Protocol),
			RuleAction:   pulumi.String(string(rule.Action)),
			CidrBlock:    pulumi.String(rule.CIDR),
			FromPort:     pulumi.Int(rule.Ports.From),
			ToPort:       pulumi.Int(rule.Ports.To),
		}, opts...)
		if err != nil {
			return fmt.Errorf("Error creating network acl rule: %w", err)
		}
		reg.add(rule.Ref, r)
	}
	return nil
}

// newSubnet declares a subnet with its ACL association, its route table and
// the default route of that table.
func newSubnet(ctx *pulumi.Context, reg *registry, vpc *ec2.Vpc, s topology.Subnet) (*ec2.Subnet, error) {
	opts, err := reg.options(s.Resource)
	if err != nil {
		return nil, err
	}
	subnet, err := ec2.NewSubnet(ctx, s.Ref.Name, &ec2.SubnetArgs{
		VpcId:               vpc.ID(),
		CidrBlock:           pulumi.String(s.CIDR),
		AvailabilityZone:    pulumi.String(s.Zone),
		MapPublicIpOnLaunch: pulumi.Bool(false),
		Tags:                tags(s.Resource),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating subnet: %w", err)
	}
	reg.add(s.Ref, subnet)

	aclID, err := reg.id(s.ACLAssociation.Refs[0])
	if err != nil {
		return nil, err
	}
	if opts, err = reg.options(s.ACLAssociation); err != nil {
		return nil, err
	}
	aclAssoc, err := ec2.NewNetworkAclAssociation(ctx, s.ACLAssociation.Ref.Name, &ec2.NetworkAclAssociationArgs{
		NetworkAclId: aclID,
		SubnetId:     subnet.ID(),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating network acl association: %w", err)
	}
	reg.add(s.ACLAssociation.Ref, aclAssoc)

	rt := s.RouteTable
	if opts, err = reg.options(rt.Resource); err != nil {
		return nil, err
	}
	table, err := ec2.NewRouteTable(ctx, rt.Ref.Name, &ec2.RouteTableArgs{
		VpcId: vpc.ID(),
		Tags:  tags(rt.Resource),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating route table: %w", err)
	}
	reg.add(rt.Ref, table)

	if opts, err = reg.options(rt.Association); err != nil {
		return nil, err
	}
	rtAssoc, err := ec2.NewRouteTableAssociation(ctx, rt.Association.Ref.Name, &ec2.RouteTableAssociationArgs{
		RouteTableId: table.ID(),
		SubnetId:     subnet.ID(),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating route table association: %w", err)
	}
	reg.add(rt.Association.Ref, rtAssoc)

	route := rt.DefaultRoute
	target, err := reg.id(route.Target)
	if err != nil {
		return nil, err
	}
	args := &ec2.RouteArgs{
		RouteTableId:         table.ID(),
		DestinationCidrBlock: pulumi.String(route.Destination),
	}
	switch route.Target.Kind {
	case decl.KindInternetGateway:
		args.GatewayId = target
	case decl.KindNatGateway:
		args.NatGatewayId = target
	default:
		return nil, fmt.Errorf("route %s: unsupported target %s", route.Ref, route.Target)
	}
	if opts, err = reg.options(route.Resource); err != nil {
		return nil, err
	}
	r, err := ec2.NewRoute(ctx, route.Ref.Name, args, opts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating route: %w", err)
	}
	reg.add(route.Ref, r)

	return subnet, nil
}

func newNatGateway(ctx *pulumi.Context, reg *registry, n topology.NatGateway) (*ec2.NatGateway, error) {
	opts, err := reg.options(n.ElasticIP)
	if err != nil {
		return nil, err
	}
	eip, err := ec2.NewEip(ctx, n.ElasticIP.Ref.Name, &ec2.EipArgs{
		Domain: pulumi.String("vpc"),
		Tags:   tags(n.ElasticIP),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating eip: %w", err)
	}
	reg.add(n.ElasticIP.Ref, eip)

	subnetID, err := reg.id(n.Subnet)
	if err != nil {
		return nil, err
	}
	if opts, err = reg.options(n.Resource); err != nil {
		return nil, err
	}
	nat, err := ec2.NewNatGateway(ctx, n.Ref.Name, &ec2.NatGatewayArgs{
		AllocationId: eip.ID(),
		SubnetId:     subnetID,
		Tags:         tags(n.Resource),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating nat gateway: %w", err)
	}
	reg.add(n.Ref, nat)
	return nat, nil
}

// newSecurityGroup declares a group with inline rules.
func newSecurityGroup(ctx *pulumi.Context, reg *registry, vpc *ec2.Vpc, sg topology.SecurityGroup) (*ec2.SecurityGroup, error) {
	ingressRules, err := ingress(reg, sg.Ingress)
	if err != nil {
		return nil, err
	}
	opts, err := reg.options(sg.Resource)
	if err != nil {
		return nil, err
	}
	group, err := ec2.NewSecurityGroup(ctx, sg.Ref.Name, &ec2.SecurityGroupArgs{
		Description:         pulumi.String(sg.Description),
		VpcId:               vpc.ID(),
		Ingress:             ingressRules,
		Egress:              egress(sg.Egress),
		RevokeRulesOnDelete: pulumi.Bool(true),
		Tags:                tags(sg.Resource),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating security group: %w", err)
	}
	reg.add(sg.Ref, group)
	return group, nil
}

func egress(rules []topology.SecurityRule) ec2.SecurityGroupEgressArray {
	out := ec2.SecurityGroupEgressArray{}
	for _, r := range rules {
		out = append(out, ec2.SecurityGroupEgressArgs{
			CidrBlocks:  pulumi.ToStringArray(r.CIDRs),
			Description: pulumi.String(r.Description),
			Protocol:    pulumi.String(r.Protocol),
			FromPort:    pulumi.Int(r.Ports.From),
			ToPort:      pulumi.Int(r.Ports.To),
		})
	}
	return out
}

func ingress(reg *registry, rules []topology.SecurityRule) (ec2.SecurityGroupIngressArray, error) {
	out := ec2.SecurityGroupIngressArray{}
	for _, r := range rules {
		args := ec2.SecurityGroupIngressArgs{
			Description: pulumi.String(r.Description),
			FromPort:    pulumi.Int(r.Ports.From),
			ToPort:      pulumi.Int(r.Ports.To),
			Protocol:    pulumi.String(r.Protocol),
		}
		if len(r.CIDRs) > 0 {
			args.CidrBlocks = pulumi.ToStringArray(r.CIDRs)
		}
		if !r.Source.IsZero() {
			sgs, err := reg.ids([]decl.Ref{r.Source})
			if err != nil {
				return nil, err
			}
			args.SecurityGroups = sgs
		}
		out = append(out, args)
	}
	return out, nil
}

// Package decl models resource declarations handed to the provisioning engine
// together with the dependency edges between them.
package decl

import (
	"fmt"
	"strings"
)

// Kind is the provider type token of a declared resource.
type Kind string

const (
	KindVpc                   Kind = "aws:ec2/vpc:Vpc"
	KindInternetGateway       Kind = "aws:ec2/internetGateway:InternetGateway"
	KindNetworkAcl            Kind = "aws:ec2/networkAcl:NetworkAcl"
	KindNetworkAclRule        Kind = "aws:ec2/networkAclRule:NetworkAclRule"
	KindNetworkAclAssociation Kind = "aws:ec2/networkAclAssociation:NetworkAclAssociation"
	KindSubnet                Kind = "aws:ec2/subnet:Subnet"
	KindRouteTable            Kind = "aws:ec2/routeTable:RouteTable"
	KindRouteTableAssociation Kind = "aws:ec2/routeTableAssociation:RouteTableAssociation"
	KindRoute                 Kind = "aws:ec2/route:Route"
	KindEip                   Kind = "aws:ec2/eip:Eip"
	KindNatGateway            Kind = "aws:ec2/natGateway:NatGateway"
	KindSecurityGroup         Kind = "aws:ec2/securityGroup:SecurityGroup"
	KindSecurityGroupRule     Kind = "aws:ec2/securityGroupRule:SecurityGroupRule"
	KindVpcEndpoint           Kind = "aws:ec2/vpcEndpoint:VpcEndpoint"
	KindLaunchTemplate        Kind = "aws:ec2/launchTemplate:LaunchTemplate"
	KindLoadBalancer          Kind = "aws:lb/loadBalancer:LoadBalancer"
	KindTargetGroup           Kind = "aws:lb/targetGroup:TargetGroup"
	KindListener              Kind = "aws:lb/listener:Listener"
	KindRole                  Kind = "aws:iam/role:Role"
	KindRolePolicyAttachment  Kind = "aws:iam/rolePolicyAttachment:RolePolicyAttachment"
	KindInstanceProfile       Kind = "aws:iam/instanceProfile:InstanceProfile"
	KindAutoscalingGroup      Kind = "aws:autoscaling/group:Group"
	KindAutoscalingAttachment Kind = "aws:autoscaling/attachment:Attachment"
	KindParameter             Kind = "aws:ssm/parameter:Parameter"
)

// Short returns the module-qualified type name, e.g. "ec2.Subnet".
func (k Kind) Short() string {
	parts := strings.Split(string(k), ":")
	if len(parts) != 3 {
		return string(k)
	}
	mod, _, _ := strings.Cut(parts[1], "/")
	return mod + "." + parts[2]
}

// Ref is a typed handle to a declared resource. Names are unique per kind,
// the same way the engine keys resources.
type Ref struct {
	Kind Kind
	Name string
}

func NewRef(kind Kind, name string) Ref {
	return Ref{Kind: kind, Name: name}
}

func (r Ref) IsZero() bool {
	return r.Kind == "" && r.Name == ""
}

func (r Ref) String() string {
	return fmt.Sprintf("%s::%s", r.Kind.Short(), r.Name)
}

// Resource is one declaration. Parent is the logical owner (zero for none),
// Refs are the resources whose outputs feed this one's inputs, DependsOn are
// ordering-only dependencies with no data flow.
type Resource struct {
	Ref       Ref
	Parent    Ref
	Refs      []Ref
	DependsOn []Ref
	Tags      map[string]string
}

// Edges returns every resource this one must be declared after, without
// duplicates, in a stable order.
func (r Resource) Edges() []Ref {
	seen := make(map[Ref]bool)
	var out []Ref
	add := func(ref Ref) {
		if ref.IsZero() || seen[ref] {
			return
		}
		seen[ref] = true
		out = append(out, ref)
	}
	add(r.Parent)
	for _, ref := range r.Refs {
		add(ref)
	}
	for _, ref := range r.DependsOn {
		add(ref)
	}
	return out
}

// MergeTags returns a new map holding base overlaid with extra.
func MergeTags(base map[string]string, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

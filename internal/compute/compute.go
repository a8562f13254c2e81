// Package compute declares the web fleet: a least-privilege instance role,
// the webserver security group, the launch template and a fixed-size
// autoscaling group attached to the load balancer.
package compute

import (
	"fmt"

	"csf-controls-demo/internal/balancer"
	"csf-controls-demo/internal/decl"
	"csf-controls-demo/internal/topology"
)

const (
	AssumeRoleService = "ec2.amazonaws.com"

	CloudWatchAgentServerPolicy  = "arn:aws:iam::aws:policy/CloudWatchAgentServerPolicy"
	AmazonSSMManagedInstanceCore = "arn:aws:iam::aws:policy/AmazonSSMManagedInstanceCore"

	ConfigHashTag = "csf:config-sha256"
)

// ManagedPolicyARNs is everything the instance role may do: run the
// CloudWatch agent and be managed through SSM.
var ManagedPolicyARNs = []string{CloudWatchAgentServerPolicy, AmazonSSMManagedInstanceCore}

var EnabledMetrics = []string{
	"GroupMinSize",
	"GroupMaxSize",
	"GroupDesiredCapacity",
	"GroupInServiceInstances",
	"GroupPendingInstances",
	"GroupStandbyInstances",
	"GroupTerminatingInstances",
	"GroupTotalInstances",
}

type Config struct {
	Prefix               string
	Region               string
	ClusterName          string
	KeyName              string
	InstanceType         string
	ImageID              string
	ServicePort          int
	MonitoringPort       int
	Capacity             int
	MinHealthyPercentage int
	InstanceWarmup       int
	// ConfigHash identifies the monitoring config the fleet boots with. A
	// change retags the group, which triggers an instance refresh.
	ConfigHash string
	Tags       map[string]string
}

type PolicyAttachment struct {
	decl.Resource
	PolicyARN string
}

type Role struct {
	decl.Resource
	Service     string
	Attachments []PolicyAttachment
}

type InstanceProfile struct {
	decl.Resource
	Role decl.Ref
}

type RuleType string

const (
	Ingress RuleType = "ingress"
	Egress  RuleType = "egress"
)

type SecurityGroupRule struct {
	decl.Resource
	Type          RuleType
	SecurityGroup decl.Ref
	Rule          topology.SecurityRule
}

// SecurityGroup has no inline rules; each rule is its own declaration.
type SecurityGroup struct {
	decl.Resource
	Description string
	Rules       []SecurityGroupRule
}

type Attachment struct {
	decl.Resource
	Group       decl.Ref
	TargetGroup decl.Ref
}

type Compute struct {
	Role          Role
	Profile       InstanceProfile
	SecurityGroup SecurityGroup
	Launch        LaunchSpec
	Scaling       ScalingSpec
	Attachment    Attachment
}

func (c *Compute) Resources() []decl.Resource {
	out := []decl.Resource{c.Role.Resource}
	for _, a := range c.Role.Attachments {
		out = append(out, a.Resource)
	}
	out = append(out, c.Profile.Resource, c.SecurityGroup.Resource)
	for _, r := range c.SecurityGroup.Rules {
		out = append(out, r.Resource)
	}
	return append(out, c.Launch.Resource, c.Scaling.Resource, c.Attachment.Resource)
}

// Build declares the fleet in the private subnets of topo behind bal.
// userData is the rendered boot script.
func Build(cfg Config, topo *topology.Topology, bal *balancer.Balancer, userData string) (*Compute, error) {
	if topo == nil || bal == nil {
		return nil, fmt.Errorf("compute needs a topology and a load balancer")
	}
	name := func(s string) string { return cfg.Prefix + "-" + s }
	tags := func(n string) map[string]string {
		return decl.MergeTags(cfg.Tags, map[string]string{"Name": n})
	}

	role := Role{
		Resource: decl.Resource{
			Ref:  decl.NewRef(decl.KindRole, name("instance-role")),
			Tags: tags(name("instance-role")),
		},
		Service: AssumeRoleService,
	}
	for i, arn := range ManagedPolicyARNs {
		role.Attachments = append(role.Attachments, PolicyAttachment{
			Resource: decl.Resource{
				Ref:    decl.NewRef(decl.KindRolePolicyAttachment, fmt.Sprintf("%s-%d", name("role-policy-attachment"), i)),
				Parent: role.Ref,
				Refs:   []decl.Ref{role.Ref},
			},
			PolicyARN: arn,
		})
	}
	profile := InstanceProfile{
		Resource: decl.Resource{
			Ref:  decl.NewRef(decl.KindInstanceProfile, name("instance-profile")),
			Refs: []decl.Ref{role.Ref},
		},
		Role: role.Ref,
	}

	sg := webserverSecurityGroup(cfg, topo.Vpc.Ref, bal.SecurityGroup.Ref)

	var s3Deps []decl.Ref
	if s3, ok := topo.EndpointClass("s3"); ok {
		for _, e := range s3.Endpoints {
			s3Deps = append(s3Deps, e.Ref)
		}
		s3Deps = append(s3Deps, s3.SecurityGroup.Ref)
	}

	launch, err := NewLaunchSpec(decl.Resource{
		Ref:       decl.NewRef(decl.KindLaunchTemplate, name("launch-template")),
		DependsOn: s3Deps,
		Tags:      tags(name("launch-template")),
	}, LaunchParams{
		ImageID:         cfg.ImageID,
		InstanceType:    cfg.InstanceType,
		KeyName:         cfg.KeyName,
		InstanceProfile: profile.Ref,
		SecurityGroups:  []decl.Ref{sg.Ref},
		UserData:        userData,
		InstanceTags:    tags(name("webserver")),
	})
	if err != nil {
		return nil, err
	}

	private := make([]topology.Subnet, len(topo.Pairs))
	for i, p := range topo.Pairs {
		private[i] = p.Private
	}
	groupTags := []GroupTag{{Key: "Name", Value: name("workload-node"), PropagateAtLaunch: true}}
	if cfg.ConfigHash != "" {
		groupTags = append(groupTags, GroupTag{Key: ConfigHashTag, Value: cfg.ConfigHash, PropagateAtLaunch: true})
	}
	scaling, err := NewScalingSpec(decl.Resource{
		Ref:       decl.NewRef(decl.KindAutoscalingGroup, name("autoscaling-group")),
		DependsOn: append([]decl.Ref{topo.Vpc.Ref}, s3Deps...),
	}, ScalingParams{
		Name:                 cfg.ClusterName,
		Size:                 cfg.Capacity,
		Subnets:              private,
		LaunchSpec:           launch,
		MinHealthyPercentage: cfg.MinHealthyPercentage,
		Warmup:               cfg.InstanceWarmup,
		Metrics:              EnabledMetrics,
		Tags:                 groupTags,
	})
	if err != nil {
		return nil, err
	}

	attachment := Attachment{
		Resource: decl.Resource{
			Ref:  decl.NewRef(decl.KindAutoscalingAttachment, name("autoscaling-attachment")),
			Refs: []decl.Ref{scaling.Ref, bal.TargetGroup.Ref},
		},
		Group:       scaling.Ref,
		TargetGroup: bal.TargetGroup.Ref,
	}

	return &Compute{
		Role:          role,
		Profile:       profile,
		SecurityGroup: sg,
		Launch:        launch,
		Scaling:       scaling,
		Attachment:    attachment,
	}, nil
}

// webserverSecurityGroup admits the service and monitoring ports from the
// load balancer only.
func webserverSecurityGroup(cfg Config, vpc, albSG decl.Ref) SecurityGroup {
	ref := decl.NewRef(decl.KindSecurityGroup, cfg.Prefix+"-webserver-security-group")
	sg := SecurityGroup{
		Resource: decl.Resource{
			Ref:    ref,
			Parent: vpc,
			Refs:   []decl.Ref{vpc},
			Tags:   decl.MergeTags(cfg.Tags, map[string]string{"Name": fmt.Sprintf("%s-webserver-sg-%s", cfg.Prefix, cfg.Region)}),
		},
		Description: "Allow HTTP from the Public ALB",
	}
	rule := func(suffix string, typ RuleType, r topology.SecurityRule) SecurityGroupRule {
		refs := []decl.Ref{ref}
		if !r.Source.IsZero() {
			refs = append(refs, r.Source)
		}
		return SecurityGroupRule{
			Resource: decl.Resource{
				Ref:    decl.NewRef(decl.KindSecurityGroupRule, cfg.Prefix+"-sgr-webserver-"+suffix),
				Parent: ref,
				Refs:   refs,
			},
			Type:          typ,
			SecurityGroup: ref,
			Rule:          r,
		}
	}
	sg.Rules = []SecurityGroupRule{
		rule("traffic", Ingress, topology.SecurityRule{
			Description: "Service traffic from the load balancer",
			Protocol:    topology.ProtocolTCP,
			Ports:       topology.Port(cfg.ServicePort),
			Source:      albSG,
		}),
		rule("healthcheck", Ingress, topology.SecurityRule{
			Description: "Health checks from the load balancer",
			Protocol:    topology.ProtocolTCP,
			Ports:       topology.Port(cfg.MonitoringPort),
			Source:      albSG,
		}),
		rule("egress", Egress, topology.EgressAll()),
	}
	return sg
}

package main

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/autoscaling"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"csf-controls-demo/internal/compute"
	"csf-controls-demo/internal/render"
)

type AutoscalingArgs struct {
	network      *Network
	loadBalancer *LoadBalancer
	compute      *compute.Compute
}

type Autoscaling struct {
	role    *iam.Role
	profile *iam.InstanceProfile
	sg      *ec2.SecurityGroup
	launch  *ec2.LaunchTemplate
	group   *autoscaling.Group
}

func NewAutoscaling(ctx *pulumi.Context, reg *registry, args AutoscalingArgs) (*Autoscaling, error) {
	c := args.compute
	out := &Autoscaling{}
	var err error

	if err = out.newInstanceProfile(ctx, reg, c.Role, c.Profile); err != nil {
		return nil, err
	}

	out.sg, err = newWebserverSecurityGroup(ctx, reg, args.network.vpc, c.SecurityGroup)
	if err != nil {
		return nil, err
	}

	if err = out.newLaunchTemplate(ctx, reg, c.Launch); err != nil {
		return nil, err
	}

	if err = out.newGroup(ctx, reg, c.Scaling); err != nil {
		return nil, err
	}

	a := c.Attachment
	opts, err := reg.options(a.Resource)
	if err != nil {
		return nil, err
	}
	attachment, err := autoscaling.NewAttachment(ctx, a.Ref.Name, &autoscaling.AttachmentArgs{
		AutoscalingGroupName: out.group.Name,
		LbTargetGroupArn:     args.loadBalancer.targetGroup.Arn,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating autoscaling attachment: %w", err)
	}
	reg.add(a.Ref, attachment)

	ctx.Export("autoscalingGroupName", out.group.Name)
	return out, nil
}

func (a *Autoscaling) newInstanceProfile(ctx *pulumi.Context, reg *registry, role compute.Role, profile compute.InstanceProfile) error {
	assumeRolePolicy, err := iam.GetPolicyDocument(ctx, &iam.GetPolicyDocumentArgs{
		Statements: []iam.GetPolicyDocumentStatement{
			{
				Actions: []string{"sts:AssumeRole"},
				Principals: []iam.GetPolicyDocumentStatementPrincipal{
					{Type: "Service", Identifiers: []string{role.Service}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("Error creating assumeRolePolicy: %w", err)
	}

	opts, err := reg.options(role.Resource)
	if err != nil {
		return err
	}
	a.role, err = iam.NewRole(ctx, role.Ref.Name, &iam.RoleArgs{
		AssumeRolePolicy: pulumi.String(assumeRolePolicy.Json),
		Tags:             tags(role.Resource),
	}, opts...)
	if err != nil {
		return fmt.Errorf("Error creating instance role: %w", err)
	}
	reg.add(role.Ref, a.role)

	for _, pa := range role.Attachments {
		if opts, err = reg.options(pa.Resource); err != nil {
			return err
		}
		attachment, err := iam.NewRolePolicyAttachment(ctx, pa.Ref.Name, &iam.RolePolicyAttachmentArgs{
			Role:      a.role.Name,
			PolicyArn: pulumi.String(pa.PolicyARN),
		}, opts...)
		if err != nil {
			return fmt.Errorf("Error creating role policy attachment: %w", err)
		}
		reg.add(pa.Ref, attachment)
	}

	if opts, err = reg.options(profile.Resource); err != nil {
		return err
	}
	a.profile, err = iam.NewInstanceProfile(ctx, profile.Ref.Name, &iam.InstanceProfileArgs{
		Role: a.role.Name,
		Tags: tags(profile.Resource),
	}, opts...)
	if err != nil {
		return fmt.Errorf("Error creating instance profile: %w", err)
	}
	reg.add(profile.Ref, a.profile)
	return nil
}

// newWebserverSecurityGroup declares the group bare and attaches each rule
// as its own resource.
func newWebserverSecurityGroup(ctx *pulumi.Context, reg *registry, vpc *ec2.Vpc, sg compute.SecurityGroup) (*ec2.SecurityGroup, error) {
	opts, err := reg.options(sg.Resource)
	if err != nil {
		return nil, err
	}
	group, err := ec2.NewSecurityGroup(ctx, sg.Ref.Name, &ec2.SecurityGroupArgs{
		Description:         pulumi.String(sg.Description),
		VpcId:               vpc.ID(),
		RevokeRulesOnDelete: pulumi.Bool(true),
		Tags:                tags(sg.Resource),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating security group: %w", err)
	}
	reg.add(sg.Ref, group)

	for _, rule := range sg.Rules {
		args := &ec2.SecurityGroupRuleArgs{
			Type:            pulumi.String(string(rule.Type)),
			SecurityGroupId: group.ID(),
			Description:     pulumi.String(rule.Rule.Description),
			Protocol:        pulumi.String(rule.Rule.Protocol),
			FromPort:        pulumi.Int(rule.Rule.Ports.From),
			ToPort:          pulumi.Int(rule.Rule.Ports.To),
		}
		if len(rule.Rule.CIDRs) > 0 {
			args.CidrBlocks = pulumi.ToStringArray(rule.Rule.CIDRs)
		}
		if !rule.Rule.Source.IsZero() {
			source, err := reg.id(rule.Rule.Source)
			if err != nil {
				return nil, err
			}
			args.SourceSecurityGroupId = source
		}
		if opts, err = reg.options(rule.Resource); err != nil {
			return nil, err
		}
		r, err := ec2.NewSecurityGroupRule(ctx, rule.Ref.Name, args, opts...)
		if err != nil {
			return nil, fmt.Errorf("Error creating security group rule: %w", err)
		}
		reg.add(rule.Ref, r)
	}
	return group, nil
}

func (a *Autoscaling) newLaunchTemplate(ctx *pulumi.Context, reg *registry, spec compute.LaunchSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("Error creating launch template: %w", err)
	}
	res, err := reg.get(spec.InstanceProfile())
	if err != nil {
		return err
	}
	profile, ok := res.(*iam.InstanceProfile)
	if !ok {
		return fmt.Errorf("%s is not an instance profile", spec.InstanceProfile())
	}
	sgs, err := reg.ids(spec.SecurityGroups())
	if err != nil {
		return err
	}
	opts, err := reg.options(spec.Resource)
	if err != nil {
		return err
	}
	a.launch, err = ec2.NewLaunchTemplate(ctx, spec.Ref.Name, &ec2.LaunchTemplateArgs{
		NamePrefix:   pulumi.String(spec.Ref.Name + "-"),
		ImageId:      pulumi.String(spec.ImageID()),
		InstanceType: pulumi.String(spec.InstanceType()),
		KeyName:      pulumi.String(spec.KeyName()),
		IamInstanceProfile: &ec2.LaunchTemplateIamInstanceProfileArgs{
			Name: profile.Name,
		},
		NetworkInterfaces: ec2.LaunchTemplateNetworkInterfaceArray{
			ec2.LaunchTemplateNetworkInterfaceArgs{
				AssociatePublicIpAddress: pulumi.String(fmt.Sprint(spec.AssociatePublicIP())),
				SecurityGroups:           sgs,
			},
		},
		MetadataOptions: &ec2.LaunchTemplateMetadataOptionsArgs{
			HttpEndpoint: pulumi.String("enabled"),
			HttpTokens:   pulumi.String(httpTokens(spec.RequireIMDSv2())),
		},
		UserData:             pulumi.String(render.Base64(spec.UserData())),
		UpdateDefaultVersion: pulumi.Bool(true),
		TagSpecifications: ec2.LaunchTemplateTagSpecificationArray{
			ec2.LaunchTemplateTagSpecificationArgs{
				ResourceType: pulumi.String("instance"),
				Tags:         pulumi.ToStringMap(spec.InstanceTags()),
			},
		},
		Tags: tags(spec.Resource),
	}, opts...)
	if err != nil {
		return fmt.Errorf("Error creating launch template: %w", err)
	}
	reg.add(spec.Ref, a.launch)
	return nil
}

func httpTokens(required bool) string {
	if required {
		return "required"
	}
	return "optional"
}

func (a *Autoscaling) newGroup(ctx *pulumi.Context, reg *registry, spec compute.ScalingSpec) error {
	subnets, err := reg.ids(spec.Subnets())
	if err != nil {
		return err
	}
	// The attachment owns the target group membership.
	opts, err := reg.options(spec.Resource, pulumi.IgnoreChanges([]string{"targetGroupArns"}))
	if err != nil {
		return err
	}
	groupTags := autoscaling.GroupTagArray{}
	for _, t := range spec.Tags() {
		groupTags = append(groupTags, autoscaling.GroupTagArgs{
			Key:               pulumi.String(t.Key),
			Value:             pulumi.String(t.Value),
			PropagateAtLaunch: pulumi.Bool(t.PropagateAtLaunch),
		})
	}
	refresh := spec.Refresh()
	a.group, err = autoscaling.NewGroup(ctx, spec.Ref.Name, &autoscaling.GroupArgs{
		Name:               pulumi.String(spec.Name()),
		MinSize:            pulumi.Int(spec.MinSize()),
		MaxSize:            pulumi.Int(spec.MaxSize()),
		DesiredCapacity:    pulumi.Int(spec.DesiredCapacity()),
		VpcZoneIdentifiers: subnets,
		LaunchTemplate: &autoscaling.GroupLaunchTemplateArgs{
			Id:      a.launch.ID(),
			Version: pulumi.Sprintf("%d", a.launch.LatestVersion),
		},
		DefaultInstanceWarmup: pulumi.Int(spec.Warmup()),
		InstanceRefresh: &autoscaling.GroupInstanceRefreshArgs{
			Strategy: pulumi.String(refresh.Strategy),
			Preferences: &autoscaling.GroupInstanceRefreshPreferencesArgs{
				MinHealthyPercentage: pulumi.Int(refresh.MinHealthyPercentage),
			},
			Triggers: pulumi.ToStringArray(refresh.Triggers),
		},
		EnabledMetrics: pulumi.ToStringArray(spec.Metrics()),
		Tags:           groupTags,
	}, opts...)
	if err != nil {
		return fmt.Errorf("Error creating autoscaling group: %w", err)
	}
	reg.add(spec.Ref, a.group)
	return nil
}

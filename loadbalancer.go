package main

import (
	"fmt"
	"strconv"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lb"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"csf-controls-demo/internal/balancer"
)

type LoadBalancerArgs struct {
	network  *Network
	balancer *balancer.Balancer
}

type LoadBalancer struct {
	alb         *lb.LoadBalancer
	targetGroup *lb.TargetGroup
}

func NewLoadBalancer(ctx *pulumi.Context, reg *registry, args LoadBalancerArgs) (*LoadBalancer, error) {
	b := args.balancer
	out := &LoadBalancer{}

	sg, err := newSecurityGroup(ctx, reg, args.network.vpc, b.SecurityGroup)
	if err != nil {
		return nil, err
	}

	subnets, err := reg.ids(b.LoadBalancer.Subnets)
	if err != nil {
		return nil, err
	}
	opts, err := reg.options(b.LoadBalancer.Resource)
	if err != nil {
		return nil, err
	}
	out.alb, err = lb.NewLoadBalancer(ctx, b.LoadBalancer.Ref.Name, &lb.LoadBalancerArgs{
		Name:                         pulumi.String(b.LoadBalancer.Ref.Name),
		Internal:                     pulumi.Bool(b.LoadBalancer.Internal()),
		LoadBalancerType:             pulumi.String(b.LoadBalancer.Type),
		SecurityGroups:               pulumi.StringArray{sg.ID()},
		Subnets:                      subnets,
		EnableCrossZoneLoadBalancing: pulumi.Bool(b.LoadBalancer.CrossZone()),
		EnableDeletionProtection:     pulumi.Bool(b.LoadBalancer.DeletionProtection()),
		Tags:                         tags(b.LoadBalancer.Resource),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating load balancer: %w", err)
	}
	reg.add(b.LoadBalancer.Ref, out.alb)

	tg := b.TargetGroup
	if opts, err = reg.options(tg.Resource); err != nil {
		return nil, err
	}
	out.targetGroup, err = lb.NewTargetGroup(ctx, tg.Ref.Name, &lb.TargetGroupArgs{
		Port:     pulumi.Int(tg.Port),
		Protocol: pulumi.String(tg.Protocol),
		VpcId:    args.network.vpc.ID(),
		HealthCheck: &lb.TargetGroupHealthCheckArgs{
			Enabled:          pulumi.Bool(tg.HealthCheck.Enabled()),
			HealthyThreshold: pulumi.Int(tg.HealthCheck.HealthyThreshold),
			Interval:         pulumi.Int(tg.HealthCheck.Interval),
			Protocol:         pulumi.String(tg.HealthCheck.Protocol),
			Port:             pulumi.String(strconv.Itoa(tg.HealthCheck.Port)),
			Path:             pulumi.String(tg.HealthCheck.Path),
		},
		Tags: tags(tg.Resource),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating target group: %w", err)
	}
	reg.add(tg.Ref, out.targetGroup)

	l := b.Listener
	if opts, err = reg.options(l.Resource); err != nil {
		return nil, err
	}
	listener, err := lb.NewListener(ctx, l.Ref.Name, &lb.ListenerArgs{
		LoadBalancerArn: out.alb.Arn,
		Port:            pulumi.Int(l.Port),
		Protocol:        pulumi.String(l.Protocol),
		DefaultActions: lb.ListenerDefaultActionArray{
			lb.ListenerDefaultActionArgs{
				Type:           pulumi.String("forward"),
				TargetGroupArn: out.targetGroup.Arn,
			},
		},
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating listener: %w", err)
	}
	reg.add(l.Ref, listener)

	ctx.Export("url", pulumi.Sprintf("http://%s", out.alb.DnsName))
	return out, nil
}

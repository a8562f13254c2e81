package main

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"csf-controls-demo/internal/plan"
	"csf-controls-demo/internal/settings"
)

func main() {
	pulumi.Run(run)
}

func run(ctx *pulumi.Context) error {
	s, err := settings.Load(ctx)
	if err != nil {
		return err
	}

	in, err := lookupInputs(ctx, s)
	if err != nil {
		return err
	}

	p, err := plan.Build(in)
	if err != nil {
		return err
	}
	ctx.Log.Info(fmt.Sprintf("declaring %d resources in %s across %v", len(p.Order), in.Region, in.Zones[:s.ZoneCount()]), nil)

	reg := newRegistry()

	network, err := NewNetwork(ctx, reg, p.Topology)
	if err != nil {
		return err
	}

	lb, err := NewLoadBalancer(ctx, reg, LoadBalancerArgs{
		network:  network,
		balancer: p.Balancer,
	})
	if err != nil {
		return err
	}

	param, err := NewNginxConfig(ctx, reg, p.Parameter)
	if err != nil {
		return err
	}

	_, err = NewAutoscaling(ctx, reg, AutoscalingArgs{
		network:      network,
		loadBalancer: lb,
		compute:      p.Compute,
	})
	if err != nil {
		return err
	}

	ctx.Export("nginxConfigParameter", param.Name)
	ctx.Export("configHash", pulumi.String(p.ConfigHash))
	return nil
}

// lookupInputs asks the provider for what the declaration pass cannot know:
// the region, its zones and the current Amazon Linux image.
func lookupInputs(ctx *pulumi.Context, s settings.Settings) (plan.Inputs, error) {
	region, err := aws.GetRegion(ctx, nil)
	if err != nil {
		return plan.Inputs{}, fmt.Errorf("Error looking up region: %w", err)
	}

	zones, err := aws.GetAvailabilityZones(ctx, &aws.GetAvailabilityZonesArgs{
		State: pulumi.StringRef("available"),
	})
	if err != nil {
		return plan.Inputs{}, fmt.Errorf("Error looking up availability zones: %w", err)
	}

	ami, err := ec2.LookupAmi(ctx, &ec2.LookupAmiArgs{
		MostRecent: pulumi.BoolRef(true),
		Owners:     []string{"amazon"},
		Filters: []ec2.GetAmiFilter{
			{Name: "name", Values: []string{s.ImageNamePattern}},
			{Name: "virtualization-type", Values: []string{"hvm"}},
			{Name: "root-device-type", Values: []string{"ebs"}},
			{Name: "architecture", Values: []string{"x86_64"}},
		},
	})
	if err != nil {
		return plan.Inputs{}, fmt.Errorf("Error looking up image: %w", err)
	}

	return plan.Inputs{
		Settings: s,
		Region:   region.Name,
		Zones:    zones.Names,
		ImageID:  ami.Id,
	}, nil
}

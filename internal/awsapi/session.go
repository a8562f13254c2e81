// Package awsapi wraps the few EC2 and ELBv2 read calls the CLI needs to
// look up inputs and audit a deployed stack.
package awsapi

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
)

// LoadConfig loads an AWS config with optional profile and region overrides.
func LoadConfig(ctx context.Context, profile, region string) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

type Clients struct {
	Region string
	EC2    *EC2Client
	ELB    *ELBClient
}

func NewClients(ctx context.Context, profile, region string) (*Clients, error) {
	cfg, err := LoadConfig(ctx, profile, region)
	if err != nil {
		return nil, err
	}
	return &Clients{
		Region: cfg.Region,
		EC2:    NewEC2Client(ec2.NewFromConfig(cfg)),
		ELB:    NewELBClient(elbv2.NewFromConfig(cfg)),
	}, nil
}

package awsapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
)

var ErrLoadBalancerNotFound = errors.New("load balancer not found")

type ELBAPI interface {
	DescribeLoadBalancers(ctx context.Context, params *elbv2.DescribeLoadBalancersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error)
	DescribeLoadBalancerAttributes(ctx context.Context, params *elbv2.DescribeLoadBalancerAttributesInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancerAttributesOutput, error)
	DescribeTargetGroups(ctx context.Context, params *elbv2.DescribeTargetGroupsInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeTargetGroupsOutput, error)
}

type LoadBalancer struct {
	Name   string
	ARN    string
	Type   string
	Scheme string
	VPCID  string
}

type TargetGroup struct {
	Name               string
	ARN                string
	Protocol           string
	Port               int
	HealthCheckEnabled bool
	HealthCheckPort    string
	HealthCheckPath    string
	HealthyThreshold   int
	HealthCheckSeconds int
}

type ELBClient struct {
	api ELBAPI
}

func NewELBClient(api ELBAPI) *ELBClient {
	return &ELBClient{api: api}
}

// LoadBalancer looks a load balancer up by name.
func (c *ELBClient) LoadBalancer(ctx context.Context, name string) (LoadBalancer, error) {
	out, err := c.api.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{
		Names: []string{name},
	})
	if err != nil {
		return LoadBalancer{}, fmt.Errorf("DescribeLoadBalancers: %w", err)
	}
	for _, lb := range out.LoadBalancers {
		if aws.ToString(lb.LoadBalancerName) == name {
			return LoadBalancer{
				Name:   name,
				ARN:    aws.ToString(lb.LoadBalancerArn),
				Type:   string(lb.Type),
				Scheme: string(lb.Scheme),
				VPCID:  aws.ToString(lb.VpcId),
			}, nil
		}
	}
	return LoadBalancer{}, fmt.Errorf("%w: %s", ErrLoadBalancerNotFound, name)
}

// Attributes returns the load balancer attributes as key/value pairs.
func (c *ELBClient) Attributes(ctx context.Context, lbARN string) (map[string]string, error) {
	out, err := c.api.DescribeLoadBalancerAttributes(ctx, &elbv2.DescribeLoadBalancerAttributesInput{
		LoadBalancerArn: aws.String(lbARN),
	})
	if err != nil {
		return nil, fmt.Errorf("DescribeLoadBalancerAttributes: %w", err)
	}
	attrs := make(map[string]string, len(out.Attributes))
	for _, a := range out.Attributes {
		attrs[aws.ToString(a.Key)] = aws.ToString(a.Value)
	}
	return attrs, nil
}

func (c *ELBClient) TargetGroups(ctx context.Context, lbARN string) ([]TargetGroup, error) {
	var tgs []TargetGroup
	var marker *string
	for {
		out, err := c.api.DescribeTargetGroups(ctx, &elbv2.DescribeTargetGroupsInput{
			LoadBalancerArn: aws.String(lbARN),
			Marker:          marker,
		})
		if err != nil {
			return nil, fmt.Errorf("DescribeTargetGroups: %w", err)
		}
		for _, tg := range out.TargetGroups {
			tgs = append(tgs, TargetGroup{
				Name:               aws.ToString(tg.TargetGroupName),
				ARN:                aws.ToString(tg.TargetGroupArn),
				Protocol:           string(tg.Protocol),
				Port:               int(aws.ToInt32(tg.Port)),
				HealthCheckEnabled: aws.ToBool(tg.HealthCheckEnabled),
				HealthCheckPort:    aws.ToString(tg.HealthCheckPort),
				HealthCheckPath:    aws.ToString(tg.HealthCheckPath),
				HealthyThreshold:   int(aws.ToInt32(tg.HealthyThresholdCount)),
				HealthCheckSeconds: int(aws.ToInt32(tg.HealthCheckIntervalSeconds)),
			})
		}
		if out.NextMarker == nil {
			break
		}
		marker = out.NextMarker
	}
	return tgs, nil
}

// HealthCheckPortNumber parses the target group health check port. The API
// reports "traffic-port" when the check uses the target port.
func (tg TargetGroup) HealthCheckPortNumber() int {
	if tg.HealthCheckPort == "traffic-port" {
		return tg.Port
	}
	n, err := strconv.Atoi(tg.HealthCheckPort)
	if err != nil {
		return 0
	}
	return n
}

package awsapi

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

var ErrNoImage = errors.New("no image matches")

type EC2API interface {
	DescribeAvailabilityZones(ctx context.Context, params *awsec2.DescribeAvailabilityZonesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeAvailabilityZonesOutput, error)
	DescribeImages(ctx context.Context, params *awsec2.DescribeImagesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeImagesOutput, error)
	DescribeInstances(ctx context.Context, params *awsec2.DescribeInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeInstancesOutput, error)
	DescribeRouteTables(ctx context.Context, params *awsec2.DescribeRouteTablesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeRouteTablesOutput, error)
	DescribeNatGateways(ctx context.Context, params *awsec2.DescribeNatGatewaysInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeNatGatewaysOutput, error)
	DescribeSubnets(ctx context.Context, params *awsec2.DescribeSubnetsInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeSubnetsOutput, error)
}

type Instance struct {
	ID              string
	Name            string
	State           string
	SubnetID        string
	PrivateIP       string
	PublicIP        string
	InstanceProfile string
	HTTPTokens      string
}

type RouteTable struct {
	ID        string
	Name      string
	SubnetIDs []string
	// Default route target, at most one of them set.
	DefaultNatGateway string
	DefaultGateway    string
}

type NatGateway struct {
	ID       string
	Name     string
	SubnetID string
	State    string
}

type Subnet struct {
	ID       string
	Name     string
	Zone     string
	CIDR     string
	PublicIP bool
}

type EC2Client struct {
	api EC2API
}

func NewEC2Client(api EC2API) *EC2Client {
	return &EC2Client{api: api}
}

// AvailabilityZones returns the available zones of the region in the order
// the API reports them.
func (c *EC2Client) AvailabilityZones(ctx context.Context) ([]string, error) {
	out, err := c.api.DescribeAvailabilityZones(ctx, &awsec2.DescribeAvailabilityZonesInput{
		Filters: []types.Filter{{Name: aws.String("state"), Values: []string{"available"}}},
	})
	if err != nil {
		return nil, fmt.Errorf("DescribeAvailabilityZones: %w", err)
	}
	var zones []string
	for _, z := range out.AvailabilityZones {
		zones = append(zones, aws.ToString(z.ZoneName))
	}
	return zones, nil
}

// LatestImage returns the most recent Amazon-owned x86_64 HVM EBS image whose
// name matches pattern.
func (c *EC2Client) LatestImage(ctx context.Context, pattern string) (string, error) {
	out, err := c.api.DescribeImages(ctx, &awsec2.DescribeImagesInput{
		Owners: []string{"amazon"},
		Filters: []types.Filter{
			{Name: aws.String("name"), Values: []string{pattern}},
			{Name: aws.String("virtualization-type"), Values: []string{"hvm"}},
			{Name: aws.String("root-device-type"), Values: []string{"ebs"}},
			{Name: aws.String("architecture"), Values: []string{"x86_64"}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("DescribeImages: %w", err)
	}
	if len(out.Images) == 0 {
		return "", fmt.Errorf("%w %q", ErrNoImage, pattern)
	}
	images := out.Images
	// CreationDate is RFC 3339, so the strings sort chronologically.
	sort.SliceStable(images, func(i, j int) bool {
		return aws.ToString(images[i].CreationDate) > aws.ToString(images[j].CreationDate)
	})
	return aws.ToString(images[0].ImageId), nil
}

// InstancesByTag lists the pending and running instances tagged key=value.
func (c *EC2Client) InstancesByTag(ctx context.Context, key, value string) ([]Instance, error) {
	var instances []Instance
	var nextToken *string
	for {
		out, err := c.api.DescribeInstances(ctx, &awsec2.DescribeInstancesInput{
			Filters: []types.Filter{
				{Name: aws.String("tag:" + key), Values: []string{value}},
				{Name: aws.String("instance-state-name"), Values: []string{"pending", "running"}},
			},
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("DescribeInstances: %w", err)
		}
		for _, r := range out.Reservations {
			for _, inst := range r.Instances {
				i := Instance{
					ID:        aws.ToString(inst.InstanceId),
					Name:      nameTag(inst.Tags),
					SubnetID:  aws.ToString(inst.SubnetId),
					PrivateIP: aws.ToString(inst.PrivateIpAddress),
					PublicIP:  aws.ToString(inst.PublicIpAddress),
				}
				if inst.State != nil {
					i.State = string(inst.State.Name)
				}
				if inst.IamInstanceProfile != nil {
					i.InstanceProfile = aws.ToString(inst.IamInstanceProfile.Arn)
				}
				if inst.MetadataOptions != nil {
					i.HTTPTokens = string(inst.MetadataOptions.HttpTokens)
				}
				instances = append(instances, i)
			}
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	return instances, nil
}

// RouteTables lists the route tables whose Name tag matches pattern (the
// EC2 filter syntax, "*" allowed).
func (c *EC2Client) RouteTables(ctx context.Context, pattern string) ([]RouteTable, error) {
	var tables []RouteTable
	var nextToken *string
	for {
		out, err := c.api.DescribeRouteTables(ctx, &awsec2.DescribeRouteTablesInput{
			Filters:   []types.Filter{{Name: aws.String("tag:Name"), Values: []string{pattern}}},
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("DescribeRouteTables: %w", err)
		}
		for _, rt := range out.RouteTables {
			t := RouteTable{
				ID:   aws.ToString(rt.RouteTableId),
				Name: nameTag(rt.Tags),
			}
			for _, a := range rt.Associations {
				if id := aws.ToString(a.SubnetId); id != "" {
					t.SubnetIDs = append(t.SubnetIDs, id)
				}
			}
			for _, r := range rt.Routes {
				if aws.ToString(r.DestinationCidrBlock) != "0.0.0.0/0" {
					continue
				}
				t.DefaultNatGateway = aws.ToString(r.NatGatewayId)
				t.DefaultGateway = aws.ToString(r.GatewayId)
			}
			tables = append(tables, t)
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	return tables, nil
}

// NatGateways returns the gateways with the given ids.
func (c *EC2Client) NatGateways(ctx context.Context, ids []string) ([]NatGateway, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var gateways []NatGateway
	var nextToken *string
	for {
		out, err := c.api.DescribeNatGateways(ctx, &awsec2.DescribeNatGatewaysInput{
			NatGatewayIds: ids,
			NextToken:     nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("DescribeNatGateways: %w", err)
		}
		for _, n := range out.NatGateways {
			gateways = append(gateways, NatGateway{
				ID:       aws.ToString(n.NatGatewayId),
				Name:     nameTag(n.Tags),
				SubnetID: aws.ToString(n.SubnetId),
				State:    string(n.State),
			})
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	return gateways, nil
}

// Subnets returns the subnets with the given ids, keyed by id.
func (c *EC2Client) Subnets(ctx context.Context, ids []string) (map[string]Subnet, error) {
	subnets := make(map[string]Subnet, len(ids))
	if len(ids) == 0 {
		return subnets, nil
	}
	var nextToken *string
	for {
		out, err := c.api.DescribeSubnets(ctx, &awsec2.DescribeSubnetsInput{
			SubnetIds: ids,
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("DescribeSubnets: %w", err)
		}
		for _, s := range out.Subnets {
			id := aws.ToString(s.SubnetId)
			subnets[id] = Subnet{
				ID:       id,
				Name:     nameTag(s.Tags),
				Zone:     aws.ToString(s.AvailabilityZone),
				CIDR:     aws.ToString(s.CidrBlock),
				PublicIP: aws.ToBool(s.MapPublicIpOnLaunch),
			}
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	return subnets, nil
}

func nameTag(tags []types.Tag) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == "Name" {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}

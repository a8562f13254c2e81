package main

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ssm"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"csf-controls-demo/internal/plan"
)

// NewNginxConfig publishes the rendered stub_status config where instances
// fetch it at first boot.
func NewNginxConfig(ctx *pulumi.Context, reg *registry, param plan.Parameter) (*ssm.Parameter, error) {
	opts, err := reg.options(param.Resource)
	if err != nil {
		return nil, err
	}
	p, err := ssm.NewParameter(ctx, param.Ref.Name, &ssm.ParameterArgs{
		Name:     pulumi.String(param.Path),
		Type:     pulumi.String(param.Type),
		DataType: pulumi.String(param.DataType),
		Value:    pulumi.String(param.Value),
		Tags:     tags(param.Resource),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating nginx config parameter: %w", err)
	}
	reg.add(param.Ref, p)
	return p, nil
}

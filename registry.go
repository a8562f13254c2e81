package main

import (
	"fmt"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"csf-controls-demo/internal/decl"
)

// registry maps every declaration to the engine resource created for it, so
// the edges of the plan become Parent and DependsOn options.
type registry struct {
	resources map[decl.Ref]pulumi.CustomResource
}

func newRegistry() *registry {
	return &registry{resources: make(map[decl.Ref]pulumi.CustomResource)}
}

func (r *registry) add(ref decl.Ref, res pulumi.CustomResource) {
	r.resources[ref] = res
}

func (r *registry) get(ref decl.Ref) (pulumi.CustomResource, error) {
	res, ok := r.resources[ref]
	if !ok {
		return nil, fmt.Errorf("%s is used before it is declared", ref)
	}
	return res, nil
}

func (r *registry) id(ref decl.Ref) (pulumi.StringOutput, error) {
	res, err := r.get(ref)
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	return res.ID().ToStringOutput(), nil
}

func (r *registry) ids(refs []decl.Ref) (pulumi.StringArray, error) {
	out := make(pulumi.StringArray, 0, len(refs))
	for _, ref := range refs {
		id, err := r.id(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// options turns the parent and the ordering-only dependencies of res into
// resource options. Every referenced resource must already be registered.
func (r *registry) options(res decl.Resource, extra ...pulumi.ResourceOption) ([]pulumi.ResourceOption, error) {
	for _, ref := range res.Refs {
		if _, err := r.get(ref); err != nil {
			return nil, fmt.Errorf("declaring %s: %w", res.Ref, err)
		}
	}
	var opts []pulumi.ResourceOption
	if !res.Parent.IsZero() {
		parent, err := r.get(res.Parent)
		if err != nil {
			return nil, fmt.Errorf("declaring %s: %w", res.Ref, err)
		}
		opts = append(opts, pulumi.Parent(parent))
	}
	if len(res.DependsOn) > 0 {
		deps := make([]pulumi.Resource, 0, len(res.DependsOn))
		for _, ref := range res.DependsOn {
			dep, err := r.get(ref)
			if err != nil {
				return nil, fmt.Errorf("declaring %s: %w", res.Ref, err)
			}
			deps = append(deps, dep)
		}
		opts = append(opts, pulumi.DependsOn(deps))
	}
	return append(opts, extra...), nil
}

func tags(res decl.Resource) pulumi.StringMap {
	return pulumi.ToStringMap(res.Tags)
}

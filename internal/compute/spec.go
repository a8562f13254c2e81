package compute

import (
	"errors"
	"fmt"

	"csf-controls-demo/internal/decl"
	"csf-controls-demo/internal/topology"
)

var (
	ErrNoInstanceProfile = errors.New("launch spec requires an instance profile")
	ErrNoImage           = errors.New("launch spec requires an image id")
	ErrPublicSubnet      = errors.New("scaling group may only be placed in private subnets")
	ErrNoSubnets         = errors.New("scaling group needs at least one subnet")
)

type LaunchParams struct {
	ImageID         string
	InstanceType    string
	KeyName         string
	InstanceProfile decl.Ref
	SecurityGroups  []decl.Ref
	// UserData is the rendered boot script, before encoding.
	UserData     string
	InstanceTags map[string]string
}

// LaunchSpec describes the instances of the fleet. Its fields are only set
// through NewLaunchSpec: an instance profile is always attached and no public
// IP is ever assigned.
type LaunchSpec struct {
	decl.Resource
	imageID        string
	instanceType   string
	keyName        string
	profile        decl.Ref
	securityGroups []decl.Ref
	userData       string
	instanceTags   map[string]string
}

func NewLaunchSpec(res decl.Resource, p LaunchParams) (LaunchSpec, error) {
	if err := validateLaunch(res.Ref, p.InstanceProfile, p.ImageID, p.InstanceType); err != nil {
		return LaunchSpec{}, err
	}
	res.Refs = append(append([]decl.Ref{p.InstanceProfile}, p.SecurityGroups...), res.Refs...)
	return LaunchSpec{
		Resource:       res,
		imageID:        p.ImageID,
		instanceType:   p.InstanceType,
		keyName:        p.KeyName,
		profile:        p.InstanceProfile,
		securityGroups: append([]decl.Ref(nil), p.SecurityGroups...),
		userData:       p.UserData,
		instanceTags:   decl.MergeTags(nil, p.InstanceTags),
	}, nil
}

func validateLaunch(ref, profile decl.Ref, imageID, instanceType string) error {
	if ref.IsZero() {
		return errors.New("launch spec requires a name")
	}
	if profile.IsZero() {
		return ErrNoInstanceProfile
	}
	if imageID == "" {
		return ErrNoImage
	}
	if instanceType == "" {
		return errors.New("launch spec requires an instance type")
	}
	return nil
}

// Validate rejects launch specs that did not come from NewLaunchSpec, such
// as the zero value.
func (l LaunchSpec) Validate() error {
	return validateLaunch(l.Ref, l.profile, l.imageID, l.instanceType)
}

func (l LaunchSpec) ImageID() string                 { return l.imageID }
func (l LaunchSpec) InstanceType() string            { return l.instanceType }
func (l LaunchSpec) KeyName() string                 { return l.keyName }
func (l LaunchSpec) InstanceProfile() decl.Ref       { return l.profile }
func (l LaunchSpec) SecurityGroups() []decl.Ref      { return l.securityGroups }
func (l LaunchSpec) UserData() string                { return l.userData }
func (l LaunchSpec) InstanceTags() map[string]string { return l.instanceTags }

// AssociatePublicIP is always false: instances are reachable only through the
// load balancer.
func (LaunchSpec) AssociatePublicIP() bool { return false }

// RequireIMDSv2 forces session tokens on the instance metadata service.
func (LaunchSpec) RequireIMDSv2() bool { return true }

// RefreshPolicy controls how the fleet is replaced when the launch template
// or the group tags change.
type RefreshPolicy struct {
	Strategy             string
	MinHealthyPercentage int
	Triggers             []string
}

type GroupTag struct {
	Key               string
	Value             string
	PropagateAtLaunch bool
}

type ScalingParams struct {
	Name                 string
	Size                 int
	Subnets              []topology.Subnet
	LaunchSpec           LaunchSpec
	MinHealthyPercentage int
	Warmup               int
	Metrics              []string
	Tags                 []GroupTag
}

// ScalingSpec is a fixed-size group (min == max == desired) placed in private
// subnets only, replaced with a rolling refresh.
type ScalingSpec struct {
	decl.Resource
	name    string
	size    int
	subnets []decl.Ref
	launch  decl.Ref
	refresh RefreshPolicy
	warmup  int
	metrics []string
	tags    []GroupTag
}

func NewScalingSpec(res decl.Resource, p ScalingParams) (ScalingSpec, error) {
	if p.Size <= 0 {
		return ScalingSpec{}, fmt.Errorf("scaling group size must be positive, got %d", p.Size)
	}
	if len(p.Subnets) == 0 {
		return ScalingSpec{}, ErrNoSubnets
	}
	if err := p.LaunchSpec.Validate(); err != nil {
		return ScalingSpec{}, fmt.Errorf("scaling group launch spec: %w", err)
	}
	if p.MinHealthyPercentage < 0 || p.MinHealthyPercentage > 100 {
		return ScalingSpec{}, fmt.Errorf("min healthy percentage %d outside 0..100", p.MinHealthyPercentage)
	}
	subnets := make([]decl.Ref, 0, len(p.Subnets))
	for _, s := range p.Subnets {
		if s.Public {
			return ScalingSpec{}, fmt.Errorf("%w: %s", ErrPublicSubnet, s.Ref.Name)
		}
		subnets = append(subnets, s.Ref)
	}
	res.Refs = append(append([]decl.Ref{p.LaunchSpec.Ref}, subnets...), res.Refs...)
	return ScalingSpec{
		Resource: res,
		name:     p.Name,
		size:     p.Size,
		subnets:  subnets,
		launch:   p.LaunchSpec.Ref,
		refresh: RefreshPolicy{
			Strategy:             "Rolling",
			MinHealthyPercentage: p.MinHealthyPercentage,
			Triggers:             []string{"tag"},
		},
		warmup:  p.Warmup,
		metrics: append([]string(nil), p.Metrics...),
		tags:    append([]GroupTag(nil), p.Tags...),
	}, nil
}

func (s ScalingSpec) Name() string             { return s.name }
func (s ScalingSpec) MinSize() int             { return s.size }
func (s ScalingSpec) MaxSize() int             { return s.size }
func (s ScalingSpec) DesiredCapacity() int     { return s.size }
func (s ScalingSpec) Subnets() []decl.Ref      { return s.subnets }
func (s ScalingSpec) LaunchTemplate() decl.Ref { return s.launch }
func (s ScalingSpec) Refresh() RefreshPolicy   { return s.refresh }
func (s ScalingSpec) Warmup() int              { return s.warmup }
func (s ScalingSpec) Metrics() []string        { return s.metrics }
func (s ScalingSpec) Tags() []GroupTag         { return s.tags }

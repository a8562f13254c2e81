package settings

import (
	"fmt"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"
)

// Load reads the stack configuration on top of Defaults. Only ssh-key-name is
// required; the rest are overrides for non-reference builds.
func Load(ctx *pulumi.Context) (Settings, error) {
	s := Defaults()
	s.Project = ctx.Project()
	s.Stack = ctx.Stack()

	conf := config.New(ctx, "")
	key, err := conf.Try("ssh-key-name")
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrMissingSSHKey, err)
	}
	s.SSHKeyName = key

	if v := conf.Get("instance-type"); v != "" {
		s.InstanceType = v
	}
	if v := conf.GetInt("capacity"); v != 0 {
		s.Capacity = v
	}
	if v := conf.Get("vpc-cidr"); v != "" {
		s.VpcCIDR = v
	}
	var cidrs []string
	if err := conf.GetObject("public-subnet-cidrs", &cidrs); err != nil {
		return Settings{}, fmt.Errorf("reading public-subnet-cidrs: %w", err)
	}
	if len(cidrs) > 0 {
		s.PublicSubnetCIDRs = cidrs
	}
	cidrs = nil
	if err := conf.GetObject("private-subnet-cidrs", &cidrs); err != nil {
		return Settings{}, fmt.Errorf("reading private-subnet-cidrs: %w", err)
	}
	if len(cidrs) > 0 {
		s.PrivateSubnetCIDRs = cidrs
	}

	return s, s.Validate()
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"csf-controls-demo/internal/awsapi"
	"csf-controls-demo/internal/plan"
	"csf-controls-demo/internal/settings"
)

const (
	defaultRegion = "us-east-1"
	// placeholderImage stands in for the AMI lookup when planning offline.
	placeholderImage = "ami-00000000000000000"
)

// planOptions are the inputs shared by every command that needs a plan.
type planOptions struct {
	settingsFile string
	sshKeyName   string
	region       string
	zones        []string
	imageID      string
	profile      string
	live         bool
}

func (o *planOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.settingsFile, "settings", "s", "", "YAML settings file (defaults to the reference build)")
	cmd.Flags().StringVar(&o.sshKeyName, "ssh-key-name", "", "SSH key name, overrides the settings file")
	cmd.Flags().StringVarP(&o.region, "region", "r", "", "AWS region (default "+defaultRegion+" offline)")
	cmd.Flags().StringSliceVarP(&o.zones, "zones", "z", nil, "Availability zones, in provider order")
	cmd.Flags().StringVar(&o.imageID, "image", "", "AMI id, skips the image lookup")
	cmd.Flags().StringVar(&o.profile, "profile", "", "AWS shared config profile for --live")
	cmd.Flags().BoolVar(&o.live, "live", false, "Look zones and image up in AWS instead of assuming them")
}

func (o *planOptions) settings() (settings.Settings, error) {
	s := settings.Defaults()
	if o.settingsFile != "" {
		var err error
		if s, err = settings.LoadFile(o.settingsFile); err != nil {
			return settings.Settings{}, err
		}
	}
	if o.sshKeyName != "" {
		s.SSHKeyName = o.sshKeyName
	}
	if s.SSHKeyName == "" && !o.live {
		// Offline plans never reach an instance.
		s.SSHKeyName = "offline"
	}
	return s, nil
}

func (o *planOptions) inputs(ctx context.Context) (plan.Inputs, error) {
	s, err := o.settings()
	if err != nil {
		return plan.Inputs{}, err
	}
	in := plan.Inputs{
		Settings: s,
		Region:   o.region,
		Zones:    o.zones,
		ImageID:  o.imageID,
	}

	if o.live {
		clients, err := awsapi.NewClients(ctx, o.profile, o.region)
		if err != nil {
			return plan.Inputs{}, err
		}
		in.Region = clients.Region
		if len(in.Zones) == 0 {
			if in.Zones, err = clients.EC2.AvailabilityZones(ctx); err != nil {
				return plan.Inputs{}, err
			}
			slog.Debug("looked up availability zones", "region", in.Region, "zones", in.Zones)
		}
		if in.ImageID == "" {
			if in.ImageID, err = clients.EC2.LatestImage(ctx, s.ImageNamePattern); err != nil {
				return plan.Inputs{}, err
			}
			slog.Debug("looked up image", "pattern", s.ImageNamePattern, "image", in.ImageID)
		}
		return in, nil
	}

	if in.Region == "" {
		in.Region = defaultRegion
	}
	if len(in.Zones) == 0 {
		for i := 0; i < s.ZoneCount(); i++ {
			in.Zones = append(in.Zones, fmt.Sprintf("%s%c", in.Region, 'a'+i))
		}
		slog.Debug("assuming availability zones", "zones", in.Zones)
	}
	if in.ImageID == "" {
		in.ImageID = placeholderImage
	}
	return in, nil
}

func (o *planOptions) build(ctx context.Context) (*plan.Plan, error) {
	in, err := o.inputs(ctx)
	if err != nil {
		return nil, err
	}
	return plan.Build(in)
}

func newPlanCmd() *cobra.Command {
	opts := &planOptions{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the declaration plan as YAML",
		Long: `Run the declaration pass and print a summary: the zones used, every
declared resource in dependency order, and the controls the plan enforces.

Without --live nothing talks to AWS: zones are assumed to be <region>a,
<region>b... and the image is a placeholder.

Examples:
    csfctl plan
    csfctl plan --zones eu-west-1b,eu-west-1c --region eu-west-1
    csfctl plan --live --profile prod --region us-west-2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}
			out, err := p.Summary().YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	opts.addFlags(cmd)
	return cmd
}

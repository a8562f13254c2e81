package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"csf-controls-demo/internal/audit"
	"csf-controls-demo/internal/awsapi"
	"csf-controls-demo/internal/settings"
)

var errAuditFailed = errors.New("audit found violations")

func newAuditCmd() *cobra.Command {
	var (
		settingsFile string
		profile      string
		region       string
		loadBalancer string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check a deployed stack against its controls",
		Long: `Read the deployed load balancer, instances and private route tables and
report every control that does not hold. Exits non-zero on any violation.

Examples:
    csfctl audit --region us-east-1
    csfctl audit --profile prod --load-balancer demo-pub-alb`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := settings.Defaults()
			if settingsFile != "" {
				var err error
				if s, err = settings.LoadFile(settingsFile); err != nil {
					return err
				}
			}
			exp := audit.ExpectationsFor(s)
			if loadBalancer != "" {
				exp.LoadBalancerName = loadBalancer
			}

			ctx := cmd.Context()
			clients, err := awsapi.NewClients(ctx, profile, region)
			if err != nil {
				return err
			}
			slog.Debug("auditing", "region", clients.Region, "load_balancer", exp.LoadBalancerName)

			report, err := audit.Run(ctx, clients.EC2, clients.ELB, exp)
			if err != nil {
				return err
			}
			return writeReport(cmd, report)
		},
	}

	cmd.Flags().StringVarP(&settingsFile, "settings", "s", "", "YAML settings file the stack was built from")
	cmd.Flags().StringVar(&profile, "profile", "", "AWS shared config profile")
	cmd.Flags().StringVarP(&region, "region", "r", "", "AWS region")
	cmd.Flags().StringVar(&loadBalancer, "load-balancer", "", "Load balancer name (default <prefix>-pub-alb)")
	return cmd
}

func writeReport(cmd *cobra.Command, report audit.Report) error {
	out, err := yaml.Marshal(report)
	if err != nil {
		return err
	}
	if _, err := cmd.OutOrStdout().Write(out); err != nil {
		return err
	}
	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%w: %d of %d checks failed", errAuditFailed, len(failed), len(report.Findings))
	}
	return nil
}

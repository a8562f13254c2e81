// Package settings supplies the static parameters of the stack and the one
// operator-supplied secret, the SSH key name.
package settings

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

var ErrMissingSSHKey = errors.New("ssh-key-name is required")

// Settings holds every parameter consumed by the declaration pass.
type Settings struct {
	Project string `yaml:"project"`
	Stack   string `yaml:"stack"`

	// Prefix namespaces resource names, e.g. "demo-vpc".
	Prefix      string `yaml:"prefix"`
	ClusterName string `yaml:"cluster_name"`

	VpcCIDR            string   `yaml:"vpc_cidr"`
	PublicSubnetCIDRs  []string `yaml:"public_subnet_cidrs"`
	PrivateSubnetCIDRs []string `yaml:"private_subnet_cidrs"`

	SSHKeyName       string `yaml:"ssh_key_name"`
	InstanceType     string `yaml:"instance_type"`
	ImageNamePattern string `yaml:"image_name_pattern"`

	Capacity             int `yaml:"capacity"`
	MinHealthyPercentage int `yaml:"min_healthy_percentage"`
	InstanceWarmup       int `yaml:"instance_warmup"`

	ServicePort         int    `yaml:"service_port"`
	MonitoringPort      int    `yaml:"monitoring_port"`
	MonitoringPath      string `yaml:"monitoring_path"`
	NginxConfigPath     string `yaml:"nginx_config_path"`
	HealthyThreshold    int    `yaml:"healthy_threshold"`
	HealthCheckInterval int    `yaml:"health_check_interval"`
}

// Defaults returns the reference build. SSHKeyName is left empty: it has no
// default and must come from the operator.
func Defaults() Settings {
	return Settings{
		Project:     "csf-controls-demo",
		Stack:       "dev",
		Prefix:      "demo",
		ClusterName: "demoWebCluster",

		VpcCIDR:            "10.100.0.0/16",
		PublicSubnetCIDRs:  []string{"10.100.0.0/20", "10.100.16.0/20"},
		PrivateSubnetCIDRs: []string{"10.100.32.0/20", "10.100.48.0/20"},

		InstanceType:     "t3.small",
		ImageNamePattern: "amzn2-ami-kernel-5.10-*",

		Capacity:             4,
		MinHealthyPercentage: 50,
		InstanceWarmup:       2,

		ServicePort:         80,
		MonitoringPort:      8113,
		MonitoringPath:      "metrics",
		NginxConfigPath:     "/etc/nginx/conf.d/nginx-status.conf",
		HealthyThreshold:    3,
		HealthCheckInterval: 6,
	}
}

// Tags returns the tags every resource carries.
func (s Settings) Tags() map[string]string {
	return map[string]string{
		"pulumi-project": s.Project,
		"pulumi-stack":   s.Stack,
	}
}

// ParameterPath is the SSM key the rendered monitoring config is published
// under and fetched from at first boot.
func (s Settings) ParameterPath() string {
	return fmt.Sprintf("/%s/nginx_stub_status_config", s.ClusterName)
}

// ZoneCount is the number of availability zones the topology consumes.
func (s Settings) ZoneCount() int {
	return len(s.PublicSubnetCIDRs)
}

// Validate returns every configuration error at once.
func (s Settings) Validate() error {
	var result *multierror.Error
	if strings.TrimSpace(s.SSHKeyName) == "" {
		result = multierror.Append(result, ErrMissingSSHKey)
	}
	if s.Prefix == "" {
		result = multierror.Append(result, errors.New("prefix must not be empty"))
	}
	if s.ClusterName == "" {
		result = multierror.Append(result, errors.New("cluster name must not be empty"))
	}
	if s.VpcCIDR == "" {
		result = multierror.Append(result, errors.New("vpc cidr must not be empty"))
	}
	if len(s.PublicSubnetCIDRs) == 0 {
		result = multierror.Append(result, errors.New("at least one public subnet cidr is required"))
	}
	if len(s.PublicSubnetCIDRs) != len(s.PrivateSubnetCIDRs) {
		result = multierror.Append(result, fmt.Errorf("%d public subnet cidrs but %d private subnet cidrs",
			len(s.PublicSubnetCIDRs), len(s.PrivateSubnetCIDRs)))
	}
	for _, p := range []struct {
		name string
		port int
	}{
		{"service port", s.ServicePort},
		{"monitoring port", s.MonitoringPort},
	} {
		if p.port <= 0 || p.port > 65535 {
			result = multierror.Append(result, fmt.Errorf("%s %d out of range", p.name, p.port))
		}
	}
	if s.ServicePort == s.MonitoringPort {
		result = multierror.Append(result, fmt.Errorf("service and monitoring port are both %d", s.ServicePort))
	}
	if s.MonitoringPath == "" || strings.HasPrefix(s.MonitoringPath, "/") {
		result = multierror.Append(result, fmt.Errorf("monitoring path %q must be non-empty and relative", s.MonitoringPath))
	}
	if s.Capacity <= 0 {
		result = multierror.Append(result, fmt.Errorf("capacity must be positive, got %d", s.Capacity))
	}
	if s.MinHealthyPercentage < 0 || s.MinHealthyPercentage > 100 {
		result = multierror.Append(result, fmt.Errorf("min healthy percentage %d outside 0..100", s.MinHealthyPercentage))
	}
	if s.InstanceType == "" {
		result = multierror.Append(result, errors.New("instance type must not be empty"))
	}
	if s.HealthyThreshold < 2 || s.HealthyThreshold > 10 {
		result = multierror.Append(result, fmt.Errorf("healthy threshold %d outside 2..10", s.HealthyThreshold))
	}
	if s.HealthCheckInterval < 5 || s.HealthCheckInterval > 300 {
		result = multierror.Append(result, fmt.Errorf("health check interval %d outside 5..300", s.HealthCheckInterval))
	}
	return result.ErrorOrNil()
}

// LoadFile reads settings from a YAML file. Fields absent from the file keep
// their defaults.
func LoadFile(path string) (Settings, error) {
	s := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

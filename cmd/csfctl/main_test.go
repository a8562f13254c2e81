package main

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"csf-controls-demo/internal/audit"
	"csf-controls-demo/internal/plan"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPlanOffline(t *testing.T) {
	out, err := run(t, "plan", "--region", "eu-west-1")
	require.NoError(t, err)

	var s plan.Summary
	require.NoError(t, yaml.Unmarshal([]byte(out), &s))
	assert.Equal(t, "eu-west-1", s.Region)
	assert.Equal(t, []string{"eu-west-1a", "eu-west-1b"}, s.Zones)
	assert.Equal(t, placeholderImage, s.ImageID)
	assert.True(t, s.Controls.DeletionProtection)
	assert.False(t, s.Controls.PublicIP)
	assert.Equal(t, "ec2.Vpc::demo-vpc", s.Declarations[0])
}

func TestPlanZonesFlag(t *testing.T) {
	out, err := run(t, "plan", "--zones", "us-east-1c,us-east-1d,us-east-1a")
	require.NoError(t, err)

	var s plan.Summary
	require.NoError(t, yaml.Unmarshal([]byte(out), &s))
	assert.Equal(t, []string{"us-east-1c", "us-east-1d"}, s.Zones)

	_, err = run(t, "plan", "--zones", "us-east-1c")
	assert.Error(t, err)
}

func TestPlanSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
prefix: acme
ssh_key_name: ops
public_subnet_cidrs: [10.100.0.0/20, 10.100.16.0/20, 10.100.64.0/20]
private_subnet_cidrs: [10.100.32.0/20, 10.100.48.0/20, 10.100.80.0/20]
`), 0o600))

	out, err := run(t, "plan", "-s", path)
	require.NoError(t, err)

	var s plan.Summary
	require.NoError(t, yaml.Unmarshal([]byte(out), &s))
	assert.Len(t, s.Zones, 3)
	assert.Equal(t, 3, s.Kinds["ec2.NatGateway"])
	assert.Equal(t, "ec2.Vpc::acme-vpc", s.Declarations[0])
}

func TestGraph(t *testing.T) {
	out, err := run(t, "graph")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "digraph"))

	out, err = run(t, "graph", "-f", "mermaid", "-c")
	require.NoError(t, err)
	assert.NotContains(t, out, "digraph")

	_, err = run(t, "graph", "-f", "png")
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	out, err := run(t, "render", "stub-status")
	require.NoError(t, err)
	assert.Contains(t, out, "stub_status;")
	assert.Contains(t, out, "listen 0.0.0.0:8113;")

	out, err = run(t, "render", "user-data", "--base64")
	require.NoError(t, err)
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "/demoWebCluster/nginx_stub_status_config")

	_, err = run(t, "render", "nginx.conf")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "csfctl "))
	assert.NotEqual(t, "csfctl \n", out)
}

func TestWriteReport(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := writeReport(cmd, audit.Report{Findings: []audit.Finding{{Check: "lb.cross-zone", Resource: "demo-pub-alb", Passed: true}}})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "check: lb.cross-zone")

	err = writeReport(cmd, audit.Report{Findings: []audit.Finding{
		{Check: "lb.cross-zone", Passed: true},
		{Check: "instance.no-public-ip", Resource: "i-1", Detail: "public ip 54.1.2.3"},
	}})
	assert.ErrorIs(t, err, errAuditFailed)
	assert.Contains(t, err.Error(), "1 of 2 checks failed")
}

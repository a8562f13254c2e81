// Package render produces the monitoring endpoint config and the instance
// boot script from their templates.
package render

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"strconv"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

//go:embed templates/*.tmpl
var templates embed.FS

// MissingParamError names the parameter a template needed but did not get.
type MissingParamError struct {
	Template string
	Field    string
}

func (e *MissingParamError) Error() string {
	return fmt.Sprintf("template %s: missing parameter %q", e.Template, e.Field)
}

// Template is a named text template and the parameters it cannot render
// without.
type Template struct {
	Name     string
	Text     string
	Required []string
}

var (
	StubStatusTemplate = mustLoad("nginx-stub-status.conf.tmpl", "port", "path", "cidr")
	UserDataTemplate   = mustLoad("user-data.sh.tmpl", "parameter_path", "region", "config_path")
)

func mustLoad(name string, required ...string) Template {
	text, err := templates.ReadFile("templates/" + name)
	if err != nil {
		panic(fmt.Errorf("loading template %s: %w", name, err))
	}
	return Template{Name: name, Text: string(text), Required: required}
}

// Render substitutes params into the template. Every required parameter must
// be present and non-empty.
func (t Template) Render(params map[string]string) (string, error) {
	for _, field := range t.Required {
		if params[field] == "" {
			return "", &MissingParamError{Template: t.Name, Field: field}
		}
	}
	tpl, err := template.New(t.Name).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(t.Text)
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", t.Name, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", t.Name, err)
	}
	return buf.String(), nil
}

// StubStatus renders the nginx server block exposing stub_status on port and
// path to clients from cidr.
func StubStatus(port int, path, cidr string) (string, error) {
	p := ""
	if port > 0 {
		p = strconv.Itoa(port)
	}
	return StubStatusTemplate.Render(map[string]string{
		"port": p,
		"path": path,
		"cidr": cidr,
	})
}

// UserData renders the first-boot script that installs nginx and fetches the
// stub status config from parameterPath.
func UserData(parameterPath, region, configPath string) (string, error) {
	return UserDataTemplate.Render(map[string]string{
		"parameter_path": parameterPath,
		"region":         region,
		"config_path":    configPath,
	})
}

// Base64 encodes a boot script the way launch templates expect it.
func Base64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

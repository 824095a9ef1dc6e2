package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"cohortline/exportd/pkg/cli"
	"cohortline/exportd/pkg/export"
	"cohortline/exportd/pkg/export/request"
)

// requestFlags are the scope and parameter flags shared by export, process
// submit and profile set.
type requestFlags struct {
	deployment   string
	deployments  []string
	organization string
	profile      string
	params       []string
	paramsFile   string
}

func (f *requestFlags) register(cmd *cobra.Command, withProfile bool) {
	fs := cmd.Flags()
	fs.StringVar(&f.deployment, "deployment", "", "deployment id")
	fs.StringSliceVar(&f.deployments, "deployments", nil, "comma-separated deployment ids")
	fs.StringVar(&f.organization, "organization", "", "organization id (all its deployments)")
	fs.StringArrayVarP(&f.params, "param", "p", nil, "request parameter key=value; JSON values are decoded (repeatable)")
	fs.StringVar(&f.paramsFile, "params-file", "", "YAML or JSON file of request parameters")
	if withProfile {
		fs.StringVar(&f.profile, "profile", "", "named export profile of the scope")
	}
}

func (f *requestFlags) scope() export.Scope {
	return export.Scope{
		DeploymentID:   f.deployment,
		DeploymentIDs:  f.deployments,
		OrganizationID: f.organization,
	}
}

// values merges the params file with --param flags; flags win.
func (f *requestFlags) values() (map[string]any, error) {
	params := make(map[string]any)
	if f.paramsFile != "" {
		data, err := os.ReadFile(f.paramsFile)
		if err != nil {
			return nil, cli.NewConfigError("params-file", err.Error())
		}
		if err := yaml.Unmarshal(data, &params); err != nil {
			return nil, cli.NewConfigError("params-file", err.Error())
		}
	}
	for _, kv := range f.params {
		key, value, err := parseParam(kv)
		if err != nil {
			return nil, err
		}
		params[key] = value
	}
	return params, nil
}

func (f *requestFlags) input() (request.Input, error) {
	params, err := f.values()
	if err != nil {
		return request.Input{}, err
	}
	return request.Input{Scope: f.scope(), Params: params, ProfileName: f.profile}, nil
}

// parseParam splits key=value. A value that is valid JSON is decoded, so
// deIdentified=true is a bool and userIds=["a","b"] a list; anything else
// stays a string.
func parseParam(kv string) (string, any, error) {
	key, raw, ok := strings.Cut(kv, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, cli.NewConfigError("param", fmt.Sprintf("expected key=value, got %q", kv))
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return key, raw, nil
	}
	return key, value, nil
}

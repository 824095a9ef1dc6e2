// Package request turns raw caller parameters and an optional export profile
// into one immutable export.Request.
//
// Merging is shallow: the profile content is the base and every key the
// caller supplies replaces the base key at full value. Nested objects are
// never merged key by key.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	"cohortline/exportd/pkg/export"
)

// Input is one caller invocation.
type Input struct {
	Scope export.Scope
	// Params holds caller parameters keyed by their JSON names.
	Params map[string]any
	// ProfileName selects a named profile of the scope. Empty means the
	// scope's default profile, if profiles are enabled.
	ProfileName string
}

// Resolved is the outcome of resolution.
type Resolved struct {
	Request export.Request
	// DeploymentIDs is the expanded scope in processing order.
	DeploymentIDs []string
	// Profile is the profile that served as the base, if any.
	Profile *export.Profile
}

// Resolver resolves export requests. Resolution reads profiles and
// organization membership and has no other side effects.
type Resolver struct {
	profiles    export.ProfileStore
	deployments export.DeploymentRepository
	useProfiles bool
	logger      *slog.Logger
}

// NewResolver creates a resolver. profiles may be nil when useProfiles is
// false.
func NewResolver(profiles export.ProfileStore, deployments export.DeploymentRepository, useProfiles bool) *Resolver {
	return &Resolver{
		profiles:    profiles,
		deployments: deployments,
		useProfiles: useProfiles && profiles != nil,
		logger:      slog.Default().With("component", "export.request"),
	}
}

// Resolve validates the input, merges it over the applicable profile and
// expands the scope into deployment ids.
func (r *Resolver) Resolve(ctx context.Context, in Input) (*Resolved, error) {
	if err := in.Scope.Validate(); err != nil {
		return nil, err
	}
	for _, key := range export.ProfileOnlyFields {
		if _, ok := in.Params[key]; ok {
			return nil, export.NewValidationError(key, "may only be set through an export profile")
		}
	}

	profile, err := r.profile(ctx, in)
	if err != nil {
		return nil, err
	}

	merged := Merge(export.DefaultRequestParams(), profileContent(profile), in.Params)
	req, err := Decode(merged)
	if err != nil {
		return nil, err
	}
	req.Scope = cloneScope(in.Scope)
	applyDeidentifyDefaults(&req, profile)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	ids, err := r.deploymentIDs(ctx, req.Scope)
	if err != nil {
		return nil, err
	}

	profileName := ""
	if profile != nil {
		profileName = profile.Name
	}
	r.logger.Debug("export request resolved",
		"deployments", len(ids),
		"profile", profileName,
		"view", req.View,
		"format", req.Format,
	)

	return &Resolved{Request: req, DeploymentIDs: ids, Profile: profile}, nil
}

// profile returns the named profile, the scope default, or nil.
func (r *Resolver) profile(ctx context.Context, in Input) (*export.Profile, error) {
	deploymentID, organizationID := in.Scope.DeploymentID, in.Scope.OrganizationID
	singleScope := deploymentID != "" || organizationID != ""

	if in.ProfileName != "" {
		if r.profiles == nil {
			return nil, export.NewValidationError("profileName", "export profiles are not configured")
		}
		if !singleScope {
			return nil, export.NewValidationError("profileName", "profiles require a deploymentId or organizationId scope")
		}
		return r.profiles.FindProfile(ctx, in.ProfileName, deploymentID, organizationID)
	}

	if !r.useProfiles || !singleScope {
		return nil, nil
	}
	p, err := r.profiles.DefaultProfile(ctx, deploymentID, organizationID)
	if errors.Is(err, export.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func profileContent(p *export.Profile) map[string]any {
	if p == nil {
		return nil
	}
	return p.Content
}

// Merge overlays each layer onto the previous ones. A key present in a later
// layer replaces the earlier value entirely.
func Merge(layers ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = export.CloneValue(v)
		}
	}
	return out
}

// Decode converts JSON-keyed parameters into a Request. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func Decode(params map[string]any) (export.Request, error) {
	var req export.Request
	data, err := json.Marshal(params)
	if err != nil {
		return req, export.NewValidationError("params", err.Error())
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, export.NewValidationError("params", err.Error())
	}
	return req, nil
}

// applyDeidentifyDefaults fills the de-identification lists the profile did
// not provide.
func applyDeidentifyDefaults(req *export.Request, p *export.Profile) {
	if !req.Deidentified {
		return
	}
	content := profileContent(p)
	if _, ok := content["deIdentifyRemoveFields"]; !ok {
		req.DeidentifyRemoveFields = slices.Clone(export.DefaultDeidentifyRemoveFields)
	}
	if _, ok := content["deIdentifyHashFields"]; !ok {
		req.DeidentifyHashFields = slices.Clone(export.DefaultDeidentifyHashFields)
	}
}

func cloneScope(s export.Scope) export.Scope {
	s.DeploymentIDs = slices.Clone(s.DeploymentIDs)
	return s
}

func (r *Resolver) deploymentIDs(ctx context.Context, scope export.Scope) ([]string, error) {
	switch {
	case scope.DeploymentID != "":
		return []string{scope.DeploymentID}, nil
	case len(scope.DeploymentIDs) > 0:
		seen := make(map[string]struct{}, len(scope.DeploymentIDs))
		var ids []string
		for _, id := range scope.DeploymentIDs {
			if _, ok := seen[id]; ok || id == "" {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		return ids, nil
	default:
		ids, err := r.deployments.RetrieveDeploymentIDs(ctx, scope.OrganizationID)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, export.NewNotFoundError("organization deployments", scope.OrganizationID)
		}
		return slices.Clone(ids), nil
	}
}

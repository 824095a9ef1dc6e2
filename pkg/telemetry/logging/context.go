package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	// ProcessIDKey is the context key for export process ids.
	ProcessIDKey contextKey = "process_id"

	// DeploymentIDKey is the context key for the deployment being exported.
	DeploymentIDKey contextKey = "deployment_id"

	// RequesterIDKey is the context key for the user who requested the export.
	RequesterIDKey contextKey = "requester_id"
)

// WithProcessID adds an export process id to the context.
func WithProcessID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ProcessIDKey, id)
}

// GetProcessID retrieves the export process id from the context.
func GetProcessID(ctx context.Context) string {
	id, _ := ctx.Value(ProcessIDKey).(string)
	return id
}

// WithDeploymentID adds a deployment id to the context.
func WithDeploymentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, DeploymentIDKey, id)
}

// GetDeploymentID retrieves the deployment id from the context.
func GetDeploymentID(ctx context.Context) string {
	id, _ := ctx.Value(DeploymentIDKey).(string)
	return id
}

// WithRequesterID adds a requester id to the context.
func WithRequesterID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequesterIDKey, id)
}

// GetRequesterID retrieves the requester id from the context.
func GetRequesterID(ctx context.Context) string {
	id, _ := ctx.Value(RequesterIDKey).(string)
	return id
}

// FromContext returns logger enriched with the ids carried by ctx.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if fields := extractContextFields(ctx); len(fields) > 0 {
		return logger.With(fields...)
	}
	return logger
}

func extractContextFields(ctx context.Context) []any {
	var fields []any
	if id := GetProcessID(ctx); id != "" {
		fields = append(fields, "process_id", id)
	}
	if id := GetDeploymentID(ctx); id != "" {
		fields = append(fields, "deployment_id", id)
	}
	if id := GetRequesterID(ctx); id != "" {
		fields = append(fields, "requester_id", id)
	}
	return fields
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"cohortline/exportd/pkg/config"
)

func TestNew_Formats(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		wantErr bool
	}{
		{"json", "json", false},
		{"text", "text", false},
		{"default", "", false},
		{"invalid", "xml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			_, err := New(config.LoggingConfig{Level: "info", Format: tt.format}, &buf)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn message should be written")
	}
}

func TestNew_RedactsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	logger.Info("signed",
		"url", "https://s3.local/b/k?X-Amz-Credential=AKIA123&X-Amz-Signature=deadbeef",
		"secret_key", "hunter2",
		"uri", "mongodb://admin:pa55@db:27017",
		"error", errors.New("user jane@example.org missing"),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line: %v", err)
	}

	if got := entry["secret_key"]; got != "***" {
		t.Errorf("secret_key = %v, want ***", got)
	}
	url := entry["url"].(string)
	if strings.Contains(url, "deadbeef") || strings.Contains(url, "AKIA123") {
		t.Errorf("signature not redacted: %s", url)
	}
	if strings.Contains(entry["uri"].(string), "pa55") {
		t.Errorf("connection password not redacted: %s", entry["uri"])
	}
	if strings.Contains(entry["error"].(string), "jane@example.org") {
		t.Errorf("email not redacted: %s", entry["error"])
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base, err := New(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx := WithProcessID(context.Background(), "p-1")
	ctx = WithDeploymentID(ctx, "d-1")
	FromContext(ctx, base).Info("run")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line: %v", err)
	}
	if entry["process_id"] != "p-1" || entry["deployment_id"] != "d-1" {
		t.Errorf("context fields missing: %v", entry)
	}
	if _, ok := entry["requester_id"]; ok {
		t.Error("unset requester id should not be logged")
	}
}

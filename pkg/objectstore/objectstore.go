// Package objectstore provides the binary storage adapters used for record
// attachments and for uploading finished export archives.
package objectstore

import (
	"fmt"
	"mime"
	"path"

	"cohortline/exportd/pkg/config"
	"cohortline/exportd/pkg/export"
)

// New creates the object store selected by cfg.Backend.
func New(cfg config.ObjectStoreConfig) (export.ObjectStorage, error) {
	switch cfg.Backend {
	case "minio":
		return NewMinIOStore(cfg)
	case "memory", "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown object store backend %q", cfg.Backend)
	}
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

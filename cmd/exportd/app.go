package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cohortline/exportd/pkg/config"
	"cohortline/exportd/pkg/export"
	"cohortline/exportd/pkg/export/engine"
	"cohortline/exportd/pkg/export/jobs"
	"cohortline/exportd/pkg/export/storage"
	"cohortline/exportd/pkg/localization"
	"cohortline/exportd/pkg/objectstore"
	"cohortline/exportd/pkg/repository/mongo"
	"cohortline/exportd/pkg/telemetry/metrics"
)

// app holds the components built from configuration. Fields are nil until
// the matching open call succeeds.
type app struct {
	cfg     *config.Config
	store   storage.Storage
	mongo   *mongo.Store
	objects export.ObjectStorage
	locker  jobs.Locker
	catalog *localization.Catalog
	metrics *metrics.Collector
	engine  *engine.Engine
}

// openStorage opens only the profile and process store.
func openStorage(cfg *config.Config) (*app, error) {
	store, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return &app{cfg: cfg, store: store}, nil
}

// openEngine opens every collaborator of the export engine.
func openEngine(ctx context.Context, cfg *config.Config) (*app, error) {
	a, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}
	if err := a.openEngine(ctx); err != nil {
		a.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return a, nil
}

func (a *app) openEngine(ctx context.Context) error {
	var err error
	if a.mongo, err = mongo.Connect(ctx, a.cfg.Mongo); err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	if a.objects, err = objectstore.New(a.cfg.ObjectStore); err != nil {
		return fmt.Errorf("open object store: %w", err)
	}
	if a.catalog, err = localization.Open(a.cfg.Localization.BundlePath); err != nil {
		return fmt.Errorf("open localization bundle: %w", err)
	}
	a.metrics = metrics.NewCollector(&a.cfg.Telemetry.Metrics, nil)

	a.engine = engine.New(engine.Repositories{
		Primitives:  a.mongo,
		Users:       a.mongo,
		Consents:    a.mongo,
		Deployments: a.mongo,
	}, engine.Options{
		Profiles:    a.store,
		Objects:     a.objects,
		Catalog:     a.catalog,
		Export:      a.cfg.Export,
		ObjectStore: a.cfg.ObjectStore,
		Metrics:     a.metrics,
	})
	return nil
}

// openLocker opens the submission lock backend.
func (a *app) openLocker(ctx context.Context) error {
	locker, err := jobs.NewLocker(ctx, a.cfg.Lock)
	if err != nil {
		return fmt.Errorf("open lock backend: %w", err)
	}
	a.locker = locker
	return nil
}

// tracker returns a process tracker on the app's store and locker.
func (a *app) tracker() *jobs.Tracker {
	return jobs.NewTracker(a.store, a.locker, a.cfg.Lock.TTL)
}

// Close releases every opened component.
func (a *app) Close(ctx context.Context) {
	var errs []error
	if closer, ok := a.locker.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	if a.mongo != nil {
		errs = append(errs, a.mongo.Close(ctx))
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("failed to close components", "error", err)
	}
}

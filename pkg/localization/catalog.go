package localization

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"cohortline/exportd/pkg/export/revere"
)

// Catalog serves the current bundle. Reload swaps the bundle atomically;
// lookups in flight keep the bundle they started with.
type Catalog struct {
	path    string
	current atomic.Pointer[Bundle]
	// reload serializes file reads so an older read never replaces a newer
	// one.
	reload sync.Mutex
	logger *slog.Logger
}

// NewCatalog creates a catalog serving b. A catalog created this way has no
// file and Reload is a no-op.
func NewCatalog(b *Bundle) *Catalog {
	if b == nil {
		b = Empty()
	}
	c := &Catalog{logger: slog.Default().With("component", "localization")}
	c.current.Store(b)
	return c
}

// Open loads the bundle at path. An empty path yields an empty catalog.
func Open(path string) (*Catalog, error) {
	if path == "" {
		return NewCatalog(nil), nil
	}
	b, err := LoadBundle(path)
	if err != nil {
		return nil, err
	}
	c := NewCatalog(b)
	c.path = path
	c.logLoaded(b)
	return c, nil
}

// Path returns the bundle file, if any.
func (c *Catalog) Path() string {
	return c.path
}

// Bundle returns the current bundle.
func (c *Catalog) Bundle() *Bundle {
	return c.current.Load()
}

// Reload re-reads the bundle file. On error the previous bundle stays in
// place.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}
	c.reload.Lock()
	defer c.reload.Unlock()

	b, err := LoadBundle(c.path)
	if err != nil {
		return err
	}
	c.current.Store(b)
	c.logLoaded(b)
	return nil
}

func (c *Catalog) logLoaded(b *Bundle) {
	languages, entries, shortCodes := b.Stats()
	c.logger.Info("localization bundle loaded",
		"path", c.path,
		"languages", languages,
		"entries", entries,
		"short_codes", shortCodes,
	)
}

// Localize implements transform.Localizer.
func (c *Catalog) Localize(language, key string) (string, bool) {
	return c.Bundle().Localize(language, key)
}

// Lookup implements transform.ShortCodes.
func (c *Catalog) Lookup(moduleName, value string) (string, bool) {
	return c.Bundle().Lookup(moduleName, value)
}

// Homophones returns the current bundle's homophones.
func (c *Catalog) Homophones() revere.Homophones {
	return c.Bundle().Homophones()
}

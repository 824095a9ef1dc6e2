package localization

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"
)

const bundleYAML = `
localizations:
  en:
    hu_weight: Weight
  de:
    hu_weight: Gewicht
short_codes:
  global:
    Mood: GM
    Weight: WT
  modules:
    Questionnaire:
      Mood: QM
homophones:
  drum: [drumm]
  hat: [hatte]
`

func writeBundle(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
}

func TestParseBundle(t *testing.T) {
	b, err := ParseBundle([]byte(bundleYAML))
	if err != nil {
		t.Fatalf("ParseBundle() failed: %v", err)
	}

	tests := []struct {
		lang, key string
		want      string
		wantOK    bool
	}{
		{"en", "hu_weight", "Weight", true},
		{"de", "hu_weight", "Gewicht", true},
		{"de-AT", "hu_weight", "Gewicht", true},
		{"fr", "hu_weight", "", false},
		{"en", "missing", "", false},
	}
	for _, tt := range tests {
		got, ok := b.Localize(tt.lang, tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Localize(%q, %q) = %q, %v; want %q, %v", tt.lang, tt.key, got, ok, tt.want, tt.wantOK)
		}
	}

	if code, _ := b.Lookup("Questionnaire", "Mood"); code != "QM" {
		t.Errorf("module short code = %q, want QM", code)
	}
	if code, _ := b.Lookup("Symptom", "Mood"); code != "GM" {
		t.Errorf("global short code = %q, want GM", code)
	}
	if _, ok := b.Lookup("Symptom", "Nausea"); ok {
		t.Error("unknown value should have no short code")
	}

	h := b.Homophones()
	if !slices.Equal(h["drum"], []string{"drumm"}) {
		t.Errorf("extra homophone = %v", h["drum"])
	}
	if !slices.Equal(h["hat"], []string{"hatt", "hatte"}) {
		t.Errorf("merged homophones = %v", h["hat"])
	}

	languages, entries, codes := b.Stats()
	if languages != 2 || entries != 2 || codes != 3 {
		t.Errorf("Stats() = %d, %d, %d", languages, entries, codes)
	}
}

func TestParseBundle_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "translations:\n  en: {}\n"},
		{"empty module code", "short_codes:\n  modules:\n    Weight:\n      kg: \"\"\n"},
		{"empty global code", "short_codes:\n  global:\n    kg: \"\"\n"},
		{"malformed", "localizations: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseBundle([]byte(tt.yaml)); err == nil {
				t.Error("ParseBundle() should fail")
			}
		})
	}

	if _, err := ParseBundle(nil); err != nil {
		t.Errorf("empty bundle should parse: %v", err)
	}
}

func TestCatalog_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.yaml")
	writeBundle(t, path, bundleYAML)

	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if v, _ := c.Localize("en", "hu_weight"); v != "Weight" {
		t.Fatalf("Localize() = %q", v)
	}

	writeBundle(t, path, "localizations:\n  en:\n    hu_weight: Body weight\n")
	if err := c.Reload(); err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}
	if v, _ := c.Localize("en", "hu_weight"); v != "Body weight" {
		t.Errorf("after reload Localize() = %q", v)
	}

	writeBundle(t, path, "localizations: [\n")
	if err := c.Reload(); err == nil {
		t.Error("Reload() of a broken file should fail")
	}
	if v, _ := c.Localize("en", "hu_weight"); v != "Body weight" {
		t.Errorf("broken reload replaced bundle: %q", v)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	c, err := Open("")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if c.Homophones()["hat"] == nil {
		t.Error("empty catalog should carry default homophones")
	}
	if err := c.Reload(); err != nil {
		t.Errorf("Reload() = %v", err)
	}
	if _, err := NewWatcher(c, 0); err == nil {
		t.Error("NewWatcher() without a file should fail")
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.yaml")
	writeBundle(t, path, bundleYAML)
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	w, err := NewWatcher(c, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)
	writeBundle(t, path, "localizations:\n  en:\n    hu_weight: Mass\n")

	deadline := time.Now().Add(5 * time.Second)
	for {
		if v, _ := c.Localize("en", "hu_weight"); v == "Mass" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("bundle was not reloaded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() = %v", err)
	}
}

func TestDebouncer_Coalesces(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var calls atomic.Int32
	for range 5 {
		d.Trigger(func() { calls.Add(1) })
	}
	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("callback ran %d times, want 1", got)
	}

	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("stopped debouncer ran callback, calls = %d", got)
	}
}

// Package localization loads the global localization bundle: translated
// strings per language, short codes and Revere homophones. Deployment
// localizations take precedence over the bundle; the export engine consults
// the bundle only when a deployment has no entry.
//
// A bundle is a YAML file:
//
//	localizations:
//	  en:
//	    hu_weight: Weight
//	short_codes:
//	  global:
//	    Weight: WT
//	  modules:
//	    Questionnaire:
//	      Mood: MD
//	homophones:
//	  drum: [drumm]
//
// A Catalog holds the current bundle and can be reloaded in place, by hand
// or by a Watcher when the file changes.
package localization

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"cohortline/exportd/pkg/export/revere"
)

// Bundle is a parsed localization bundle. It is immutable once loaded.
type Bundle struct {
	Localizations map[string]map[string]string `yaml:"localizations"`
	ShortCodes    ShortCodes                   `yaml:"short_codes"`
	// Extra homophones are merged over revere.DefaultHomophones.
	Extra revere.Homophones `yaml:"homophones"`

	homophones revere.Homophones
}

// ShortCodes maps values to short codes, globally and per module.
type ShortCodes struct {
	Global  map[string]string            `yaml:"global"`
	Modules map[string]map[string]string `yaml:"modules"`
}

// ParseBundle decodes a bundle. Unknown keys are rejected so typos surface
// at load time.
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse localization bundle: %w", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	b.homophones = mergeHomophones(revere.DefaultHomophones, b.Extra)
	return &b, nil
}

// LoadBundle reads and parses the bundle at path.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read localization bundle %q: %w", path, err)
	}
	return ParseBundle(data)
}

// Empty returns a bundle with only the default homophones.
func Empty() *Bundle {
	return &Bundle{homophones: mergeHomophones(revere.DefaultHomophones, nil)}
}

func (b *Bundle) validate() error {
	for lang := range b.Localizations {
		if strings.TrimSpace(lang) == "" {
			return fmt.Errorf("localization bundle: empty language code")
		}
	}
	for module, codes := range b.ShortCodes.Modules {
		if module == "" {
			return fmt.Errorf("localization bundle: short codes for empty module name")
		}
		for value, code := range codes {
			if code == "" {
				return fmt.Errorf("localization bundle: empty short code for %s.%s", module, value)
			}
		}
	}
	for value, code := range b.ShortCodes.Global {
		if code == "" {
			return fmt.Errorf("localization bundle: empty global short code for %s", value)
		}
	}
	return nil
}

// Localize returns the string for key in language. A regional language
// such as "en-GB" falls back to its base language.
func (b *Bundle) Localize(language, key string) (string, bool) {
	if v, ok := b.Localizations[language][key]; ok {
		return v, true
	}
	if base, _, found := strings.Cut(language, "-"); found {
		v, ok := b.Localizations[base][key]
		return v, ok
	}
	return "", false
}

// Lookup returns the short code for value. Module entries win over global
// ones.
func (b *Bundle) Lookup(moduleName, value string) (string, bool) {
	if code, ok := b.ShortCodes.Modules[moduleName][value]; ok {
		return code, true
	}
	code, ok := b.ShortCodes.Global[value]
	return code, ok
}

// Homophones returns the default homophones merged with the bundle's.
func (b *Bundle) Homophones() revere.Homophones {
	return b.homophones
}

// Stats summarizes the bundle for logging.
func (b *Bundle) Stats() (languages, entries, shortCodes int) {
	for _, m := range b.Localizations {
		languages++
		entries += len(m)
	}
	shortCodes = len(b.ShortCodes.Global)
	for _, codes := range b.ShortCodes.Modules {
		shortCodes += len(codes)
	}
	return languages, entries, shortCodes
}

func mergeHomophones(base, extra revere.Homophones) revere.Homophones {
	out := make(revere.Homophones, len(base)+len(extra))
	for word, spellings := range base {
		out[word] = append([]string(nil), spellings...)
	}
	for word, spellings := range extra {
		out[word] = append(out[word], spellings...)
	}
	return out
}

package moduleconfig

import (
	"maps"
	"slices"
	"sync"

	"cohortline/exportd/pkg/export"
)

// versionKey distinguishes a genuine version from an unversioned config.
type versionKey struct {
	set bool
	v   int
}

func keyOf(version *int) versionKey {
	if version == nil {
		return versionKey{}
	}
	return versionKey{set: true, v: *version}
}

// Index maps moduleId → configId → version → config snapshot.
// It is safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	entries map[string]map[string]map[versionKey]export.ModuleConfig
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]map[string]map[versionKey]export.ModuleConfig)}
}

// Add indexes configs. An existing entry for the same key is kept, so
// configs added first win. Configs whose body carries an "id" (questionnaire
// configs) are also indexed under that id.
func (ix *Index) Add(configs ...export.ModuleConfig) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, mc := range configs {
		ix.put(mc.ModuleID, mc.ID, mc)
		if qid, ok := mc.Body["id"].(string); ok && qid != "" && qid != mc.ID {
			ix.put(mc.ModuleID, qid, mc)
		}
	}
}

func (ix *Index) put(moduleID, configID string, mc export.ModuleConfig) {
	byConfig, ok := ix.entries[moduleID]
	if !ok {
		byConfig = make(map[string]map[versionKey]export.ModuleConfig)
		ix.entries[moduleID] = byConfig
	}
	byVersion, ok := byConfig[configID]
	if !ok {
		byVersion = make(map[versionKey]export.ModuleConfig)
		byConfig[configID] = byVersion
	}
	key := keyOf(mc.Version)
	if _, exists := byVersion[key]; !exists {
		byVersion[key] = mc
	}
}

// Get returns the config stored under the exact key.
func (ix *Index) Get(moduleID, configID string, version *int) (export.ModuleConfig, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	mc, ok := ix.entries[moduleID][configID][keyOf(version)]
	return mc, ok
}

// Latest returns the highest versioned config for the id, falling back to
// the unversioned entry.
func (ix *Index) Latest(moduleID, configID string) (export.ModuleConfig, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	byVersion := ix.entries[moduleID][configID]
	if len(byVersion) == 0 {
		return export.ModuleConfig{}, false
	}
	var best versionKey
	found := false
	for key := range byVersion {
		if !key.set {
			continue
		}
		if !found || key.v > best.v {
			best, found = key, true
		}
	}
	if !found {
		mc, ok := byVersion[versionKey{}]
		return mc, ok
	}
	return byVersion[best], true
}

// Versions returns the genuine versions indexed for the id in ascending order.
func (ix *Index) Versions(moduleID, configID string) []int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var versions []int
	for key := range maps.Keys(ix.entries[moduleID][configID]) {
		if key.set {
			versions = append(versions, key.v)
		}
	}
	slices.Sort(versions)
	return versions
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := 0
	for _, byConfig := range ix.entries {
		for _, byVersion := range byConfig {
			n += len(byVersion)
		}
	}
	return n
}

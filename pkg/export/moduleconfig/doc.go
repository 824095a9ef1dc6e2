// Package moduleconfig resolves the module configuration a record was
// submitted against.
//
// Every export run creates an Arena. The Arena holds one Resolver per
// deployment, each with its own Index seeded from the live deployment. Lookups
// that miss the index trigger at most one revision query per
// (moduleId, configId, version) within the run; the revision's configs are
// merged into the index.
//
// Version 0 is treated as the legacy unversioned config when no genuine
// version 0 exists. When both exist, version 0 wins and the ambiguity is
// logged and counted once.
package moduleconfig

// Package export defines the shared model of the clinical-data export engine:
// the resolved Request, Record and Dataset values that flow through a run,
// profile and process state, the typed errors, and the repository and
// object-storage contracts the engine consumes.
//
// # Run Flow
//
//	Request Resolver (request)
//	     ↓
//	Fetchers (fetch) ── Module-Config Resolver (moduleconfig)
//	     ↓
//	Binary Resolver (binary)
//	     ↓
//	Transform Pipeline (transform)
//	     ↓
//	Output Assembler (output) → zip archive or single payload
//
// Asynchronous runs are wrapped by the process tracker in package jobs.
//
// # Immutability
//
// A Request is resolved once per run and passed by value. Records are never
// mutated by a pipeline stage; each stage derives new field maps.
package export

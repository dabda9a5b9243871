// Package services implements the business layer between the HTTP handlers
// and the dataset packages.
//
// # Dataset handle
//
// DatasetHandle owns the dataset. It is created once at startup and passed
// to every service that needs it; there is no package-level dataset. The
// first Snapshot call reads, resolves and cleans the source. Later calls
// return the same immutable Snapshot without touching the file:
//
//	handle := services.NewDatasetHandle(services.HandleOptions{
//	    Path:            cfg.Dataset.Path,
//	    IdentifierWidth: cfg.Dataset.IdentifierWidth,
//	    Logger:          logger,
//	})
//	snap, err := handle.Snapshot(ctx)
//
// Override and Reload swap the snapshot atomically. Readers holding an
// older snapshot are unaffected.
//
// # Available Services
//
//   - IndexService: entity lookups, group averages, comparisons
//   - HealthService: liveness, readiness and version information
//
// # Error Handling
//
// Services return the errors of the dataset, schema and query packages
// wrapped with context. Outcome classifies them for metrics and Guidance
// turns them into a hint a user can act on.
package services

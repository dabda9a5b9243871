// Package http implements the HTTP handlers of the index service. Handlers
// only parse requests and format responses; all lookups and statistics
// live in the services package.
//
// # Routes
//
//	GET  /api/health                 liveness summary
//	GET  /api/health/ready           503 until the dataset is usable
//	GET  /api/version                build information
//	GET  /api/dataset                row, entity and group counts
//	GET  /api/dataset/schema         resolved roles or what is missing
//	PUT  /api/dataset/schema         replace the column mapping
//	POST /api/dataset/reload         re-read the workbook
//	GET  /api/entities?group=        entity list
//	GET  /api/entities/{query}       series, statistics and group average
//	GET  /api/groups/{group}/average group average series
//	GET  /api/compare?entity=&peer=  joined comparison table, JSON or CSV
//
// Successful responses use the envelope
//
//	{"status": "success", "data": ...}
//
// and every failure is an RFC 7807 problem produced by errors.ErrorHandler,
// carrying a trace_id and, for domain errors, a guidance hint.
//
// # Testing
//
// Handlers are tested with httptest against testify mocks of IndexService
// and HealthChecker.
package http

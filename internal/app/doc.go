// Package app wires the index service together: configuration, logging,
// OpenTelemetry, the shared dataset handle, the query services and the chi
// router, and runs the HTTP server until it is told to stop.
//
// # Initialization Flow
//
//  1. Load configuration from config.yaml and DTI_* environment variables
//  2. Initialize logging and OpenTelemetry
//  3. Create the dataset handle (the workbook is read once, on first use)
//  4. Create the index and health services on top of the handle
//  5. Set up middleware, routes and the HTTP server
//
// # Usage
//
//	application, err := app.NewApplication("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := application.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// Tests build the same graph with New, passing their own configuration
// and logger and no telemetry providers.
//
// # Graceful Shutdown
//
// Run stops on SIGINT or SIGTERM. In-flight requests are drained within
// the configured shutdown timeout and telemetry exporters are flushed.
package app

/*
Package log provides structured logging for faasd-go using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Usage

Initializing the Logger:

	import "github.com/faas-containerd/faasd-go/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("faasd-go starting")
	log.Debug("checking image cache")
	log.Warn("image configuration has no exposed ports")
	log.Error("failed to connect to runtime daemon")
	log.Fatal("cannot start without runtime daemon") // exits process

Structured Logging:

	log.Logger.Info().
		Str("endpoint", endpoint.String()).
		Str("image", metadata.Image).
		Msg("function deployed")

Context Loggers:

	// Function-scoped logs
	fnLog := log.WithEndpoint(endpoint.String())
	fnLog.Info().Msg("deploying function")

	// Namespace-scoped logs
	nsLog := log.WithNamespace(namespace)
	nsLog.Info().Msg("namespace created")

	// Image-scoped logs
	imgLog := log.WithImage(imageRef)
	imgLog.Debug().Msg("image absent locally, pulling")

# Integration Points

This package integrates with:

  - pkg/runtime: logs image pulls, image-configuration defaults and
    task deletes that fail after SIGKILL
  - pkg/cni: logs network namespace and bridge attachment events
  - pkg/orchestrator: logs deploy/delete/update/resolve operations and rollbacks
  - pkg/api: logs inbound requests and proxy forwarding errors

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create endpoint/namespace/image-specific loggers
  - Log errors with .Err() so the error is a structured field

Don't:
  - Log sensitive data (secrets, environment variable values)
  - Use Debug level in production
  - Concatenate strings into the message (use .Str, .Int)
*/
package log

/*
Package log provides structured logging for the blobstore using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all packages in this module
  - Thread-safe concurrent writes

Configuration:
  - Level: filter messages below threshold (Debug/Info/Warn/Error)
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file, ring buffer in tests)

Context Loggers:
  - WithComponent: tag logs with a subsystem name ("multiplex", "bookmarks", "wal")
  - WithBlobstore: tag logs with the originating BlobstoreId
  - WithRepo: tag logs with the RepositoryId a bookmark operation concerns
  - WithMultiplex: tag logs with the MultiplexId a put/get/is_present concerns

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	mplog := log.WithComponent("multiplex").With().Int16("blobstore_id", 3).Logger()
	mplog.Warn().Err(err).Msg("put failed on blobstore, falling back to quorum")

	bclog := log.WithRepo(repoID)
	bclog.Info().Msg("bookmark cache refilled from master")

# Design Patterns

Global Logger Pattern: a single package-level Logger instance initialized once at
process start and referenced from every package, avoiding the need to thread a
logger through every constructor.

Context Logger Pattern: child loggers attach fields once (component, blobstore id,
repo id, multiplex id) and are then passed down instead of repeating fields at every
call site.
*/
package log

/*
Package log provides structured logging for the Hive coordinator and its
Drone workers, built on top of zerolog.

# Usage

Initializing the logger:

	import "github.com/hiveswarm/hive/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	placementLog := log.WithComponent("placement")
	placementLog.Info().Msg("selecting worker")

	workerLog := log.WithWorkerID(workerID)
	workerLog.Warn().Int("misses", misses).Msg("heartbeat missed")

	taskLog := log.WithTaskID(taskID)
	taskLog.Error().Err(err).Msg("dispatch failed")

# Log levels

Debug is for development and troubleshooting only. Info is the default
production level: worker registrations, scale events, dispatch
confirmations. Warn covers recoverable anomalies (missed heartbeats,
dropped malformed frames, registry lock timeouts). Error covers failed
operations that need investigation. Fatal logs and exits — reserved for
unrecoverable startup failures.

# Conventions

Always attach .Err(err) rather than interpolating errors into the
message string, and prefer the Str/Int typed field helpers over
fmt.Sprintf so logs stay machine-parseable.
*/
package log

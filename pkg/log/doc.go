/*
Package log provides structured logging for portguard using zerolog.

A single global Logger is configured once via Init and shared by every
subsystem. Component loggers (WithComponent, WithPort, WithOwner,
WithSession) attach consistent fields so a single `component=checker` or
`port=8080` grep finds everything related to that entity across the
checker, reservation manager, conflict detector, suggestion engine,
container integration, and supervisor.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})
	logger := log.WithComponent("checker")
	logger.Warn().Int("port", 8080).Msg("probe timed out, treating as occupied")

Fatal exits the process (os.Exit via zerolog.Logger.Fatal) and is reserved
for unrecoverable startup errors; steady-state failures are logged at Error
and the operation continues per the propagation policy in spec §7.
*/
package log

// Package logging provides structured logging for the chronicle pipeline.
//
// The daemon and every store component write JSON lines through a shared
// [Logger], built on log/slog, into a single rotating file under the store
// root. Because the format is JSON, the same package can read the file back
// for the logs command: [ReadLog] parses it, [FilterLogs] narrows it down
// and [ExportLogEntries] renders the result as json, text or csv.
//
// # Loggers
//
// [NewLogger] writes to a plain append-only file (or stderr when the path
// is empty); [NewRotatingLogger] adds size-based rotation; [NopLogger]
// discards everything and is what tests pass to components they are not
// observing.
//
//	logger, err := logging.NewLogger("/home/u/.chronicle/chronicle.log", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("request processed", "duration_ms", 150)
//
// Components identify themselves through child loggers, which carry their
// attributes on every line without mutating the parent:
//
//	proc := logger.WithComponent("processor")
//	req := proc.WithRequest("1700000000000_a1b2.json")
//	req.Info("request processed")
//
// produces
//
//	{"time":"...","level":"INFO","msg":"request processed","component":"processor","request":"1700000000000_a1b2.json"}
//
// All loggers are safe for concurrent use, including child loggers sharing
// one underlying file.
//
// # Rotation
//
// The daemon runs indefinitely, so [RotatingWriter] caps the live file at
// [RotationConfig].MaxSizeMB and shifts older content into numbered
// backups, chronicle.log.1 being the newest. MaxBackups bounds the chain
// and Compress gzips rotated files in the background. Settings come from
// the log section of the config file:
//
//	log:
//	  level: info
//	  max_size_mb: 10
//	  max_backups: 3
//	  compress: false
//
// # Levels
//
// Four levels exist: [LevelDebug], [LevelInfo] (the default), [LevelWarn]
// and [LevelError]. [ParseLevel] normalizes user input, falling back to
// INFO, and [ValidLevels] lists the accepted strings for help text.
//
// # Reading the log back
//
//	entries, err := logging.ReadLog(logPath)
//	if err != nil {
//	    return err
//	}
//	warnings := logging.FilterLogs(entries, logging.LogFilter{
//	    Level:     "WARN",
//	    Component: "gitstore",
//	    StartTime: time.Now().Add(-1 * time.Hour),
//	})
//	logging.ExportLogEntries(os.Stdout, warnings, "text")
package logging

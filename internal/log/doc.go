// Package log builds the application's slog loggers.
//
// Every logger returned by New is wrapped in a SecureHandler, which masks
// values that must not end up in log files or CI output:
//   - session cookies and authorization headers sent to the listing source
//   - passwords embedded in PostgreSQL and AMQP URLs, also inside errors
//   - bearer, basic and JWT tokens detected by pattern
//
// Usage:
//
//	logger, err := log.New(os.Stderr, log.FormatConsole, verbose)
//	if err != nil {
//	    return err
//	}
//	logger.Info("store opened", "database_url", cfg.DatabaseURL)
//	// database_url=postgres://scraper:xxxxx@db/zoopla
package log

package snapshot

import (
	"context"
	"strings"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Open returns a PostgresStore when databaseURL is a postgres URL and a
// SQLiteStore in dataDir otherwise.
func Open(ctx context.Context, databaseURL, dataDir string) (Store, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return OpenPostgres(ctx, databaseURL)
	}
	return OpenSQLite(dataDir, DefaultOptions())
}

package store

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	sqliteDriver "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultSQLitePath = "djuka.db"

// Open returns a gorm handle for driver ("sqlite" or "postgres"). An empty
// sqlite dsn falls back to djuka.db in the working directory.
func Open(driver, dsn string) (*gorm.DB, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		driver = "sqlite"
	}
	dsn = strings.TrimSpace(dsn)

	cfg := &gorm.Config{Logger: logger.Discard}

	switch driver {
	case "sqlite":
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
		return gorm.Open(sqliteDriver.Open(dsn), cfg)
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("dsn is required for driver %q", driver)
		}
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

func ensureDir(dsn string) error {
	path, ok := filePath(dsn)
	if !ok {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite dir: %w", err)
	}
	return nil
}

// filePath reports the on-disk path of a sqlite dsn, or false for in-memory
// databases.
func filePath(dsn string) (string, bool) {
	lower := strings.ToLower(dsn)
	switch {
	case lower == ":memory:", strings.HasPrefix(lower, "file::memory:"):
		return "", false
	case strings.HasPrefix(lower, "file:"):
		u, err := url.Parse(dsn)
		if err != nil {
			return stripQuery(strings.TrimPrefix(dsn, "file:")), true
		}
		if strings.EqualFold(u.Query().Get("mode"), "memory") {
			return "", false
		}
		if u.Path != "" {
			return u.Path, true
		}
		if u.Opaque != "" {
			return stripQuery(u.Opaque), true
		}
		return "", false
	default:
		return stripQuery(dsn), true
	}
}

func stripQuery(v string) string {
	if i := strings.IndexByte(v, '?'); i >= 0 {
		return v[:i]
	}
	return v
}

package database

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const DefaultPath = "./data/awakenfetch.db"

var ErrNotInitialized = errors.New("database not initialized")

// Database owns the sqlite connection that backs export history.
type Database struct {
	conn   *gorm.DB
	path   string
	logger *slog.Logger
}

type Option func(*Database)

func WithPath(path string) Option {
	return func(db *Database) {
		db.path = path
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(db *Database) {
		db.logger = l
	}
}

// New opens the database at the configured path, creating its directory when
// needed. An empty path falls back to DefaultPath.
func New(opts ...Option) (*Database, error) {
	db := &Database{logger: slog.Default()}
	for _, opt := range opts {
		opt(db)
	}
	if db.path == "" {
		db.path = DefaultPath
	}

	if !inMemory(db.path) {
		if err := ensureWritableDir(filepath.Dir(db.path)); err != nil {
			return nil, err
		}
	}

	conn, err := gorm.Open(sqlite.Open(db.path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", db.path)
	}
	db.conn = conn
	db.logger.Info("database connected", "path", db.path)
	return db, nil
}

func inMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory") || strings.HasPrefix(path, "file::memory:")
}

func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create data directory %s", dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrapf(err, "stat data directory %s", dir)
	}
	if !info.IsDir() {
		return errors.Errorf("data path %s is not a directory", dir)
	}

	probe := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return errors.Wrapf(err, "data directory %s is not writable", dir)
	}
	return os.Remove(probe)
}

func (d *Database) Get() (*gorm.DB, error) {
	if d.conn == nil {
		return nil, ErrNotInitialized
	}
	return d.conn, nil
}

func (d *Database) Path() string {
	return d.path
}

func (d *Database) Close() error {
	if d.conn == nil {
		return nil
	}
	sqlDB, err := d.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

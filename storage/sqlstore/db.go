package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jrsteele09/go-uma-server/internal/config"
	"github.com/pkg/errors"
	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const (
	mysqlDriver  = "mysql"
	sqliteDriver = "sqlite"

	defaultPingTimeout  = 5 * time.Second
	mysqlDuplicateKey   = 1062
	mysqlDuplicateIndex = 1061
)

// Store keeps clients and granted tokens in a SQL database. Both MySQL and
// SQLite are supported with the same schema.
type Store struct {
	db *sql.DB
}

// Open connects to the database named by driver and creates the schema.
// An empty MySQL dsn is built from cfg.
func Open(ctx context.Context, driver, dsn string, cfg config.DBConfig) (*Store, error) {
	switch driver {
	case config.StorageMySQL:
		if dsn == "" {
			dsn = BuildMySQLDSN(cfg)
		}
		driver = mysqlDriver
	case config.StorageSQLite:
		if dsn == "" {
			dsn = ":memory:"
		}
		driver = sqliteDriver
	default:
		return nil, errors.Errorf("[sqlstore.Open] unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "[sqlstore.Open] open %s connection", driver)
	}

	if driver == sqliteDriver {
		// An in-memory database lives and dies with its connection.
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
			db.SetMaxIdleConns(cfg.MaxOpenConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "[sqlstore.Open] ping %s", driver)
	}

	store := New(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an open database. The schema is expected to exist; see Migrate.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// BuildMySQLDSN renders cfg as a go-sql-driver DSN.
func BuildMySQLDSN(cfg config.DBConfig) string {
	mysqlCfg := mysql.NewConfig()
	mysqlCfg.User = cfg.User
	mysqlCfg.Passwd = cfg.Password
	mysqlCfg.Net = "tcp"
	mysqlCfg.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mysqlCfg.DBName = cfg.Name
	mysqlCfg.ParseTime = true
	mysqlCfg.AllowNativePasswords = true
	mysqlCfg.Params = map[string]string{
		"charset": "utf8mb4",
	}
	return mysqlCfg.FormatDSN()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// schema is portable between MySQL and SQLite. Token values are indexed by
// their SHA-256 so long JWTs fit a key column.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS clients (
		id   VARCHAR(255) NOT NULL PRIMARY KEY,
		data TEXT         NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS granted_tokens (
		id           VARCHAR(36)  NOT NULL PRIMARY KEY,
		access_hash  CHAR(64)     NULL UNIQUE,
		refresh_hash CHAR(64)     NULL UNIQUE,
		client_id    VARCHAR(255) NOT NULL,
		scope        VARCHAR(1024) NOT NULL,
		created_at   BIGINT       NOT NULL,
		data         TEXT         NOT NULL
	)`,
	`CREATE INDEX idx_granted_tokens_client ON granted_tokens (client_id, created_at)`,
}

// Migrate creates the tables the store needs. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if isDuplicateIndex(err) {
				continue
			}
			return errors.Wrap(err, "[Store.Migrate] exec")
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateKey
	}
	return false
}

// isDuplicateIndex reports an index that already exists. MySQL has no
// CREATE INDEX IF NOT EXISTS.
func isDuplicateIndex(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateIndex
	}
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), "already exists")
	}
	return false
}

func rollback(tx *sql.Tx) { _ = tx.Rollback() }

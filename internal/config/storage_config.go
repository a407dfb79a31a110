package config

import "time"

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageMySQL  = "mysql"
)

type StorageConfig interface {
	GetRedisURL() string
	GetDatabaseDriver() string
	GetDatabaseDSN() string
	GetDatabase() DBConfig
}

// DBConfig describes a MySQL connection when no DSN is given.
type DBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetRedisURL returns the redis:// URL backing codes, tickets and
// confirmation codes. Empty keeps them in memory.
func (Storage) GetRedisURL() string {
	return GetEnv("REDIS_URL", "")
}

func (Storage) GetDatabaseDriver() string {
	return GetEnv("DATABASE_DRIVER", StorageMemory)
}

func (Storage) GetDatabaseDSN() string {
	return GetEnv("DATABASE_DSN", "")
}

func (Storage) GetDatabase() DBConfig {
	return DBConfig{
		Host:            GetEnv("DB_HOST", "127.0.0.1"),
		Port:            GetEnvInt("DB_PORT", 3306),
		User:            GetEnv("DB_USER", "uma"),
		Password:        GetEnv("DB_PASSWORD", ""),
		Name:            GetEnv("DB_NAME", "uma"),
		MaxOpenConns:    GetEnvInt("DB_MAX_OPEN_CONNS", 10),
		ConnMaxLifetime: GetEnvDuration("DB_CONN_MAX_LIFETIME", 15*time.Minute),
		PingTimeout:     GetEnvDuration("DB_PING_TIMEOUT", 5*time.Second),
	}
}

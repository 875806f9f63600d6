// Package store provides the database-backed tracking.Store implementations.
package store

import (
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Connection settings for the database backends come from the environment
// under the conventional variable names of each server (POSTGRES_HOST,
// REDIS_ADDR, MONGODB_URI, ...). Unset or unparsable values keep the
// Default*Config value.

func PostgresConfigFromEnv() *PostgresConfig {
	c := DefaultPostgresConfig()
	v := envReader()
	c.Host = stringOr(v, "POSTGRES_HOST", c.Host)
	c.Port = intOr(v, "POSTGRES_PORT", c.Port)
	c.User = stringOr(v, "POSTGRES_USER", c.User)
	c.Password = stringOr(v, "POSTGRES_PASSWORD", c.Password)
	c.DBName = stringOr(v, "POSTGRES_DB", c.DBName)
	c.SSLMode = stringOr(v, "POSTGRES_SSLMODE", c.SSLMode)
	c.Table = stringOr(v, "POSTGRES_TABLE", c.Table)
	return c
}

func RedisConfigFromEnv() *RedisConfig {
	c := DefaultRedisConfig()
	v := envReader()
	c.Addr = stringOr(v, "REDIS_ADDR", c.Addr)
	c.Password = stringOr(v, "REDIS_PASSWORD", c.Password)
	c.DB = intOr(v, "REDIS_DB", c.DB)
	c.Prefix = stringOr(v, "REDIS_PREFIX", c.Prefix)
	if d, err := time.ParseDuration(v.GetString("REDIS_TTL")); err == nil {
		c.TTL = d
	}
	return c
}

func MongoConfigFromEnv() *MongoConfig {
	c := DefaultMongoConfig()
	v := envReader()
	c.URI = stringOr(v, "MONGODB_URI", c.URI)
	c.Database = stringOr(v, "MONGODB_DB", c.Database)
	c.Collection = stringOr(v, "MONGODB_COLLECTION", c.Collection)
	return c
}

func envReader() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	return v
}

func stringOr(v *viper.Viper, key, def string) string {
	if s := v.GetString(key); s != "" {
		return s
	}
	return def
}

func intOr(v *viper.Viper, key string, def int) int {
	if n, err := strconv.Atoi(v.GetString(key)); err == nil {
		return n
	}
	return def
}

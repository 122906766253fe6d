package db

import (
	"fmt"
	"strings"
	"time"
)

// Config holds connection settings for the relational store.
type Config struct {
	Type            string
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	SlowThreshold   time.Duration
}

// DSN returns the connection string for the configured dialect.
// An explicit URL always wins over the discrete fields.
func (c Config) DSN() string {
	if url := strings.TrimSpace(c.URL); url != "" {
		return url
	}
	switch c.Type {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.Name)
	case "sqlite":
		if c.Name == "" {
			return "plantops.db"
		}
		return c.Name
	default:
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
	}
}

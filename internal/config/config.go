// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

// Package config loads service configuration from layered sources with
// clear precedence: environment variables override an optional YAML file,
// which overrides built-in defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the service.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Session  SessionConfig  `koanf:"session"`
	Sanitize SanitizeConfig `koanf:"sanitize"`
	Audit    AuditConfig    `koanf:"audit"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// DatabaseConfig holds the DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// SessionConfig holds session storage and cookie settings.
type SessionConfig struct {
	// BadgerPath is the on-disk session store location. Empty means an
	// in-memory store, which does not survive restarts.
	BadgerPath   string        `koanf:"badger_path"`
	TTL          time.Duration `koanf:"ttl"`
	Sliding      bool          `koanf:"sliding"`
	CookieName   string        `koanf:"cookie_name"`
	CookieSecure bool          `koanf:"cookie_secure"`
}

// SanitizeConfig holds input sanitization settings.
type SanitizeConfig struct {
	// MatchTimeout bounds a single pattern application. Inputs that
	// exceed it are rejected, never passed through unsanitized.
	MatchTimeout time.Duration `koanf:"match_timeout"`

	// AllowedRedirectHost is the only absolute-URL host accepted by URL
	// sanitization. Empty allows root-relative URLs only.
	AllowedRedirectHost string `koanf:"allowed_redirect_host"`
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	// RetentionDays prunes audit records older than this. Zero disables
	// pruning.
	RetentionDays int `koanf:"retention_days"`
}

// SecurityConfig holds request-level security settings.
type SecurityConfig struct {
	CORSOrigins []string `koanf:"cors_origins"`
	LoginPath   string   `koanf:"login_path"`

	// LoginRateLimit caps login attempts per client IP per minute.
	LoginRateLimit int `koanf:"login_rate_limit"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range 1-65535", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	switch c.Server.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("server.environment must be development or production, got %q", c.Server.Environment)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("database.threads must not be negative, got %d", c.Database.Threads)
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive, got %s", c.Session.TTL)
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session.cookie_name must not be empty")
	}

	if c.Sanitize.MatchTimeout <= 0 {
		return fmt.Errorf("sanitize.match_timeout must be positive, got %s", c.Sanitize.MatchTimeout)
	}

	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit.retention_days must not be negative, got %d", c.Audit.RetentionDays)
	}

	if c.Security.LoginPath == "" {
		return fmt.Errorf("security.login_path must not be empty")
	}
	if c.Security.LoginRateLimit < 1 {
		return fmt.Errorf("security.login_rate_limit must be at least 1, got %d", c.Security.LoginRateLimit)
	}

	return nil
}

// Package settings manages persistent user settings for the unifid CLI.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Settings holds persistent user preferences
type Settings struct {
	// Controller is the base URL used when --controller is not specified
	Controller string `json:"controller,omitempty"`

	// Site is the controller site to operate on
	Site string `json:"site,omitempty"`

	// Username is the controller account name
	Username string `json:"username,omitempty"`

	// ConfigPath is the default desired-state file for apply/diff
	ConfigPath string `json:"config_path,omitempty"`

	// AuditLog overrides the default audit log location
	AuditLog string `json:"audit_log,omitempty"`

	// AuditRedis is an optional host:port of a Redis audit store
	AuditRedis string `json:"audit_redis,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "unifid_settings.json"
	}
	return filepath.Join(home, ".unifid", "settings.json")
}

// DefaultAuditLogPath returns the default audit log location
func DefaultAuditLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "unifid_audit.jsonl"
	}
	return filepath.Join(home, ".unifid", "audit.jsonl")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty settings if file doesn't exist
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// GetSite returns the site (with fallback)
func (s *Settings) GetSite() string {
	if s.Site != "" {
		return s.Site
	}
	return "default"
}

// GetAuditLog returns the audit log path (with fallback)
func (s *Settings) GetAuditLog() string {
	if s.AuditLog != "" {
		return s.AuditLog
	}
	return DefaultAuditLogPath()
}

// Set assigns a named setting. Unknown keys return false.
func (s *Settings) Set(key, value string) bool {
	switch key {
	case "controller":
		s.Controller = value
	case "site":
		s.Site = value
	case "username":
		s.Username = value
	case "config_path":
		s.ConfigPath = value
	case "audit_log":
		s.AuditLog = value
	case "audit_redis":
		s.AuditRedis = value
	default:
		return false
	}
	return true
}

// Keys lists the settable keys in display order.
func Keys() []string {
	return []string{"controller", "site", "username", "config_path", "audit_log", "audit_redis"}
}

// Get returns the value of a named setting.
func (s *Settings) Get(key string) string {
	switch key {
	case "controller":
		return s.Controller
	case "site":
		return s.Site
	case "username":
		return s.Username
	case "config_path":
		return s.ConfigPath
	case "audit_log":
		return s.AuditLog
	case "audit_redis":
		return s.AuditRedis
	}
	return ""
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}

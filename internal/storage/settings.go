// Package storage persists local client state under the parley home dir.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
)

// Settings are the user's notification preferences.
type Settings struct {
	// Sound enables the local sound alert for foreign messages.
	Sound bool `json:"sound"`
	// Push enables push delivery for foreign messages.
	Push bool `json:"push"`
}

// DefaultSettings returns the out-of-the-box preferences.
func DefaultSettings() Settings {
	return Settings{Sound: true, Push: false}
}

// LoadSettings reads settings from path. A missing file yields defaults.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return DefaultSettings(), fmt.Errorf("failed to read settings: %w", err)
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return DefaultSettings(), fmt.Errorf("failed to decode settings: %w", err)
	}
	return s, nil
}

// SaveSettings writes settings to path with restrictive permissions.
func SaveSettings(path string, s Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// SaveToken writes an access token to path with restrictive permissions.
func SaveToken(path, token string) error {
	if err := os.WriteFile(path, []byte(token), 0600); err != nil {
		return fmt.Errorf("failed to write access token: %w", err)
	}
	return nil
}

// LoadToken reads an access token from path.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read access token: %w", err)
	}
	return string(data), nil
}

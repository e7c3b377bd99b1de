package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Client is the CLI client's persisted configuration.
type Client struct {
	ServerURL string `json:"serverUrl"`
	Folder    string `json:"folder"`
	FolderID  string `json:"folderId"`
	ClientID  string `json:"clientId,omitempty"`
	Token     string `json:"token,omitempty"`
}

// ClientConfigPath returns the config file location under the user's home.
func ClientConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".nxsync", "config.json"), nil
}

// LoadClient reads the client config; a missing file yields a zero config.
func LoadClient() (*Client, error) {
	path, err := ClientConfigPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Client{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read client config: %w", err)
	}
	var cfg Client
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode client config: %w", err)
	}
	return &cfg, nil
}

// SaveClient persists the client config, creating the config dir if needed.
func SaveClient(cfg *Client) error {
	path, err := ClientConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write client config: %w", err)
	}
	return os.Rename(tmp, path)
}

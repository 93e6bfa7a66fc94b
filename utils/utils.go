package utils

import (
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sammcj/llmem/logging"
)

func GetHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		logging.ErrorLogger.Error().Err(err).Msg("Failed to get user home directory")
		return ""
	}
	return homeDir
}

// GetConfigDir returns the directory holding the config file, the log and the model catalog.
func GetConfigDir() string {
	return filepath.Join(GetHomeDir(), ".config", "llmem")
}

// GetConfigPath returns the path to the configuration JSON file.
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.json")
}

// GetModelsDir returns the default directory of downloaded model config files.
func GetModelsDir() string {
	return filepath.Join(GetConfigDir(), "models")
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" {
		return GetHomeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(GetHomeDir(), path[2:])
	}
	return path
}

// IsLocalhost reports whether an Ollama host, given as a URL or host:port, points at this machine.
// An empty host means the client default, which is local.
func IsLocalhost(host string) bool {
	if host == "" {
		return true
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return false
	}
	name := u.Hostname()
	if strings.EqualFold(name, "localhost") {
		return true
	}
	ip := net.ParseIP(name)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

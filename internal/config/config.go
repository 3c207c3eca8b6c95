package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// defaultTypingExpiry is how long a typing indicator stays alive without
	// a fresh signal.
	defaultTypingExpiry = 3 * time.Second
	// defaultDedupWindow is the timestamp window used to match a server echo
	// against an optimistically inserted local message.
	defaultDedupWindow = 2 * time.Second
	// defaultReconnectDelay is the fixed delay between reconnect attempts.
	defaultReconnectDelay = 3 * time.Second
)

// Config holds the process-wide client configuration.
type Config struct {
	// ServerURL is the base URL of the chat server REST API.
	ServerURL string
	// SocketURL is the websocket endpoint URL. Derived from ServerURL when
	// not set explicitly.
	SocketURL string

	// ParleyHome is the directory where parley stores local state.
	ParleyHome string
	// AccessKey is the path to the access token file.
	AccessKey string
	// SettingsPath is the path to the persisted notification settings.
	SettingsPath string

	// Debug enables verbose logging.
	Debug bool
	// LogLevel is the logger threshold ("trace".."error").
	LogLevel string
	// MetricsAddr, when non-empty, enables the Prometheus listener.
	MetricsAddr string

	// TypingExpiry is how long a peer stays "typing" after their last signal.
	TypingExpiry time.Duration
	// DedupWindow is the timestamp tolerance for duplicate message detection.
	DedupWindow time.Duration
	// ReconnectDelay is the fixed delay before a transport reconnect attempt.
	ReconnectDelay time.Duration

	// PushoverToken is the Pushover application API token.
	PushoverToken string
	// PushoverUserKey is the Pushover destination user key.
	PushoverUserKey string
	// PushoverCooldown is the minimum interval between alerts per conversation.
	PushoverCooldown time.Duration
}

// Load loads configuration from the environment and defaults.
//
// A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	parleyHome := os.Getenv("PARLEY_HOME_DIR")
	if parleyHome == "" {
		parleyHome = filepath.Join(homeDir, ".parley")
	}
	if err := os.MkdirAll(parleyHome, 0700); err != nil {
		return nil, fmt.Errorf("failed to create parley home: %w", err)
	}

	serverURL := strings.TrimRight(os.Getenv("PARLEY_SERVER_URL"), "/")
	if serverURL == "" {
		serverURL = "http://localhost:8000"
	}

	socketURL := os.Getenv("PARLEY_WS_URL")
	if socketURL == "" {
		socketURL, err = deriveSocketURL(serverURL)
		if err != nil {
			return nil, err
		}
	}

	debug := os.Getenv("DEBUG") == "true" || os.Getenv("DEBUG") == "1" ||
		os.Getenv("PARLEY_DEBUG") == "true" || os.Getenv("PARLEY_DEBUG") == "1"

	cfg := &Config{
		ServerURL:        serverURL,
		SocketURL:        socketURL,
		ParleyHome:       parleyHome,
		AccessKey:        filepath.Join(parleyHome, "access.key"),
		SettingsPath:     filepath.Join(parleyHome, "settings.json"),
		Debug:            debug,
		LogLevel:         os.Getenv("PARLEY_LOG_LEVEL"),
		MetricsAddr:      os.Getenv("PARLEY_METRICS_ADDR"),
		TypingExpiry:     durationEnv("PARLEY_TYPING_EXPIRY_MS", defaultTypingExpiry),
		DedupWindow:      durationEnv("PARLEY_DEDUP_WINDOW_MS", defaultDedupWindow),
		ReconnectDelay:   durationEnv("PARLEY_RECONNECT_DELAY_MS", defaultReconnectDelay),
		PushoverToken:    os.Getenv("PARLEY_PUSHOVER_TOKEN"),
		PushoverUserKey:  os.Getenv("PARLEY_PUSHOVER_USER_KEY"),
		PushoverCooldown: durationEnv("PARLEY_PUSHOVER_COOLDOWN_MS", time.Minute),
	}
	return cfg, nil
}

// deriveSocketURL maps the REST base URL onto the /ws endpoint.
func deriveSocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", serverURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// durationEnv reads a millisecond count from the environment.
func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// pushoverEndpoint is the Pushover API endpoint used for message delivery.
	pushoverEndpoint = "https://api.pushover.net/1/messages.json"
	// pushoverContentType is the HTTP form content type required by Pushover.
	pushoverContentType = "application/x-www-form-urlencoded"
	// defaultPushoverTimeout is the HTTP timeout used for Pushover requests.
	defaultPushoverTimeout = 10 * time.Second
)

// PushoverConfig describes the credentials and defaults for Pushover delivery.
type PushoverConfig struct {
	// Token is the application API token.
	Token string
	// UserKey is the destination user key.
	UserKey string
	// Cooldown is the minimum interval between notifications per alert key.
	Cooldown time.Duration
}

// PushoverNotifier sends push alerts through the Pushover service. A burst
// of messages in one conversation collapses into a single alert per
// cooldown window.
type PushoverNotifier struct {
	token    string
	userKey  string
	cooldown time.Duration

	endpoint string
	client   *http.Client

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewPushoverNotifier creates a new notifier using the supplied config.
func NewPushoverNotifier(cfg PushoverConfig) (*PushoverNotifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("pushover token is required")
	}
	if strings.TrimSpace(cfg.UserKey) == "" {
		return nil, fmt.Errorf("pushover user key is required")
	}
	if cfg.Cooldown < 0 {
		return nil, fmt.Errorf("pushover cooldown must be non-negative")
	}

	return &PushoverNotifier{
		token:    cfg.Token,
		userKey:  cfg.UserKey,
		cooldown: cfg.Cooldown,
		endpoint: pushoverEndpoint,
		client: &http.Client{
			Timeout: defaultPushoverTimeout,
		},
		lastSent: make(map[string]time.Time),
	}, nil
}

// Notify sends a Pushover notification if it passes cooldown checks.
func (n *PushoverNotifier) Notify(ctx context.Context, msg Notification) error {
	alertKey := strings.TrimSpace(msg.AlertKey)
	if alertKey == "" {
		return fmt.Errorf("pushover alert key is required")
	}
	body := strings.TrimSpace(msg.Body)
	if body == "" {
		return fmt.Errorf("pushover message body is required")
	}

	n.mu.Lock()
	if last, ok := n.lastSent[alertKey]; ok && n.cooldown > 0 {
		if time.Since(last) < n.cooldown {
			n.mu.Unlock()
			return nil
		}
	}
	n.lastSent[alertKey] = time.Now()
	n.mu.Unlock()

	form := url.Values{}
	form.Set("token", n.token)
	form.Set("user", n.userKey)
	form.Set("message", body)
	if title := strings.TrimSpace(msg.Title); title != "" {
		form.Set("title", title)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build pushover request: %w", err)
	}
	req.Header.Set("Content-Type", pushoverContentType)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushover request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushover returned status %d", resp.StatusCode)
	}
	return nil
}

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/bhandras/parley/internal/api"
	"github.com/bhandras/parley/internal/auth"
	"github.com/bhandras/parley/internal/chat"
	"github.com/bhandras/parley/internal/config"
	"github.com/bhandras/parley/internal/metrics"
	"github.com/bhandras/parley/internal/notify"
	"github.com/bhandras/parley/internal/storage"
	"github.com/bhandras/parley/internal/websocket"
	"github.com/bhandras/parley/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	args, err := parseFlags(cfg, os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		printUsage()
		return nil
	}
	if err != nil {
		return err
	}

	lvl, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfg.Debug && lvl > logger.LevelDebug {
		lvl = logger.LevelDebug
	}
	logger.SetLevel(lvl)

	if cfg.Debug {
		logger.Debugf("config: server=%s socket=%s home=%s", cfg.ServerURL, cfg.SocketURL, cfg.ParleyHome)
	}

	if len(args) > 0 {
		switch args[0] {
		case "login":
			return loginCommand(cfg)
		case "logout":
			return os.Remove(cfg.AccessKey)
		case "help", "--help", "-h":
			printUsage()
			return nil
		case "version", "--version", "-v":
			fmt.Println("parley v1.0.0")
			return nil
		default:
			return fmt.Errorf("unknown command %q (try: parley help)", args[0])
		}
	}

	// No credentials yet: run the login flow first.
	if _, err := os.Stat(cfg.AccessKey); os.IsNotExist(err) {
		log.Println("No access token found. Starting login...")
		if err := loginCommand(cfg); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
	}

	token, err := storage.LoadToken(cfg.AccessKey)
	if err != nil {
		return err
	}
	selfID, err := auth.UserID(token)
	if err != nil {
		return fmt.Errorf("invalid access token (try: parley login): %w", err)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	settings, err := storage.LoadSettings(cfg.SettingsPath)
	if err != nil {
		logger.Warnf("settings load failed, using defaults: %v", err)
	}

	restClient := api.New(cfg.ServerURL, token)
	defer restClient.Close()

	// The token function re-reads the key file on every dial, so a re-login
	// takes effect on the next reconnect.
	transport := websocket.NewClient(cfg.SocketURL, func() (string, error) {
		return storage.LoadToken(cfg.AccessKey)
	}, cfg.ReconnectDelay)

	var push notify.Notifier
	if cfg.PushoverToken != "" && cfg.PushoverUserKey != "" {
		push, err = notify.NewPushoverNotifier(notify.PushoverConfig{
			Token:    cfg.PushoverToken,
			UserKey:  cfg.PushoverUserKey,
			Cooldown: cfg.PushoverCooldown,
		})
		if err != nil {
			return fmt.Errorf("pushover setup failed: %w", err)
		}
	}

	session := chat.NewSession(restClient, transport, chat.Options{
		SelfID:        selfID,
		TypingExpiry:  cfg.TypingExpiry,
		DedupWindow:   cfg.DedupWindow,
		Settings:      settings,
		SoundNotifier: notify.NewBellNotifier(os.Stdout),
		PushNotifier:  push,
	})
	defer session.Teardown()

	session.Start()

	log.Printf("Connected as %s. Type /help for commands, Ctrl+C to exit.", selfID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	for {
		select {
		case <-sigCh:
			log.Println("Shutting down...")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := handleLine(cfg, restClient, session, selfID, line); err != nil {
				if err == errQuit {
					return nil
				}
				fmt.Println(err)
			}
		}
	}
}

var errQuit = fmt.Errorf("quit")

// readLines feeds stdin lines into ch and closes it on EOF.
func readLines(r io.Reader, ch chan<- string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		ch <- scanner.Text()
	}
	close(ch)
}

// handleLine executes one interactive command. Plain text is sent to the
// active conversation.
func handleLine(cfg *config.Config, restClient *api.Client, session *chat.Session, selfID, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		session.SendMessage(line)
		return nil
	}

	fields := strings.Fields(line)
	cmd, rest := fields[0], fields[1:]

	switch cmd {
	case "/help":
		printCommands()

	case "/users":
		users, _ := session.Roster()
		for _, u := range users {
			marker := " "
			if session.Presence().IsOnline(u.ID) {
				marker = "*"
			}
			fmt.Printf("%s %s (%s) unread=%d\n", marker, u.Name, u.ID, u.UnreadCount)
		}

	case "/groups":
		_, groups := session.Roster()
		for _, g := range groups {
			fmt.Printf("  %s (%s) members=%d unread=%d\n", g.Name, g.ID, len(g.Members), g.UnreadCount)
		}

	case "/select":
		if len(rest) != 1 {
			return fmt.Errorf("usage: /select <user-id>")
		}
		session.SelectConversation(rest[0], chat.KindPrivate)

	case "/join":
		if len(rest) != 1 {
			return fmt.Errorf("usage: /join <group-id>")
		}
		session.SelectConversation(rest[0], chat.KindGroup)

	case "/close":
		session.SelectConversation("", chat.KindNone)

	case "/messages":
		for _, m := range session.Messages() {
			fmt.Printf("[%s] %s: %s\n", m.Timestamp, m.SenderID, m.Content)
		}

	case "/typing":
		session.SendTyping()

	case "/typers":
		fmt.Println(strings.Join(session.Typers(), ", "))

	case "/newgroup":
		if len(rest) < 2 {
			return fmt.Errorf("usage: /newgroup <name> <member-id>...")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		group, err := restClient.CreateGroup(ctx, rest[0], append(rest[1:], selfID), selfID)
		if err != nil {
			return err
		}
		fmt.Printf("created group %s (%s)\n", group.Name, group.ID)
		session.RefreshRoster()

	case "/delgroup":
		if len(rest) != 1 {
			return fmt.Errorf("usage: /delgroup <group-id>")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := restClient.DeleteGroup(ctx, rest[0]); err != nil {
			return err
		}
		session.RefreshRoster()

	case "/sound", "/push":
		if len(rest) != 1 || (rest[0] != "on" && rest[0] != "off") {
			return fmt.Errorf("usage: %s on|off", cmd)
		}
		settings := session.Settings()
		enabled := rest[0] == "on"
		if cmd == "/sound" {
			settings.Sound = enabled
		} else {
			settings.Push = enabled
		}
		session.UpdateSettings(settings)
		if err := storage.SaveSettings(cfg.SettingsPath, settings); err != nil {
			return err
		}

	case "/quit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return nil
}

// loginCommand prompts for credentials, exchanges them for a token and
// persists it under the parley home dir.
func loginCommand(cfg *config.Config) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Username: ")
	username, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}
	username = strings.TrimSpace(username)

	fmt.Print("Password: ")
	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	client := api.New(cfg.ServerURL, "")
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	token, err := client.Login(ctx, username, string(passwordBytes))
	if err != nil {
		return err
	}
	if err := storage.SaveToken(cfg.AccessKey, token); err != nil {
		return err
	}

	log.Println("Login successful!")
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	logger.Infof("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Errorf("metrics listener failed: %v", err)
	}
}

func parseFlags(cfg *config.Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("parley", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	serverURL := fs.String("server-url", "", "Chat server base URL")
	wsURL := fs.String("ws-url", "", "Websocket endpoint URL")
	metricsAddr := fs.String("metrics-addr", "", "Prometheus listen address")
	debug := fs.Bool("debug", false, "Enable debug logging")
	showHelp := fs.Bool("help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *showHelp {
		return nil, flag.ErrHelp
	}

	if *serverURL != "" {
		cfg.ServerURL = strings.TrimRight(*serverURL, "/")
	}
	if *wsURL != "" {
		cfg.SocketURL = *wsURL
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *debug {
		cfg.Debug = true
	}

	return fs.Args(), nil
}

func printCommands() {
	fmt.Println(`Commands:
  /users               List peers (* marks online) with unread counts
  /groups              List groups with unread counts
  /select <user-id>    Open a private conversation
  /join <group-id>     Open a group conversation
  /close               Close the active conversation
  /messages            Print the active conversation's history
  /typing              Send a typing signal
  /typers              Show who is typing in the active conversation
  /newgroup <name> <member-id>...  Create a group
  /delgroup <group-id> Delete a group
  /sound on|off        Toggle the sound alert
  /push on|off         Toggle push notifications
  /quit                Exit

Anything not starting with / is sent to the active conversation.`)
}

func printUsage() {
	fmt.Println(`parley - terminal client for the parley chat server

Usage:
  parley               Connect and start an interactive session
  parley login         Authenticate and store an access token
  parley logout        Remove the stored access token
  parley help          Show this help message
  parley version       Show version information

Environment Variables:
  PARLEY_SERVER_URL    Server URL (default: http://localhost:8000)
  PARLEY_WS_URL        Websocket URL (default: derived from server URL)
  PARLEY_HOME_DIR      Config directory (default: ~/.parley)
  PARLEY_LOG_LEVEL     Log level (trace|debug|info|warn|error)
  PARLEY_METRICS_ADDR  Prometheus listen address (disabled when empty)
  PARLEY_PUSHOVER_TOKEN, PARLEY_PUSHOVER_USER_KEY
                       Enable push notifications via Pushover
  DEBUG                Enable debug logging (true/1)

Flags:
  --server-url         Chat server base URL
  --ws-url             Websocket endpoint URL
  --metrics-addr       Prometheus listen address
  --debug              Enable debug logging

Examples:
  # Log in against a local server
  PARLEY_SERVER_URL=http://localhost:8000 parley login

  # Start chatting
  parley`)
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Default configuration values
const (
	DefaultPort      = 3001
	DefaultServerURL = "ws://localhost:3001"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
)

// Server holds broker configuration.
type Server struct {
	// Port the HTTP listener binds to.
	Port int

	// DBPath is the SQLite file backing drops. Empty keeps drops in memory.
	DBPath string
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// ServerOptions carries CLI flag overrides. Zero values mean "not set".
type ServerOptions struct {
	Port   int
	DBPath string
}

// LoadServer resolves server configuration with the following priority:
// 1. CLI flags (passed via ServerOptions)
// 2. Environment variables (PORT, CODEDROP_DB)
// 3. Defaults
func LoadServer(opts ServerOptions) (*Server, error) {
	port := opts.Port
	if port == 0 {
		if env := os.Getenv("PORT"); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return nil, fmt.Errorf("invalid PORT %q: %w", env, err)
			}
			port = p
		}
	}
	if port == 0 {
		port = DefaultPort
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("port %d out of range", port)
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = os.Getenv("CODEDROP_DB")
	}

	return &Server{Port: port, DBPath: dbPath}, nil
}

// Client holds peer-side configuration.
type Client struct {
	// ServerURL is the broker websocket base URL, e.g. ws://host:3001.
	ServerURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// ClientOptions carries CLI flag overrides.
type ClientOptions struct {
	ServerURL  string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// LoadClient resolves client configuration: flag > env > default.
func LoadClient(opts ClientOptions) (*Client, error) {
	serverURL := firstNonEmpty(opts.ServerURL, os.Getenv("CODEDROP_SERVER"), DefaultServerURL)
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, fmt.Errorf("invalid server URL %q: unsupported scheme", serverURL)
	}

	return &Client{
		ServerURL:  strings.TrimRight(serverURL, "/"),
		STUNServer: firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer: firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:   firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:   firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
	}, nil
}

// WebSocketURL returns the broker's websocket endpoint.
func (c *Client) WebSocketURL() string {
	u, _ := url.Parse(c.ServerURL)
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

// HTTPURL returns the broker's HTTP base for path, e.g. "/drop".
func (c *Client) HTTPURL(path string) string {
	u, _ := url.Parse(c.ServerURL)
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Client) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Client) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

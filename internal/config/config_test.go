package config

import "testing"

func TestLoadServerPriority(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("CODEDROP_DB", "")

	cfg, err := LoadServer(ServerOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != DefaultPort || cfg.DBPath != "" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}

	t.Setenv("PORT", "4000")
	t.Setenv("CODEDROP_DB", "/tmp/drops.db")
	cfg, err = LoadServer(ServerOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 4000 || cfg.DBPath != "/tmp/drops.db" {
		t.Fatalf("env not applied: %+v", cfg)
	}

	cfg, err = LoadServer(ServerOptions{Port: 5000, DBPath: "flag.db"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 5000 || cfg.DBPath != "flag.db" || cfg.Addr() != ":5000" {
		t.Fatalf("flags should win: %+v", cfg)
	}
}

func TestLoadServerRejectsBadPort(t *testing.T) {
	t.Setenv("PORT", "http")
	if _, err := LoadServer(ServerOptions{}); err == nil {
		t.Fatal("expected an error for a non-numeric PORT")
	}
	if _, err := LoadServer(ServerOptions{Port: 70000}); err == nil {
		t.Fatal("expected an error for an out of range port")
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("CODEDROP_SERVER", "")
	t.Setenv("STUN_SERVER", "")
	t.Setenv("TURN_SERVER", "")

	cfg, err := LoadClient(ClientOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WebSocketURL() != "ws://localhost:3001/ws" {
		t.Fatalf("unexpected websocket URL %s", cfg.WebSocketURL())
	}
	if cfg.HTTPURL("/drop") != "http://localhost:3001/drop" {
		t.Fatalf("unexpected HTTP URL %s", cfg.HTTPURL("/drop"))
	}
	if got := cfg.GetSTUNServers(); len(got) != 1 || got[0] != DefaultSTUN {
		t.Fatalf("unexpected STUN servers %v", got)
	}
	if cfg.GetTURNServers() != nil {
		t.Fatal("TURN should be off by default")
	}

	t.Setenv("CODEDROP_SERVER", "https://drop.example.com/")
	cfg, err = LoadClient(ClientOptions{TURNServer: "turn:turn.example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WebSocketURL() != "wss://drop.example.com/ws" {
		t.Fatalf("unexpected websocket URL %s", cfg.WebSocketURL())
	}
	if cfg.HTTPURL("/drop/1234") != "https://drop.example.com/drop/1234" {
		t.Fatalf("unexpected HTTP URL %s", cfg.HTTPURL("/drop/1234"))
	}
	if len(cfg.GetTURNServers()) != 2 {
		t.Fatalf("unexpected TURN servers %v", cfg.GetTURNServers())
	}
}

func TestLoadClientRejectsBadScheme(t *testing.T) {
	if _, err := LoadClient(ClientOptions{ServerURL: "ftp://example.com"}); err == nil {
		t.Fatal("expected an error for an ftp URL")
	}
}

func TestDeviceIDIsStable(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	first, err := DeviceID()
	if err != nil {
		t.Fatal(err)
	}
	if first == "" {
		t.Fatal("empty device id")
	}
	second, err := DeviceID()
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("device id changed: %s then %s", first, second)
	}
}

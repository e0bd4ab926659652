package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalDB = `
database:
  host: localhost
  name: trading
  user: app
  password: secret
`

func TestLoadGatewayDefaults(t *testing.T) {
	path := writeConfig(t, `
instance:
  id: gateway-1
`+minimalDB)

	cfg, err := LoadGateway(path)
	if err != nil {
		t.Fatalf("LoadGateway error: %v", err)
	}

	if cfg.Server.Port != DefaultServerPort || cfg.Server.Path != DefaultServerPath {
		t.Errorf("server defaults = %d %q", cfg.Server.Port, cfg.Server.Path)
	}
	if cfg.Session.SendQueueSize != DefaultSendQueueSize {
		t.Errorf("send_queue_size = %d", cfg.Session.SendQueueSize)
	}
	if cfg.Database.Port != DefaultDBPort || cfg.Database.SSLMode != DefaultDBSSLMode {
		t.Errorf("database defaults = %d %q", cfg.Database.Port, cfg.Database.SSLMode)
	}
	if cfg.Health.Port != DefaultHealthPort || cfg.Health.Path != DefaultHealthPath {
		t.Errorf("health defaults = %d %q", cfg.Health.Port, cfg.Health.Path)
	}
}

func TestLoadGatewayOverrides(t *testing.T) {
	path := writeConfig(t, `
instance:
  id: gateway-1
server:
  port: 9000
  shutdown_timeout: 3s
`+minimalDB)

	cfg, err := LoadGateway(path)
	if err != nil {
		t.Fatalf("LoadGateway error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("server.port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("shutdown_timeout = %v, want 3s", cfg.Server.ShutdownTimeout)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "from-env")

	path := writeConfig(t, `
instance:
  id: gateway-1
database:
  host: localhost
  name: trading
  user: app
  password: ${TEST_DB_PASSWORD}
`)

	cfg, err := LoadGateway(path)
	if err != nil {
		t.Fatalf("LoadGateway error: %v", err)
	}
	if cfg.Database.Password != "from-env" {
		t.Errorf("password = %q, want env expansion", cfg.Database.Password)
	}
}

func TestLoadGatewayValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing instance id",
			body: minimalDB,
			want: "instance.id",
		},
		{
			name: "missing db host",
			body: `
instance:
  id: gateway-1
database:
  name: trading
  user: app
  password: secret
`,
			want: "database.host",
		},
		{
			name: "bad port",
			body: `
instance:
  id: gateway-1
server:
  port: 70000
` + minimalDB,
			want: "server.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadGateway(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoadAdapterDefaults(t *testing.T) {
	path := writeConfig(t, `
instance:
  id: adapter-1
`+minimalDB)

	cfg, err := LoadAdapter(path)
	if err != nil {
		t.Fatalf("LoadAdapter error: %v", err)
	}

	if cfg.Exchange.SpotRestURL != DefaultSpotRestURL {
		t.Errorf("spot_rest_url = %q", cfg.Exchange.SpotRestURL)
	}
	if cfg.Exchange.FuturesWSURL != DefaultFuturesWSURL {
		t.Errorf("futures_ws_url = %q", cfg.Exchange.FuturesWSURL)
	}
	if cfg.Tasks.Concurrency != DefaultTaskConcurrency || cfg.Tasks.KlinePage != DefaultKlinePage {
		t.Errorf("task defaults = %d %d", cfg.Tasks.Concurrency, cfg.Tasks.KlinePage)
	}
}

func TestLoadAdapterRejectsOversizedKlinePage(t *testing.T) {
	path := writeConfig(t, `
instance:
  id: adapter-1
tasks:
  kline_page: 5000
`+minimalDB)

	if _, err := LoadAdapter(path); err == nil {
		t.Error("expected kline_page validation error")
	}
}

func TestLoadWorkerDefaults(t *testing.T) {
	path := writeConfig(t, `
instance:
  id: worker-1
`+minimalDB)

	cfg, err := LoadWorker(path)
	if err != nil {
		t.Fatalf("LoadWorker error: %v", err)
	}

	if cfg.Signals.BufferSize != DefaultSignalBufferSize {
		t.Errorf("buffer_size = %d", cfg.Signals.BufferSize)
	}
	if cfg.Signals.BackfillWait != DefaultBackfillWait || cfg.Signals.BackfillRetry != DefaultBackfillRetry {
		t.Errorf("backfill defaults = %v %v", cfg.Signals.BackfillWait, cfg.Signals.BackfillRetry)
	}
	if cfg.Signals.GapFactor != DefaultGapFactor {
		t.Errorf("gap_factor = %v", cfg.Signals.GapFactor)
	}
}

func TestLoadWorkerRejectsBadGapFactor(t *testing.T) {
	path := writeConfig(t, `
instance:
  id: worker-1
signals:
  gap_factor: 0.5
`+minimalDB)

	if _, err := LoadWorker(path); err == nil {
		t.Error("expected gap_factor validation error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadGateway(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected read error for missing file")
	}
}

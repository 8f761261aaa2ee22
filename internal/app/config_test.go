package app_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ciphermesh/internal/app"
)

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ciphermesh.yaml")
	raw := `
home: ` + dir + `
user_id: alice
device_id: 2
directory:
  url: http://dir.example:8080
  timeout: 5s
cache:
  backend: redis
  lru_size: 16
keys:
  low_water: 5
  rotation: 12h
fanout:
  parallelism: 3
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CIPHERMESH_DEVICE_ID", "7")
	t.Setenv("CIPHERMESH_KEYS_BATCH_SIZE", "50")
	t.Setenv("CIPHERMESH_TRANSPORT_URL", "http://relay.example")

	cfg, err := app.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.UserID != "alice" || cfg.DeviceID != 7 || cfg.Home != dir {
		t.Fatalf("identity fields: %+v", cfg)
	}
	if cfg.Directory.Timeout != 5*time.Second || cfg.Cache.Backend != app.BackendRedis || cfg.Cache.LRUSize != 16 {
		t.Fatalf("sections: %+v %+v", cfg.Directory, cfg.Cache)
	}
	if cfg.Keys.LowWater != 5 || cfg.Keys.BatchSize != 50 || cfg.Keys.Rotation != 12*time.Hour {
		t.Fatalf("keys: %+v", cfg.Keys)
	}
	if cfg.FanOut.Parallelism != 3 || cfg.TransportURL() != "http://relay.example" {
		t.Fatalf("fanout=%d transport=%s", cfg.FanOut.Parallelism, cfg.TransportURL())
	}
	if cfg.Sent.Backend != app.BackendFile {
		t.Fatalf("default sent backend lost: %q", cfg.Sent.Backend)
	}
	if got := cfg.Self().String(); got != "alice.7" {
		t.Fatalf("self = %s", got)
	}
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("CIPHERMESH_HOME", t.TempDir())
	t.Setenv("CIPHERMESH_KEYS_ROTATION", "soon")
	if _, err := app.Load(""); err == nil || !strings.Contains(err.Error(), "CIPHERMESH_KEYS_ROTATION") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := app.Default()
	cfg.Cache.Backend = "memcached"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"user_id", "cache.backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}

	cfg.UserID = "bob"
	cfg.Cache.Backend = app.BackendFile
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

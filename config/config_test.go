package config

import (
	"os"
	"testing"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T) string {
	t.Helper()
	content := `tradesim:
  name: "TestApp"
  version: "1.0"
source:
  url: "wss://example.com/ws/l2-orderbook/okx/BTC-USDT-SWAP"
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Tradesim.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Tradesim.Name)
	}
	if cfg.Cache.HistoryDepth != 100 {
		t.Errorf("unexpected history depth default: %d", cfg.Cache.HistoryDepth)
	}
	if cfg.Cache.LatencySamples != 1000 {
		t.Errorf("unexpected latency sample default: %d", cfg.Cache.LatencySamples)
	}
	if cfg.Source.ReconnectBackoff.Seconds() != 5 {
		t.Errorf("unexpected reconnect backoff default: %v", cfg.Source.ReconnectBackoff)
	}
	if cfg.Simulator.RiskAversion != 1e-7 {
		t.Errorf("unexpected risk aversion default: %v", cfg.Simulator.RiskAversion)
	}
}

func TestLoadConfigMissingURL(t *testing.T) {
	content := `tradesim:
  name: "TestApp"
  version: "1.0"
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	defer os.Remove(f.Name())

	if _, err := LoadConfig(f.Name()); err == nil {
		t.Fatal("expected validation error for missing source.url")
	}
}

func TestRecorderBucketValidation(t *testing.T) {
	content := `tradesim:
  name: "TestApp"
  version: "1.0"
source:
  url: "wss://example.com/ws"
recorder:
  enabled: true
  s3:
    bucket: "Invalid..Bucket"
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	defer os.Remove(f.Name())

	if _, err := LoadConfig(f.Name()); err == nil {
		t.Fatal("expected validation error for invalid bucket name")
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}

func TestResolvePathDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "")
	if got := ResolvePath("config/config.yml"); got != "config/config.yml" {
		t.Errorf("ResolvePath = %q, want unchanged path", got)
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	cases := map[string]string{
		"":           "development",
		"prod":       "production",
		"stag":       "staging",
		"Production": "production",
		"custom":     "custom",
	}
	for raw, want := range cases {
		t.Setenv("APP_ENV", raw)
		if got := AppEnvironment(); got != want {
			t.Errorf("AppEnvironment(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestIsProductionLike(t *testing.T) {
	if !IsProductionLike("production") || !IsProductionLike("staging") {
		t.Error("production and staging should be production-like")
	}
	if IsProductionLike("development") || IsProductionLike("custom") {
		t.Error("development and unknown environments should not be production-like")
	}
}

package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DRC.HeartbeatFreq != 1.0 {
		t.Errorf("Expected heartbeat 1Hz, got %v", cfg.DRC.HeartbeatFreq)
	}
	if cfg.Timing.AckTimeout != 10*time.Second {
		t.Errorf("Expected ack timeout 10s, got %v", cfg.Timing.AckTimeout)
	}
	if cfg.Timing.LandTimeout != 30*time.Second {
		t.Errorf("Expected land timeout 30s, got %v", cfg.Timing.LandTimeout)
	}
	if cfg.Timing.PollInterval != 100*time.Millisecond {
		t.Errorf("Expected poll interval 100ms, got %v", cfg.Timing.PollInterval)
	}
	if cfg.DRC.PayloadIndex != "88-0-0" {
		t.Errorf("Expected payload index 88-0-0, got %s", cfg.DRC.PayloadIndex)
	}
}

func TestValidateRequiresGateway(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err == nil {
		t.Error("Expected error without gateways")
	}

	cfg.Gateways = []string{"SN1", "SN1"}
	if err := Validate(cfg); err == nil {
		t.Error("Expected error for duplicate gateway")
	}

	cfg.Gateways = []string{"SN1", "SN2"}
	if err := Validate(cfg); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestValidateTiming(t *testing.T) {
	cfg := Default()
	cfg.Gateways = []string{"SN1"}
	cfg.Timing.PollInterval = 0
	if err := Validate(cfg); err == nil {
		t.Error("Expected error for zero poll interval")
	}

	cfg = Default()
	cfg.Gateways = []string{"SN1"}
	cfg.Timing.AckTimeout = time.Millisecond
	if err := Validate(cfg); err == nil {
		t.Error("Expected error for ack timeout shorter than poll interval")
	}
}

func TestValidateRoutes(t *testing.T) {
	cfg := Default()
	cfg.Gateways = []string{"SN1"}
	cfg.Routes = []RouteConfig{{Name: "empty"}}
	if err := Validate(cfg); err == nil {
		t.Error("Expected error for route without points")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "drclink-config")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "drclink.yaml")
	content := `
host_addr: 10.0.0.5
gateways: [SN-A, SN-B]
drc:
  heartbeat_freq: 2
timing:
  ack_timeout: 3s
  progress_timeout: 20s
routes:
  - name: square
    height: 80
    points:
      - {lat: 39.04, lon: 117.72, height: 80}
`
	if err := ioutil.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	os.Unsetenv("DRCLINK_BROKER")
	os.Unsetenv("HOST_ADDR")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Gateways) != 2 || cfg.Gateways[1] != "SN-B" {
		t.Errorf("Unexpected gateways %v", cfg.Gateways)
	}
	if cfg.DRC.HeartbeatFreq != 2 {
		t.Errorf("Expected heartbeat 2Hz, got %v", cfg.DRC.HeartbeatFreq)
	}
	if cfg.Timing.AckTimeout != 3*time.Second {
		t.Errorf("Expected ack timeout 3s, got %v", cfg.Timing.AckTimeout)
	}
	if cfg.Timing.LandTimeout != 30*time.Second {
		t.Errorf("Expected default land timeout to survive, got %v", cfg.Timing.LandTimeout)
	}
	if cfg.Broker.Address != "tcp://10.0.0.5:1883" {
		t.Errorf("Expected broker derived from host, got %s", cfg.Broker.Address)
	}
	if len(cfg.Routes) != 1 || len(cfg.Routes[0].Points) != 1 {
		t.Errorf("Unexpected routes %+v", cfg.Routes)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir, err := ioutil.TempDir("", "drclink-config")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "drclink.yaml")
	if err := ioutil.WriteFile(path, []byte("gateways: [SN-A]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	os.Setenv("DRCLINK_BROKER", "tcp://broker:1883")
	os.Setenv("PASSWORD", "secret")
	defer os.Unsetenv("DRCLINK_BROKER")
	defer os.Unsetenv("PASSWORD")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Broker.Address != "tcp://broker:1883" {
		t.Errorf("Expected broker override, got %s", cfg.Broker.Address)
	}
	if cfg.Broker.Password != "secret" {
		t.Errorf("Expected password override, got %s", cfg.Broker.Password)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("does-not-exist.yaml"); err == nil {
		t.Error("Expected error for missing file")
	}
}

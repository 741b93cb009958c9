package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestLoad_FullConfig(t *testing.T) {
	dir := writeConfig(t, `
business_id: biz1
queue_prefix: print_queue_
broker:
  url: amqp://rabbit:5672
  reconnect_delay: 5s
http:
  port: 3000
transport:
  port: 9100
  send_timeout: 30s
side_store:
  path: /var/spool/print-relay
logging:
  level: debug
printers:
  printer1:
    name: Reception Printer
    connection_type: network
    address: 10.0.0.5
  printer2:
    name: Office Printer
    connection_type: network
    address: 10.0.0.6
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.BusinessID != "biz1" {
		t.Errorf("BusinessID = %q, want biz1", cfg.BusinessID)
	}
	if cfg.QueueName() != "print_queue_biz1" {
		t.Errorf("QueueName = %q, want print_queue_biz1", cfg.QueueName())
	}
	if cfg.Broker.URL != "amqp://rabbit:5672" {
		t.Errorf("Broker.URL = %q", cfg.Broker.URL)
	}
	if cfg.Broker.ReconnectDelay != 5*time.Second {
		t.Errorf("ReconnectDelay = %v, want 5s", cfg.Broker.ReconnectDelay)
	}
	if cfg.Transport.SendTimeout != 30*time.Second {
		t.Errorf("SendTimeout = %v, want 30s", cfg.Transport.SendTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}

	if len(cfg.Printers) != 2 {
		t.Fatalf("got %d printers, want 2", len(cfg.Printers))
	}
	p := cfg.Printers["printer1"]
	if p.Name != "Reception Printer" {
		t.Errorf("printer1 name = %q", p.Name)
	}
	if p.ConnectionType != "network" {
		t.Errorf("printer1 connection_type = %q", p.ConnectionType)
	}
	if p.Address != "10.0.0.5" {
		t.Errorf("printer1 address = %q", p.Address)
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := writeConfig(t, "business_id: biz1\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.QueuePrefix != "print_queue_" {
		t.Errorf("QueuePrefix = %q, want print_queue_", cfg.QueuePrefix)
	}
	if cfg.Broker.URL != "amqp://localhost" {
		t.Errorf("Broker.URL = %q, want amqp://localhost", cfg.Broker.URL)
	}
	if cfg.Broker.ReconnectDelay != 5*time.Second {
		t.Errorf("ReconnectDelay = %v, want 5s", cfg.Broker.ReconnectDelay)
	}
	if cfg.Broker.Heartbeat != 60*time.Second {
		t.Errorf("Heartbeat = %v, want 60s", cfg.Broker.Heartbeat)
	}
	if cfg.HTTP.Port != 3000 {
		t.Errorf("HTTP.Port = %d, want 3000", cfg.HTTP.Port)
	}
	if cfg.Transport.Port != 9100 {
		t.Errorf("Transport.Port = %d, want 9100", cfg.Transport.Port)
	}
	if cfg.Transport.SendTimeout != 30*time.Second {
		t.Errorf("SendTimeout = %v, want 30s", cfg.Transport.SendTimeout)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoad_MissingBusinessID(t *testing.T) {
	dir := writeConfig(t, "queue_prefix: print_queue_\n")

	_, err := Load(dir)
	if !errors.Is(err, ErrMissingBusinessID) {
		t.Fatalf("got err=%v, want ErrMissingBusinessID", err)
	}
}

func TestLoad_MissingConfigFileUsesDefaults(t *testing.T) {
	t.Setenv("PRINT_RELAY_BUSINESS_ID", "biz-env")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load without config file: %v", err)
	}
	if cfg.BusinessID != "biz-env" {
		t.Errorf("BusinessID = %q, want biz-env from environment", cfg.BusinessID)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := writeConfig(t, "business_id: biz1\nbroker:\n  url: amqp://file-value\n")
	t.Setenv("PRINT_RELAY_BROKER_URL", "amqp://env-value")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Broker.URL != "amqp://env-value" {
		t.Errorf("Broker.URL = %q, want env override", cfg.Broker.URL)
	}
}

package config

import (
	"os"
	"time"

	"gopkg.in/ini.v1"
)

// Config holds the bulk writer configuration
type Config struct {
	Store  StoreConfig
	Writer WriterConfig
}

// StoreConfig holds the database connection settings
type StoreConfig struct {
	Driver     string // "mysql" or "postgres"
	Host       string
	Name       string
	User       string
	Credential string
}

// WriterConfig holds batching and retry settings
type WriterConfig struct {
	BatchTimeWindow   time.Duration
	BatchSizeLimit    int
	BatchRetries      int
	ConnectRetryDelay time.Duration
	ContentionDelay   time.Duration
	ImmediateRetries  int
	MaxValueBytes     int
	QueueCapacity     int
}

// Load reads configuration from an INI file with environment variable overrides
func Load(path string) (*Config, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Store:  loadStoreConfig(cfg),
		Writer: loadWriterConfig(cfg),
	}

	// Environment variable overrides for store credentials
	if v := os.Getenv("TQBULKWRITER_STORE_HOST"); v != "" {
		config.Store.Host = v
	}
	if v := os.Getenv("TQBULKWRITER_STORE_NAME"); v != "" {
		config.Store.Name = v
	}
	if v := os.Getenv("TQBULKWRITER_STORE_USER"); v != "" {
		config.Store.User = v
	}
	if v := os.Getenv("TQBULKWRITER_STORE_CREDENTIAL"); v != "" {
		config.Store.Credential = v
	}

	return config, nil
}

func loadStoreConfig(cfg *ini.File) StoreConfig {
	sec := cfg.Section("store")

	return StoreConfig{
		Driver:     sec.Key("driver").MustString("mysql"),
		Host:       sec.Key("host").MustString("127.0.0.1:3306"),
		Name:       sec.Key("name").MustString("bulkwriter"),
		User:       sec.Key("user").MustString("bulkwriter"),
		Credential: sec.Key("credential").String(),
	}
}

func loadWriterConfig(cfg *ini.File) WriterConfig {
	sec := cfg.Section("writer")

	return WriterConfig{
		BatchTimeWindow:   millis(sec, "batch_time_window_millis", 75),
		BatchSizeLimit:    sec.Key("batch_size_threshold").MustInt(3000),
		BatchRetries:      sec.Key("batch_retry_count").MustInt(10),
		ConnectRetryDelay: millis(sec, "connect_retry_delay_millis", 4000),
		ContentionDelay:   millis(sec, "contention_delay_millis", 2000),
		ImmediateRetries:  sec.Key("immediate_retry_count").MustInt(3),
		MaxValueBytes:     sec.Key("max_value_bytes").MustInt(200000),
		QueueCapacity:     sec.Key("queue_capacity").MustInt(10000),
	}
}

func millis(sec *ini.Section, key string, def int) time.Duration {
	return time.Duration(sec.Key(key).MustInt(def)) * time.Millisecond
}

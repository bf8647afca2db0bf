package config

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/KevoDB/sstblock/pkg/common/keyorder"
	"github.com/KevoDB/sstblock/pkg/common/log"
)

const (
	CurrentConfigVersion = 1

	// MinBlockSize leaves room for at least one small entry next to the
	// offset table and entry count
	MinBlockSize = 32
	// MaxBlockSize is the largest budget a 16-bit offset table can address
	MaxBlockSize = 65535
)

// Key order names accepted in the configuration
const (
	OrderLexicographic = "lexicographic"
	OrderUint64BE      = "uint64be"
	OrderUint64LE      = "uint64le"
	OrderUint32BE      = "uint32be"
	OrderUint32LE      = "uint32le"
)

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrConfigNotFound = errors.New("config not found")
)

type Config struct {
	Version int `json:"version"`

	// Block layout
	BlockSize int    `json:"block_size"`
	KeyOrder  string `json:"key_order"`

	// Integrity
	VerifyKeyOrder bool `json:"verify_key_order"`
	Checksum       bool `json:"checksum"`

	// Logging
	LogLevel string `json:"log_level"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values
func NewDefaultConfig() *Config {
	return &Config{
		Version:        CurrentConfigVersion,
		BlockSize:      4 * 1024, // 4KB
		KeyOrder:       OrderLexicographic,
		VerifyKeyOrder: true,
		Checksum:       true,
		LogLevel:       "warn",
	}
}

func resolveOrder(name string) (keyorder.Order, bool) {
	switch name {
	case OrderLexicographic, "":
		return keyorder.Lexicographic, true
	case OrderUint64BE:
		return keyorder.Uint64(binary.BigEndian), true
	case OrderUint64LE:
		return keyorder.Uint64(binary.LittleEndian), true
	case OrderUint32BE:
		return keyorder.Uint32(binary.BigEndian), true
	case OrderUint32LE:
		return keyorder.Uint32(binary.LittleEndian), true
	}
	return nil, false
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Version <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "invalid version %d", c.Version)
	}

	if c.BlockSize < MinBlockSize || c.BlockSize > MaxBlockSize {
		return errors.Wrapf(ErrInvalidConfig, "block size %d outside [%d, %d]",
			c.BlockSize, MinBlockSize, MaxBlockSize)
	}

	if _, ok := resolveOrder(c.KeyOrder); !ok {
		return errors.Wrapf(ErrInvalidConfig, "unknown key order %q", c.KeyOrder)
	}

	if _, err := log.ParseLevel(c.LogLevel); c.LogLevel != "" && err != nil {
		return errors.Wrapf(ErrInvalidConfig, "%v", err)
	}

	return nil
}

// Order returns the key order named by the configuration, falling back to
// lexicographic order for unknown names
func (c *Config) Order() keyorder.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if order, ok := resolveOrder(c.KeyOrder); ok {
		return order
	}
	return keyorder.Lexicographic
}

// Snapshot returns a copy of the configuration that is safe to read without
// locking
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Config{
		Version:        c.Version,
		BlockSize:      c.BlockSize,
		KeyOrder:       c.KeyOrder,
		VerifyKeyOrder: c.VerifyKeyOrder,
		Checksum:       c.Checksum,
		LogLevel:       c.LogLevel,
	}
}

// Logger returns a stderr logger at the configured level. An empty level
// turns logging off.
func (c *Config) Logger() log.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()

	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.LevelOff
	}
	return log.New(level)
}

// LoadConfig reads and validates a JSON configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, errors.Wrap(err, "failed to read config")
	}

	cfg := NewDefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "%v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig writes the configuration to path, replacing any existing file
// atomically
func (c *Config) SaveConfig(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	c.mu.RLock()
	data, err := json.MarshalIndent(c, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create directory")
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config")
	}

	if err := os.Rename(tempPath, path); err != nil {
		return errors.Wrap(err, "failed to rename config")
	}

	return nil
}

// Update applies the given function to modify the configuration
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

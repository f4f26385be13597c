package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when no path is given.
const DefaultPath = "modprod.yaml"

// Argument validation errors.
var (
	ErrInvalidArgCount    = errors.New("invalid number of arguments")
	ErrInvalidArraySize   = errors.New("invalid array size")
	ErrInvalidWorkerCount = errors.New("invalid worker count")
	ErrInvalidZeroIndex   = errors.New("invalid index for zero")
	ErrInvalidCapacity    = errors.New("invalid buffer size")
	ErrInvalidItemCount   = errors.New("invalid item count")
	ErrInvalidSeed        = errors.New("invalid random seed")
)

// Config holds the modprod configuration.
type Config struct {
	// Reduction settings
	Modulus    uint32 `yaml:"modulus"`
	Seed       uint64 `yaml:"seed"`
	MaxValue   int    `yaml:"max_value"`
	MaxSize    int    `yaml:"max_size"`
	MaxWorkers int    `yaml:"max_workers"`
	Repeat     int    `yaml:"repeat"`

	// SharedTable places the result table in the segment named SegmentName.
	SharedTable bool   `yaml:"shared_table"`
	SegmentName string `yaml:"segment_name"`

	// Processes runs the parallel strategies with one worker process per
	// partition. The input is shared through the segment named
	// DataSegmentName, and the result table is always shared.
	Processes       bool   `yaml:"processes"`
	DataSegmentName string `yaml:"data_segment_name"`

	Buffer BufferConfig `yaml:"buffer"`
}

// BufferConfig configures the bounded-buffer producer and consumer.
type BufferConfig struct {
	SegmentName string `yaml:"segment_name"`
	SegmentSize int    `yaml:"segment_size"`
	MinValue    int    `yaml:"min_value"`
	MaxValue    int    `yaml:"max_value"`
	MaxCapacity int    `yaml:"max_capacity"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Modulus:         9973,
		Seed:            7649,
		MaxValue:        3000,
		MaxSize:         100000000,
		MaxWorkers:      16,
		Repeat:          1,
		SegmentName:     "modprod_table",
		DataSegmentName: "modprod_data",
		Buffer: BufferConfig{
			SegmentName: "modprod_buffer",
			SegmentSize: 4096,
			MinValue:    2,
			MaxValue:    5200,
			MaxCapacity: 480,
		},
	}
}

// Load reads the configuration at path on top of the defaults. A missing
// file yields the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("MODPROD_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MODPROD_SEED %q: %w", v, err)
		}
		c.Seed = seed
	}
	if v := os.Getenv("MODPROD_MODULUS"); v != "" {
		m, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid MODPROD_MODULUS %q: %w", v, err)
		}
		c.Modulus = uint32(m)
	}
	if v := os.Getenv("MODPROD_SEGMENT"); v != "" {
		c.Buffer.SegmentName = v
	}
	return nil
}

// Validate checks the configuration itself.
func (c *Config) Validate() error {
	switch {
	case c.Modulus < 2:
		return fmt.Errorf("invalid modulus: %d", c.Modulus)
	case c.MaxValue < 1:
		return fmt.Errorf("invalid max_value: %d", c.MaxValue)
	case c.MaxSize < 1:
		return fmt.Errorf("invalid max_size: %d", c.MaxSize)
	case c.MaxWorkers < 1:
		return fmt.Errorf("invalid max_workers: %d", c.MaxWorkers)
	case c.Repeat < 1:
		return fmt.Errorf("invalid repeat: %d", c.Repeat)
	case c.Buffer.MinValue > c.Buffer.MaxValue:
		return fmt.Errorf("invalid buffer value range: %d:%d", c.Buffer.MinValue, c.Buffer.MaxValue)
	case c.Buffer.MaxCapacity < 2:
		return fmt.Errorf("invalid buffer max_capacity: %d", c.Buffer.MaxCapacity)
	}
	return nil
}

// ValidateArgs checks the arguments of a reduction run: the array size must
// lie in (0, MaxSize], the worker count in (0, MaxWorkers], and the zero index
// must be -1 or lie in [0, arraySize).
func (c *Config) ValidateArgs(arraySize, workers, zeroIndex int) error {
	if arraySize <= 0 || arraySize > c.MaxSize {
		return fmt.Errorf("%w: %d not in (0, %d]", ErrInvalidArraySize, arraySize, c.MaxSize)
	}
	if workers <= 0 || workers > c.MaxWorkers {
		return fmt.Errorf("%w: %d not in (0, %d]", ErrInvalidWorkerCount, workers, c.MaxWorkers)
	}
	if zeroIndex < -1 || zeroIndex >= arraySize {
		return fmt.Errorf("%w: %d", ErrInvalidZeroIndex, zeroIndex)
	}
	return nil
}

// ValidateBuffer checks the arguments of a producer run: the capacity must
// lie in [2, Buffer.MaxCapacity] and the item count must be positive.
func (c *Config) ValidateBuffer(capacity, items int) error {
	if capacity < 2 || capacity > c.Buffer.MaxCapacity {
		return fmt.Errorf("%w: %d not in [2, %d]", ErrInvalidCapacity, capacity, c.Buffer.MaxCapacity)
	}
	if items <= 0 {
		return fmt.Errorf("%w: %d must be greater than 0", ErrInvalidItemCount, items)
	}
	return nil
}

package accessory

import (
	"fmt"
	"io"
	"os"

	"github.com/backkem/hap/pkg/discovery"
	"github.com/backkem/hap/pkg/storage"
	"github.com/pion/logging"
	"gopkg.in/yaml.v3"
)

// DefaultPort is the default HAP port.
const DefaultPort = discovery.DefaultPort

// Defaults for optional configuration.
const (
	DefaultModel          = "HAP-Go"
	DefaultMaxControllers = 16
	DefaultMaxConnections = 8
	DefaultConfigNumber   = 1
)

// Config holds all configuration for an Accessory.
type Config struct {
	// Identity - Required
	Name      string // Advertised instance name
	SetupCode string // "XXX-XX-XXX" or 8 digits

	// Device Information - Optional
	Model    string             // md TXT key (default: "HAP-Go")
	Category discovery.Category // ci TXT key (default: Other)
	SetupID  string             // 4 chars [0-9A-Z]; loaded or generated when empty

	// Network
	Port int // TCP port (default: 51827)

	// Limits
	MaxControllers int // Paired controller capacity (default: 16)
	MaxConnections int // Simultaneous connections (default: 8)

	// ConfigNumber is the initial c# TXT value (default: 1). Once
	// BumpConfigNumber has stored a value, the stored one is used.
	ConfigNumber uint16

	// Storage - Required
	Store storage.BlobStore

	// Random source for keys and codes (default: crypto/rand).
	Random io.Reader

	// Callbacks - Optional
	OnPaired       func(paired bool)
	OnStateChanged func(state State)

	// Advanced - Testing
	AdvertiserFactory discovery.MDNSServerFactory
	LoggerFactory     logging.LoggerFactory
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Store == nil {
		return ErrStorageRequired
	}
	if discovery.InstanceName(c.Name) == "" {
		return ErrInvalidName
	}
	if _, err := ParseSetupCode(c.SetupCode); err != nil {
		return err
	}
	if c.SetupID != "" {
		if err := ValidateSetupID(c.SetupID); err != nil {
			return err
		}
	}
	if c.Category != 0 && !c.Category.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidCategory, c.Category)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	c.SetupCode, _ = ParseSetupCode(c.SetupCode)
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Category == 0 {
		c.Category = discovery.CategoryOther
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.MaxControllers <= 0 {
		c.MaxControllers = DefaultMaxControllers
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.ConfigNumber == 0 {
		c.ConfigNumber = DefaultConfigNumber
	}
}

// FileConfig is the YAML form of the configuration. Storage and LogLevel
// are interpreted by the command that loads the file.
type FileConfig struct {
	Name           string `yaml:"name"`
	Model          string `yaml:"model,omitempty"`
	Category       uint16 `yaml:"category,omitempty"`
	SetupCode      string `yaml:"setup_code"`
	SetupID        string `yaml:"setup_id,omitempty"`
	Port           int    `yaml:"port,omitempty"`
	MaxControllers int    `yaml:"max_controllers,omitempty"`
	MaxConnections int    `yaml:"max_connections,omitempty"`
	ConfigNumber   uint16 `yaml:"config_number,omitempty"`
	Storage        string `yaml:"storage,omitempty"`
	LogLevel       string `yaml:"log_level,omitempty"`
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("accessory: read config: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("accessory: parse config %s: %w", path, err)
	}
	return &fc, nil
}

// Config converts the file form. Store and callbacks are left for the
// caller to fill in.
func (f *FileConfig) Config() Config {
	return Config{
		Name:           f.Name,
		Model:          f.Model,
		Category:       discovery.Category(f.Category),
		SetupCode:      f.SetupCode,
		SetupID:        f.SetupID,
		Port:           f.Port,
		MaxControllers: f.MaxControllers,
		MaxConnections: f.MaxConnections,
		ConfigNumber:   f.ConfigNumber,
	}
}

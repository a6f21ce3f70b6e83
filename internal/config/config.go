package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"epdtext/internal/layout"
)

// Operating modes.
const (
	// ModeStatic renders StaticText once at startup.
	ModeStatic = "static"
	// ModeReactive renders every chunk received on the serial link and the
	// HTTP API.
	ModeReactive = "reactive"
)

const defaultStaticText = "epdtext\nWaiting for text on the serial link"

// BasicAuthConfig holds HTTP Basic Auth credentials for the HTTP API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// SerialConfig describes the serial-over-USB input link.
type SerialConfig struct {
	// Port is the tty device, e.g. "/dev/ttyGS0" on a USB gadget or
	// "/dev/ttyACM0" behind a CDC adapter. Empty disables serial input.
	Port string `yaml:"port" json:"port"`
	Baud int    `yaml:"baud" json:"baud"`
	// ReadTimeoutMs bounds a single poll of the port.
	ReadTimeoutMs int `yaml:"read_timeout_ms" json:"read_timeout_ms"`
}

// PanelConfig describes the wiring of the e-paper HAT.
type PanelConfig struct {
	// SPIPort is the periph spireg name; empty selects the first port.
	SPIPort string `yaml:"spi_port" json:"spi_port"`
	SPIHz   int64  `yaml:"spi_hz" json:"spi_hz"`

	// GPIO names resolved through periph gpioreg (e.g. "GPIO25").
	DC   string `yaml:"dc" json:"dc"`
	CS   string `yaml:"cs" json:"cs"`
	RST  string `yaml:"rst" json:"rst"`
	Busy string `yaml:"busy" json:"busy"`

	// Rotation of the logical canvas in degrees: 0, 90, 180 or 270.
	Rotation int `yaml:"rotation" json:"rotation"`

	BusyTimeoutMs int `yaml:"busy_timeout_ms" json:"busy_timeout_ms"`
}

// FontConfig selects a monospace face for one line style.
type FontConfig struct {
	Face string  `yaml:"face" json:"face"`
	Size float64 `yaml:"size" json:"size"`
}

// LayoutConfig holds the fixed line geometry.
type LayoutConfig struct {
	MarginX   int        `yaml:"margin_x" json:"margin_x"`
	MarginY   int        `yaml:"margin_y" json:"margin_y"`
	Line0Gap  int        `yaml:"line0_gap" json:"line0_gap"`
	Pitch     int        `yaml:"pitch" json:"pitch"`
	Primary   FontConfig `yaml:"primary" json:"primary"`
	Secondary FontConfig `yaml:"secondary" json:"secondary"`
}

// BatteryConfig points at an optional I2C fuel gauge reported by /api/status.
type BatteryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Bus     string `yaml:"bus" json:"bus"`
	Addr    uint16 `yaml:"addr" json:"addr"`
}

// Config is the top-level application configuration.
type Config struct {
	// Mode is ModeStatic or ModeReactive.
	Mode string `yaml:"mode" json:"mode"`

	// StaticText is rendered in static mode. Lines are separated by "\n";
	// the first line is the title.
	StaticText string `yaml:"static_text" json:"static_text"`

	// Listen is the HTTP listen address. Empty disables the HTTP API.
	Listen string `yaml:"listen" json:"listen"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// MaxChunk caps one received chunk; excess bytes are dropped.
	MaxChunk int `yaml:"max_chunk" json:"max_chunk"`

	// Ack is written back to the sender after every received chunk.
	Ack string `yaml:"ack" json:"ack"`

	PollIntervalMs int `yaml:"poll_interval_ms" json:"poll_interval_ms"`

	// Redraw is a cron schedule ("0 4 * * *") on which the last payload is
	// redrawn with a full refresh. Empty disables it.
	Redraw string `yaml:"redraw" json:"redraw"`

	// PreviewPath receives a PNG of every displayed frame. Empty disables it.
	PreviewPath string `yaml:"preview_path" json:"preview_path"`

	Serial  SerialConfig  `yaml:"serial" json:"serial"`
	Panel   PanelConfig   `yaml:"panel" json:"panel"`
	Layout  LayoutConfig  `yaml:"layout" json:"layout"`
	Battery BatteryConfig `yaml:"battery" json:"battery"`
}

// DefaultConfig returns an in-memory default configuration wired for the
// Waveshare 2.9" HAT on a Raspberry Pi.
func DefaultConfig() *Config {
	return &Config{
		Mode:           ModeReactive,
		StaticText:     defaultStaticText,
		Listen:         "",
		LogLevel:       "info",
		MaxChunk:       2048,
		Ack:            "ok !\n",
		PollIntervalMs: 10,
		Redraw:         "",
		PreviewPath:    "",
		Serial: SerialConfig{
			Port:          "/dev/ttyGS0",
			Baud:          115200,
			ReadTimeoutMs: 10,
		},
		Panel: PanelConfig{
			SPIPort:       "",
			SPIHz:         4_000_000,
			DC:            "GPIO25",
			CS:            "",
			RST:           "GPIO17",
			Busy:          "GPIO24",
			Rotation:      90,
			BusyTimeoutMs: 5000,
		},
		Layout: LayoutConfig{
			MarginX:   5,
			MarginY:   5,
			Line0Gap:  20,
			Pitch:     20,
			Primary:   FontConfig{Face: layout.FaceGoMono, Size: 17},
			Secondary: FontConfig{Face: layout.FaceGoMono, Size: 15},
		},
		Battery: BatteryConfig{
			Enabled: false,
			Bus:     "",
			Addr:    0x57,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.MaxChunk <= 0 {
		c.MaxChunk = def.MaxChunk
	}
	if c.Ack == "" {
		c.Ack = def.Ack
	}
	if c.PollIntervalMs <= 0 {
		c.PollIntervalMs = def.PollIntervalMs
	}

	if c.Serial.Baud <= 0 {
		c.Serial.Baud = def.Serial.Baud
	}
	if c.Serial.ReadTimeoutMs <= 0 {
		c.Serial.ReadTimeoutMs = def.Serial.ReadTimeoutMs
	}

	if c.Panel.SPIHz <= 0 {
		c.Panel.SPIHz = def.Panel.SPIHz
	}
	if c.Panel.DC == "" {
		c.Panel.DC = def.Panel.DC
	}
	if c.Panel.RST == "" {
		c.Panel.RST = def.Panel.RST
	}
	if c.Panel.Busy == "" {
		c.Panel.Busy = def.Panel.Busy
	}
	if c.Panel.BusyTimeoutMs <= 0 {
		c.Panel.BusyTimeoutMs = def.Panel.BusyTimeoutMs
	}

	// Zero margins and gaps are legal; only negative values are reset.
	if c.Layout.MarginX < 0 {
		c.Layout.MarginX = def.Layout.MarginX
	}
	if c.Layout.MarginY < 0 {
		c.Layout.MarginY = def.Layout.MarginY
	}
	if c.Layout.Line0Gap < 0 {
		c.Layout.Line0Gap = def.Layout.Line0Gap
	}
	if c.Layout.Pitch <= 0 {
		c.Layout.Pitch = def.Layout.Pitch
	}
	normalizeFont(&c.Layout.Primary, def.Layout.Primary)
	normalizeFont(&c.Layout.Secondary, def.Layout.Secondary)

	if c.Battery.Addr == 0 {
		c.Battery.Addr = def.Battery.Addr
	}
}

func normalizeFont(f *FontConfig, def FontConfig) {
	if f.Face == "" {
		f.Face = def.Face
	}
	if f.Size <= 0 {
		f.Size = def.Size
	}
}

// Validate reports values Normalize cannot repair.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeStatic, ModeReactive:
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	switch c.Panel.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("config: rotation must be 0, 90, 180 or 270, got %d", c.Panel.Rotation)
	}
	for name, f := range map[string]FontConfig{"primary": c.Layout.Primary, "secondary": c.Layout.Secondary} {
		switch f.Face {
		case layout.FaceGoMono, layout.FaceBasic:
		default:
			return fmt.Errorf("config: layout.%s: unknown font face %q", name, f.Face)
		}
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".epdtext-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

package vkframe

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/andewx/vkframe/driver"
)

// Config holds the start-up settings of a Renderer. It is normally loaded
// from a TOML file:
//
//	app_name = "demo"
//	api_version = "1.3"
//	image_count = 3
//	validation = true
//
//	[window]
//	title = "demo"
//	width = 1280
//	height = 720
type Config struct {
	AppName    string       `toml:"app_name"`
	APIVersion string       `toml:"api_version"`
	Window     WindowConfig `toml:"window"`

	// ImageCount is the desired number of swapchain images. It is
	// clamped into the range the surface supports.
	ImageCount uint32 `toml:"image_count"`

	Validation         bool     `toml:"validation"`
	Layers             []string `toml:"layers,omitempty"`
	InstanceExtensions []string `toml:"instance_extensions,omitempty"`
	DeviceExtensions   []string `toml:"device_extensions,omitempty"`

	// FatalLog, when set, is a file fatal errors are appended to.
	FatalLog string `toml:"fatal_log,omitempty"`

	ClearColor [4]float32 `toml:"clear_color"`
}

type WindowConfig struct {
	Title     string `toml:"title"`
	Width     int    `toml:"width"`
	Height    int    `toml:"height"`
	Resizable bool   `toml:"resizable"`
}

// DefaultImageCount is the swapchain image count asked for by default.
const DefaultImageCount = 3

func DefaultConfig() Config {
	return Config{
		AppName:    "vkframe",
		APIVersion: "1.3",
		Window: WindowConfig{
			Title:     "vkframe",
			Width:     1280,
			Height:    720,
			Resizable: true,
		},
		ImageCount: DefaultImageCount,
		Layers:     []string{"VK_LAYER_KHRONOS_validation"},
		ClearColor: [4]float32{0, 0, 0, 1},
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// ParseConfig decodes TOML data on top of DefaultConfig. Unknown keys are
// rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Encode renders the config as TOML.
func (c Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

func (c Config) Validate() error {
	if _, err := c.Version(); err != nil {
		return err
	}
	if c.Window.Width < 0 || c.Window.Height < 0 {
		return errors.Errorf("vkframe: negative window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.ImageCount == 0 {
		return errors.New("vkframe: image_count must be positive")
	}
	return nil
}

// Version parses APIVersion ("1.3" or "1.3.250").
func (c Config) Version() (driver.Version, error) {
	var major, minor, patch uint32
	n, _ := fmt.Sscanf(c.APIVersion, "%d.%d.%d", &major, &minor, &patch)
	if n < 2 {
		return 0, errors.Errorf("vkframe: bad api_version %q", c.APIVersion)
	}
	return driver.MakeVersion(major, minor, patch), nil
}

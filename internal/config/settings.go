package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings is the runtime configuration of the appliance.
// It is loaded from an optional YAML file, then overridden by COUNTDOWN_* variables.
type Settings struct {
	Server  ServerSettings  `yaml:"server"`
	Storage StorageSettings `yaml:"storage"`
	Loop    LoopSettings    `yaml:"loop"`
	Locale  LocaleSettings  `yaml:"locale"`
	Sensor  SensorSettings  `yaml:"sensor"`
	Display DisplaySettings `yaml:"display"`
}

// ---- SERVER ----

type ServerSettings struct {
	ListenAddr string `yaml:"listen_addr" validate:"required,hostname_port"`
	StaticDir  string `yaml:"static_dir"`
}

// ---- STORAGE ----

type StorageSettings struct {
	DataDir  string `yaml:"data_dir" validate:"required"`
	Capacity int    `yaml:"capacity" validate:"min=1,max=1000"`
}

// ---- LOOP ----

type LoopSettings struct {
	PollIntervalMs  int `yaml:"poll_interval_ms" validate:"min=100"`
	MidnightCheckMs int `yaml:"midnight_check_ms" validate:"gtefield=PollIntervalMs"`
	ScanWindowMs    int `yaml:"scan_window_ms" validate:"min=1000"`
}

// ---- LOCALE ----

type LocaleSettings struct {
	Language string `yaml:"language" validate:"required,alpha,len=2"`
	Timezone string `yaml:"timezone" validate:"required,timezone"`
}

// ---- SENSOR ----

type SensorSettings struct {
	Type      string `yaml:"type" validate:"oneof=modbus file none"`
	Endpoint  string `yaml:"endpoint" validate:"required_unless=Type none"`
	SlaveID   uint8  `yaml:"slave_id" validate:"min=1,max=247"`
	Register  uint16 `yaml:"register"`
	TimeoutMs int    `yaml:"timeout_ms" validate:"min=10"`
	BaudRate  int    `yaml:"baud_rate" validate:"min=1200"`
}

// ---- DISPLAY ----

type DisplaySettings struct {
	Width      int    `yaml:"width" validate:"min=100,max=4096"`
	Height     int    `yaml:"height" validate:"min=100,max=4096"`
	OutputPath string `yaml:"output_path"`
}

var validate = validator.New()

// DefaultSettings returns the settings used when no file is present.
func DefaultSettings() *Settings {
	return &Settings{
		Server: ServerSettings{ListenAddr: DefaultListenAddr},
		Storage: StorageSettings{
			DataDir:  DefaultDataDir,
			Capacity: DefaultCapacity,
		},
		Loop: LoopSettings{
			PollIntervalMs:  int(DefaultPollInterval / time.Millisecond),
			MidnightCheckMs: int(DefaultMidnightCheck / time.Millisecond),
			ScanWindowMs:    int(DefaultScanWindow / time.Millisecond),
		},
		Locale: LocaleSettings{
			Language: DefaultLanguage,
			Timezone: DefaultTimezone,
		},
		Sensor: SensorSettings{
			Type:      DefaultSensorType,
			SlaveID:   DefaultSensorSlaveID,
			TimeoutMs: int(DefaultSensorTimeout / time.Millisecond),
			BaudRate:  DefaultSensorBaudRate,
		},
		Display: DisplaySettings{
			Width:  DefaultFrameWidth,
			Height: DefaultFrameHeight,
		},
	}
}

// LoadSettings reads the YAML file at path on top of the defaults, applies the
// .env file and COUNTDOWN_* overrides, then validates and normalizes the result.
// A missing file is not an error.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, s); err != nil {
			return nil, fmt.Errorf("%s: %w", ErrSettingsParse, err)
		}
		slog.Info(MsgSettingsLoaded, LogKeyComponent, CompMain, LogKeyPath, path)
	case errors.Is(err, fs.ErrNotExist):
		slog.Info(MsgSettingsDefault, LogKeyComponent, CompMain, LogKeyPath, path)
	default:
		return nil, fmt.Errorf("%s: %w", ErrSettingsRead, err)
	}

	if _, err := os.Stat(EnvFile); err == nil {
		if err := godotenv.Load(EnvFile); err == nil {
			slog.Info(MsgEnvLoaded, LogKeyComponent, CompMain, LogKeyFile, EnvFile)
		}
	}
	s.applyEnv()
	// The sensor type is an enum, so case is folded before it is checked.
	s.Sensor.Type = strings.ToLower(s.Sensor.Type)

	if err := Validate(s); err != nil {
		return nil, err
	}
	Normalize(s)
	return s, nil
}

// applyEnv overrides fields from the environment. Empty variables are ignored.
func (s *Settings) applyEnv() {
	overrides := []struct {
		key    string
		target *string
	}{
		{EnvListenAddr, &s.Server.ListenAddr},
		{EnvDataDir, &s.Storage.DataDir},
		{EnvLanguage, &s.Locale.Language},
		{EnvTimezone, &s.Locale.Timezone},
		{EnvSensorType, &s.Sensor.Type},
		{EnvSensorEndpoint, &s.Sensor.Endpoint},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.key)); v != "" {
			*o.target = v
		}
	}
}

// Validate checks settings correctness.
// It performs declarative validation only.
// It MUST NOT mutate settings.
func Validate(s *Settings) error {
	if s == nil {
		return errors.New(ErrSettingsInvalid)
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%s: %w", ErrSettingsInvalid, err)
	}
	return nil
}

// Normalize applies post-validation normalization.
// It MUST be called only after Validate().
func Normalize(s *Settings) {
	if s == nil {
		return
	}

	s.Locale.Language = strings.ToLower(s.Locale.Language)

	if s.Display.OutputPath == "" {
		s.Display.OutputPath = filepath.Join(s.Storage.DataDir, DefaultFrameFile)
	}
}

// Location resolves the configured timezone. Validate guarantees it loads.
func (s *Settings) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Locale.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", ErrTimezone, s.Locale.Timezone, err)
	}
	return loc, nil
}

// StorePath is the JSON document holding countdowns and WiFi settings.
func (s *Settings) StorePath() string {
	return filepath.Join(s.Storage.DataDir, StoreFileName)
}

// ImagesDir is where uploaded card images are kept.
func (s *Settings) ImagesDir() string {
	return filepath.Join(s.Storage.DataDir, ImagesDirName)
}

func (l LoopSettings) PollInterval() time.Duration {
	return time.Duration(l.PollIntervalMs) * time.Millisecond
}

func (l LoopSettings) MidnightCheck() time.Duration {
	return time.Duration(l.MidnightCheckMs) * time.Millisecond
}

func (l LoopSettings) ScanWindow() time.Duration {
	return time.Duration(l.ScanWindowMs) * time.Millisecond
}

func (s SensorSettings) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

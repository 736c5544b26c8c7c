// Package config loads mudra's configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig `yaml:"server"`
	Camera  CameraConfig `yaml:"camera"`
	Model   ModelConfig  `yaml:"model"`
	Loop    LoopConfig   `yaml:"loop"`
	Video   VideoConfig  `yaml:"video"`
	Game    GameConfig   `yaml:"game"`
	Log     LogConfig    `yaml:"log"`
	DataDir string       `yaml:"data_dir" validate:"required"`
	Tray    bool         `yaml:"tray"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr      string `yaml:"addr" validate:"required"`
	StaticDir string `yaml:"static_dir"`
}

// CameraConfig holds the stream constraints requested from the device.
type CameraConfig struct {
	DeviceID     int           `yaml:"device_id" validate:"gte=0"`
	IdealWidth   int           `yaml:"ideal_width" validate:"gt=0,ltefield=MaxWidth"`
	MaxWidth     int           `yaml:"max_width" validate:"gt=0"`
	IdealHeight  int           `yaml:"ideal_height" validate:"gt=0,ltefield=MaxHeight"`
	MaxHeight    int           `yaml:"max_height" validate:"gt=0"`
	FacingMode   string        `yaml:"facing_mode" validate:"oneof=user environment"`
	FPS          int           `yaml:"fps" validate:"gt=0,lte=120"`
	ReadyBackoff time.Duration `yaml:"ready_backoff" validate:"gt=0"`
	RestartDelay time.Duration `yaml:"restart_delay" validate:"gte=0"`
}

// ModelConfig selects the recognizer backend and its assets.
type ModelConfig struct {
	Backend       string        `yaml:"backend" validate:"oneof=mediapipe onnx"`
	RemoteURL     string        `yaml:"remote_url" validate:"omitempty,url"`
	LocalPath     string        `yaml:"local_path" validate:"required"`
	RuntimePath   string        `yaml:"runtime_path"`
	CacheDir      string        `yaml:"cache_dir"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	NumHands      int           `yaml:"num_hands" validate:"eq=1"`
	Delegate      string        `yaml:"delegate" validate:"oneof=CPU GPU"`
	MinConfidence float64       `yaml:"min_confidence" validate:"gte=0,lte=1"`
}

// LoopConfig configures the recognition loop scheduler.
type LoopConfig struct {
	DisplayFPS int `yaml:"display_fps" validate:"gt=0,lte=240"`
}

// VideoConfig configures the video control consumer.
type VideoConfig struct {
	SeekOffset    time.Duration `yaml:"seek_offset" validate:"gt=0"`
	MinConfidence int           `yaml:"min_confidence" validate:"gt=0,lte=100"`
	Cooldown      time.Duration `yaml:"cooldown" validate:"gt=0"`
}

// GameConfig configures the Simon Says game.
type GameConfig struct {
	ShowStep      time.Duration `yaml:"show_step" validate:"gt=0"`
	SuccessDelay  time.Duration `yaml:"success_delay" validate:"gte=0"`
	MinConfidence int           `yaml:"min_confidence" validate:"gte=0,lte=100"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn error"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	dataDir := ".mudra"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".mudra")
	}

	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Camera: CameraConfig{
			IdealWidth:   1280,
			MaxWidth:     1920,
			IdealHeight:  720,
			MaxHeight:    1080,
			FacingMode:   "user",
			FPS:          30,
			ReadyBackoff: 100 * time.Millisecond,
			RestartDelay: 500 * time.Millisecond,
		},
		Model: ModelConfig{
			Backend:       "mediapipe",
			RemoteURL:     "https://storage.googleapis.com/mediapipe-models/gesture_recognizer/gesture_recognizer/float16/1/gesture_recognizer.task",
			LocalPath:     "models/gesture_recognizer.task",
			Timeout:       30 * time.Second,
			NumHands:      1,
			Delegate:      "CPU",
			MinConfidence: 0.5,
		},
		Loop: LoopConfig{DisplayFPS: 60},
		Video: VideoConfig{
			SeekOffset:    10 * time.Second,
			MinConfidence: 70,
			Cooldown:      2 * time.Second,
		},
		Game: GameConfig{
			ShowStep:      time.Second,
			SuccessDelay:  1500 * time.Millisecond,
			MinConfidence: 70,
		},
		Log:     LogConfig{Level: "info"},
		DataDir: dataDir,
	}
}

// Load reads path (if it exists) over the defaults, applies environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	// .env is optional; the process environment still applies without it.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Model.CacheDir == "" {
		cfg.Model.CacheDir = filepath.Join(cfg.DataDir, "models")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DBPath returns the sqlite database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "mudra.db")
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("MUDRA_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MUDRA_STATIC_DIR"); v != "" {
		c.Server.StaticDir = v
	}
	if v := os.Getenv("MUDRA_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("MUDRA_MODEL_BACKEND"); v != "" {
		c.Model.Backend = v
	}
	if v := os.Getenv("MUDRA_MODEL_URL"); v != "" {
		c.Model.RemoteURL = v
	}
	if v := os.Getenv("MUDRA_MODEL_PATH"); v != "" {
		c.Model.LocalPath = v
	}
	if v := os.Getenv("MUDRA_RUNTIME_PATH"); v != "" {
		c.Model.RuntimePath = v
	}
	if v := os.Getenv("MUDRA_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MUDRA_CAMERA_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MUDRA_CAMERA_ID: %w", err)
		}
		c.Camera.DeviceID = id
	}
	return nil
}

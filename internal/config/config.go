package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string           `yaml:"env" env:"ENV" env-default:"local"`
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	WebRTC     WebRTCConfig     `yaml:"webrtc"`
	Rooms      RoomsConfig      `yaml:"rooms"`
	Signaling  SignalingConfig  `yaml:"signaling"`
	Recordings RecordingsConfig `yaml:"recordings"`
	Auth       AuthConfig       `yaml:"auth"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-separator:","`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	// DSN selects the postgres stores. Empty keeps everything in memory.
	DSN string `yaml:"dsn" env:"DATABASE_DSN"`
}

type WebRTCConfig struct {
	STUNServers    []string `yaml:"stun_servers" env:"WEBRTC_STUN_SERVERS" env-separator:","`
	TURNServers    []string `yaml:"turn_servers" env:"WEBRTC_TURN_SERVERS" env-separator:","`
	TURNUsername   string   `yaml:"turn_username" env:"WEBRTC_TURN_USERNAME"`
	TURNCredential string   `yaml:"turn_credential" env:"WEBRTC_TURN_CREDENTIAL"`
}

type RoomsConfig struct {
	DefaultCapacity    int           `yaml:"default_capacity" env:"ROOMS_DEFAULT_CAPACITY"`
	MaxCapacity        int           `yaml:"max_capacity" env:"ROOMS_MAX_CAPACITY"`
	ScreenShareTimeout time.Duration `yaml:"screen_share_timeout" env:"ROOMS_SCREEN_SHARE_TIMEOUT"`
}

type SignalingConfig struct {
	SendBuffer     int   `yaml:"send_buffer" env:"SIGNALING_SEND_BUFFER"`
	MaxMessageSize int64 `yaml:"max_message_size" env:"SIGNALING_MAX_MESSAGE_SIZE"`
}

type RecordingsConfig struct {
	Dir           string `yaml:"dir" env:"RECORDINGS_DIR"`
	MaxUploadSize int64  `yaml:"max_upload_size" env:"RECORDINGS_MAX_UPLOAD_SIZE"`
}

type AuthConfig struct {
	// JWTSecret enables HS256 bearer verification. Empty trusts identity headers (development only).
	JWTSecret string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	cfg, err := LoadPath(configPath)
	if err != nil {
		panic(err.Error())
	}

	return cfg
}

func LoadPath(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, &os.PathError{Op: "config", Path: configPath, Err: os.ErrNotExist}
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	return &cfg, nil
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if len(c.WebRTC.STUNServers) == 0 {
		c.WebRTC.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
	if c.Rooms.MaxCapacity <= 0 {
		c.Rooms.MaxCapacity = 16
	}
	if c.Rooms.DefaultCapacity <= 0 {
		c.Rooms.DefaultCapacity = 8
	}
	if c.Rooms.DefaultCapacity > c.Rooms.MaxCapacity {
		c.Rooms.DefaultCapacity = c.Rooms.MaxCapacity
	}
	if c.Rooms.ScreenShareTimeout <= 0 {
		c.Rooms.ScreenShareTimeout = 30 * time.Second
	}
	if c.Signaling.SendBuffer <= 0 {
		c.Signaling.SendBuffer = 64
	}
	if c.Signaling.MaxMessageSize <= 0 {
		c.Signaling.MaxMessageSize = 64 * 1024
	}
	if c.Recordings.Dir == "" {
		c.Recordings.Dir = "data/recordings"
	}
	if c.Recordings.MaxUploadSize <= 0 {
		c.Recordings.MaxUploadSize = 500 << 20
	}
}

package configs

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded at startup.
type Config struct {
	Server struct {
		IP   string `yaml:"ip"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Log struct {
		LogLevel string `yaml:"log_level"`
		LogDir   string `yaml:"log_dir"`
		LogFile  string `yaml:"log_file"`
	} `yaml:"log"`

	Camera CameraConfig `yaml:"camera"`

	Critique map[string]CritiqueConfig `yaml:"critique"`
	ImageGen map[string]ImageGenConfig `yaml:"image_gen"`

	SelectedModule map[string]string `yaml:"selected_module"`

	TTS TTSConfig `yaml:"tts"`

	Analyzer AnalyzerConfig `yaml:"analyzer"`

	Storage StorageConfig `yaml:"storage"`

	// SystemPrompt seeds the first critique request of a session.
	SystemPrompt string `yaml:"system_prompt"`
}

// CameraConfig selects and locates the frame source device.
type CameraConfig struct {
	Type      string `yaml:"type"`       // "mjpeg" or "still"
	StreamURL string `yaml:"stream_url"` // multipart stream endpoint
	SnapURL   string `yaml:"snap_url"`   // single-shot endpoint
	MaxWidth  int    `yaml:"max_width"`  // downscale bound before model upload
}

// CritiqueConfig configures one vision/text model backend.
type CritiqueConfig struct {
	Type      string                 `yaml:"type"` // "gemini" or "openai"
	ModelName string                 `yaml:"model_name"`
	BaseURL   string                 `yaml:"url"`
	APIKey    string                 `yaml:"api_key"`
	Extra     map[string]interface{} `yaml:",inline"`
}

// ImageGenConfig configures one text-to-image backend.
type ImageGenConfig struct {
	Type      string `yaml:"type"` // "gemini"
	ModelName string `yaml:"model_name"`
	BaseURL   string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
}

// TTSConfig holds the process-wide speech settings. Enabled, rate, volume and
// voice are mutable at runtime through the web API; these are the boot values.
type TTSConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Engine    string  `yaml:"engine"` // "edge" or "command"
	Rate      int     `yaml:"rate"`   // words per minute
	Volume    float64 `yaml:"volume"` // 0.0 - 1.0
	Voice     string  `yaml:"voice"`
	OutputDir string  `yaml:"output_dir"`
	PlayerCmd string  `yaml:"player_cmd"` // external audio player for edge engine
	SpeakCmd  string  `yaml:"speak_cmd"`  // external speech tool for command engine
}

// AnalyzerConfig controls feedback post-processing and history retention.
type AnalyzerConfig struct {
	SaveHistory bool   `yaml:"save_history"`
	HistoryDir  string `yaml:"history_dir"`
	MaxEntries  int    `yaml:"max_entries"`
}

// StorageConfig names the image output directories.
type StorageConfig struct {
	CapturedDir  string `yaml:"captured_dir"`
	GeneratedDir string `yaml:"generated_dir"`
}

// LoadConfig loads configuration from .config.yaml, falling back to
// config.yaml, and fills in defaults for anything left unset. A missing file
// is not an error; the defaults alone are a runnable configuration.
func LoadConfig() (*Config, string, error) {
	path := ".config.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = "config.yaml"
	}

	config := defaultConfig()
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, path, err
		}
	} else if !os.IsNotExist(err) {
		return nil, path, err
	}

	config.applyEnv()
	return config, path, nil
}

func defaultConfig() *Config {
	c := &Config{}
	c.Server.IP = "0.0.0.0"
	c.Server.Port = 5000
	c.Log.LogLevel = "info"
	c.Log.LogDir = "logs"
	c.Log.LogFile = "app.log"
	c.Camera.Type = "mjpeg"
	c.Camera.MaxWidth = 1280
	c.TTS.Enabled = true
	c.TTS.Engine = "edge"
	c.TTS.Rate = 150
	c.TTS.Volume = 0.8
	c.TTS.OutputDir = "tmp/speech"
	c.Analyzer.SaveHistory = true
	c.Analyzer.HistoryDir = "drawing_history"
	c.Analyzer.MaxEntries = 100
	c.Storage.CapturedDir = "captured_images"
	c.Storage.GeneratedDir = "generated_images"
	c.SystemPrompt = "You are an expert comic book art assistant. Analyze the user's drawing and provide helpful, constructive, and actionable feedback to improve their comic art technique. Focus on clarity, anatomy, perspective, and storytelling. Be concise and supportive."
	return c
}

// applyEnv overlays secrets and common overrides from environment variables so
// API keys never need to live in the YAML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("VISION_SYSTEM_PROMPT"); v != "" {
		c.SystemPrompt = v
	}
	if v := os.Getenv("CAMERA_STREAM_URL"); v != "" {
		c.Camera.StreamURL = v
	}
	if v := os.Getenv("CAMERA_SNAP_URL"); v != "" {
		c.Camera.SnapURL = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	for name, cc := range c.Critique {
		if cc.APIKey == "" {
			cc.APIKey = os.Getenv("VISION_API_KEY")
			c.Critique[name] = cc
		}
	}
	for name, ic := range c.ImageGen {
		if ic.APIKey == "" {
			ic.APIKey = os.Getenv("IMAGE_API_KEY")
			c.ImageGen[name] = ic
		}
	}
}

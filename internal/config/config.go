package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	productionAPIURL = "http://braile-service.sapie.ai:8080"
	localAPIURL      = "http://localhost:8080"
)

// Config stores runtime configuration for the sori client.
type Config struct {
	API     APIConfig
	Audio   AudioConfig
	Gesture GestureConfig
	Speech  SpeechConfig
	Storage StorageConfig
	Chat    ChatConfig
}

type APIConfig struct {
	BaseURL       string
	VerifyTimeout time.Duration
}

type AudioConfig struct {
	RecorderCommand string
	PlayerCommand   string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	Language        string
	ModelHint       string
}

type GestureConfig struct {
	// Mode is "double-tap" or "hold". The terminal frontend only reports key
	// presses, so hold mode needs a frontend that delivers key releases.
	Mode               string
	DoubleTapThreshold time.Duration
	HoldDuration       time.Duration
}

type SpeechConfig struct {
	Voice    string
	Speed    float64
	Format   string
	CacheTTL time.Duration
	CacheDir string
}

type StorageConfig struct {
	SessionsPath    string
	CredentialsPath string
	LogPath         string
}

type ChatConfig struct {
	User    string
	AgentID int
}

// Load resolves configuration from environment variables and sensible defaults.
// The API base URL precedence is: SORI_API_URL, production default when
// SORI_ENV=production, otherwise the local development default.
func Load() (Config, error) {
	dataDir := strings.TrimSpace(os.Getenv("SORI_DATA_DIR"))
	if dataDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = filepath.Join(os.TempDir(), "sori")
		}
		dataDir = filepath.Join(base, "sori")
	}

	cfg := Config{
		API: APIConfig{
			BaseURL:       resolveAPIURL(),
			VerifyTimeout: time.Duration(envOrDefaultInt("SORI_VERIFY_TIMEOUT_MS", 3000)) * time.Millisecond,
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("SORI_FFMPEG_COMMAND", "ffmpeg"),
			PlayerCommand:   envOrDefault("SORI_PLAYER_COMMAND", "ffplay"),
			InputFormat:     envOrDefault("SORI_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     envOrDefault("SORI_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      envOrDefaultInt("SORI_AUDIO_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("SORI_AUDIO_CHANNELS", 1),
			Language:        envOrDefault("SORI_TRANSCRIBE_LANGUAGE", "ko"),
			ModelHint:       envOrDefault("SORI_TRANSCRIBE_MODEL", "whisper-1"),
		},
		Gesture: GestureConfig{
			Mode:               envOrDefault("SORI_GESTURE_MODE", "double-tap"),
			DoubleTapThreshold: time.Duration(envOrDefaultInt("SORI_DOUBLE_TAP_MS", 450)) * time.Millisecond,
			HoldDuration:       time.Duration(envOrDefaultInt("SORI_HOLD_MS", 2000)) * time.Millisecond,
		},
		Speech: SpeechConfig{
			Voice:    envOrDefault("SORI_TTS_VOICE", "alloy"),
			Speed:    envOrDefaultFloat("SORI_TTS_SPEED", 1.0),
			Format:   envOrDefault("SORI_TTS_FORMAT", "mp3"),
			CacheTTL: time.Duration(envOrDefaultInt("SORI_TTS_CACHE_TTL_S", 300)) * time.Second,
			CacheDir: filepath.Join(dataDir, "tts"),
		},
		Storage: StorageConfig{
			SessionsPath:    filepath.Join(dataDir, "sessions.json"),
			CredentialsPath: filepath.Join(dataDir, "credentials.json"),
			LogPath:         filepath.Join(dataDir, "sori.log"),
		},
		Chat: ChatConfig{
			User:    envOrDefault("SORI_USER", "default-user"),
			AgentID: envOrDefaultInt("SORI_AGENT_ID", 0),
		},
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Gesture.Mode != "hold" {
		cfg.Gesture.Mode = "double-tap"
	}
	if cfg.Gesture.DoubleTapThreshold <= 0 {
		cfg.Gesture.DoubleTapThreshold = 450 * time.Millisecond
	}
	if cfg.Gesture.HoldDuration <= 0 {
		cfg.Gesture.HoldDuration = 2 * time.Second
	}
	if cfg.Speech.CacheTTL <= 0 {
		cfg.Speech.CacheTTL = 5 * time.Minute
	}

	return cfg, nil
}

func resolveAPIURL() string {
	if explicit := strings.TrimSpace(os.Getenv("SORI_API_URL")); explicit != "" {
		return strings.TrimRight(explicit, "/")
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("SORI_ENV")), "production") {
		return productionAPIURL
	}
	return localAPIURL
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

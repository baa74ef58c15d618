package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Output
	OutputRoot string
	WriteText  bool
	WorkDir    string

	// Pipeline
	LanguageMode    string
	CaptionFallback string
	MaxWorkers      int
	Concurrent      bool
	MaxPages        int

	// Transcription
	Engine               string
	WhisperBinary        string
	WhisperModel         string
	GeminiAPIKey         string
	GeminiModel          string
	GeminiConcurrentReqs int

	// Downloads
	YtDlpBinary        string
	FFmpegBinary       string
	HTTPTimeout        time.Duration
	BilibiliRPS        float64
	BilibiliCookieFile string
	YouTubeCookieFile  string

	// Server
	Port         string
	Env          string
	DatabaseURL  string
	RedisURL     string
	JWTSecret    string
	ServeWorkers int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		OutputRoot: resolveOutputRoot(firstEnv("TRANSCRIBE_OUTPUT_DIR", "BILI_OUTPUT_DIR")),
		WriteText:  getEnvAsBoolOrDefault("TRANSCRIBE_WRITE_TXT", true),
		WorkDir:    getEnvOrDefault("TRANSCRIBE_WORK_DIR", ""),

		LanguageMode:    getEnvOrDefault("TRANSCRIBE_LANG", "auto"),
		CaptionFallback: getEnvOrDefault("TRANSCRIBE_CAPTION_FALLBACK", "auto"),
		MaxWorkers:      getEnvAsIntOrDefault("TRANSCRIBE_MAX_WORKERS", 5),
		Concurrent:      getEnvAsBoolOrDefault("TRANSCRIBE_CONCURRENT", true),
		MaxPages:        getEnvAsIntOrDefault("TRANSCRIBE_MAX_PAGES", 200),

		Engine:               strings.ToLower(getEnvOrDefault("TRANSCRIBE_ENGINE", "whisper")),
		WhisperBinary:        getEnvOrDefault("WHISPER_BIN", ""),
		WhisperModel:         getEnvOrDefault("WHISPER_MODEL", "small"),
		GeminiAPIKey:         getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:          getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),

		YtDlpBinary:        getEnvOrDefault("YTDLP_BIN", ""),
		FFmpegBinary:       getEnvOrDefault("FFMPEG_BIN", ""),
		HTTPTimeout:        getEnvAsDurationOrDefault("TRANSCRIBE_HTTP_TIMEOUT", 15*time.Second),
		BilibiliRPS:        getEnvAsFloatOrDefault("BILIBILI_REQUESTS_PER_SECOND", 4),
		BilibiliCookieFile: expandHome(getEnvOrDefault("BILIBILI_COOKIE_FILE", "")),
		YouTubeCookieFile:  expandHome(getEnvOrDefault("YOUTUBE_COOKIE_FILE", "")),

		Port:         getEnvOrDefault("PORT", "8080"),
		Env:          getEnvOrDefault("ENV", "development"),
		DatabaseURL:  getEnvOrDefault("DATABASE_URL", "videoscribe.db"),
		RedisURL:     getEnvOrDefault("REDIS_URL", ""),
		JWTSecret:    getEnvOrDefault("JWT_SECRET", ""),
		ServeWorkers: getEnvAsIntOrDefault("SERVE_WORKERS", 2),
	}

	return cfg
}

// ValidateServe checks the settings only the job server needs.
func (c *Config) ValidateServe() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is not set"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is not set"))
	}
	return errors.Join(errs...)
}

// OverrideOutputRoot applies an output directory given on the command line.
// Relative paths are taken from the working directory.
func (c *Config) OverrideOutputRoot(path string) {
	path = expandHome(strings.TrimSpace(path))
	if path == "" {
		return
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	c.OutputRoot = path
}

// resolveOutputRoot places relative paths under the home directory.
func resolveOutputRoot(value string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	if value == "" {
		return filepath.Join(home, "ViedoTextDownload")
	}
	value = expandHome(value)
	if !filepath.IsAbs(value) {
		value = filepath.Join(home, value)
	}
	return value
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

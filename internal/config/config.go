package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultFeedBaseURL  = "https://www.goodreads.com/user/updates_rss/"
	defaultStateBackend = "file"
	defaultStatePath    = "data/users.json"
	defaultTimezone     = "Europe/Madrid"
	defaultPollMinutes  = 15
	defaultBindAddr     = ":8082"
	defaultHTTPTimeout  = 30
	defaultOpenAIModel  = "gpt-4o-mini"
	defaultDBHost       = "127.0.0.1"
	defaultDBPort       = 3306
	defaultDBUser       = "root"
	defaultDBName       = "goodreadsbot"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	UserIDs      []string
	ProfileURL   string
	FeedBaseURL  string
	StateBackend string
	StatePath    string
	Timezone     string
	PollInterval time.Duration
	BindAddr     string
	HTTPTimeout  time.Duration
	WebhookURL   string
	OpenAIKey    string
	OpenAIModel  string
	OpenAIBase   string
	DBHost       string
	DBPort       int
	DBUser       string
	DBPass       string
	DBName       string
	Debug        bool
}

// Load reads environment variables, filling in reasonable defaults.
func Load() Config {
	return Config{
		UserIDs:      listFromEnv("USER_IDS"),
		ProfileURL:   os.Getenv("PROFILE_URL"),
		FeedBaseURL:  stringWithDefault("FEED_BASE_URL", defaultFeedBaseURL),
		StateBackend: strings.ToLower(stringWithDefault("STATE_BACKEND", defaultStateBackend)),
		StatePath:    stringWithDefault("STATE_PATH", defaultStatePath),
		Timezone:     stringWithDefault("TIMEZONE", defaultTimezone),
		PollInterval: durationFromMinutes("POLL_INTERVAL_MINUTES", defaultPollMinutes),
		BindAddr:     stringWithDefault("BIND_ADDR", defaultBindAddr),
		HTTPTimeout:  time.Duration(intWithDefault("HTTP_TIMEOUT_SECONDS", defaultHTTPTimeout)) * time.Second,
		WebhookURL:   os.Getenv("WEBHOOK_URL"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  stringWithDefault("OPENAI_MODEL", defaultOpenAIModel),
		OpenAIBase:   os.Getenv("OPENAI_BASE_URL"),
		DBHost:       stringWithDefault("DB_HOST", defaultDBHost),
		DBPort:       intWithDefault("DB_PORT", defaultDBPort),
		DBUser:       stringWithDefault("DB_USER", defaultDBUser),
		DBPass:       os.Getenv("DB_PASSWORD"),
		DBName:       stringWithDefault("DB_NAME", defaultDBName),
		Debug:        strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug"),
	}
}

func stringWithDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationFromMinutes(key string, fallback int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			return time.Duration(minutes) * time.Minute
		}
		log.Printf("invalid %s=%s, using default %d minutes", key, v, fallback)
	}
	return time.Duration(fallback) * time.Minute
}

func intWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
		log.Printf("invalid %s=%s, using default %d", key, v, fallback)
	}
	return fallback
}

// listFromEnv splits a comma separated variable, dropping blanks.
func listFromEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// RoleIDs maps each qualification rule to its Discord role ID.
type RoleIDs struct {
	FastMonkey            string
	BossSlayer            string
	ExpertCompletionist   string
	AdvancedCompletionist string
	Grandmaster           string
	TheDartLord           string
	AllAchievements       string
}

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken string
	GuildID      string
	OwnerIDs     []string
	Roles        RoleIDs

	// Ninja Kiwi API
	NKAPIBase string

	// API key validation service
	APIValidateURL string
	APIKey         string

	// Database
	DatabasePath string

	// Cache and scheduling
	CacheDuration        time.Duration
	SyncInterval         time.Duration
	ContentCheckInterval time.Duration

	// Metrics endpoint; empty disables the listener
	MetricsAddr string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken: os.Getenv("DISCORD_TOKEN"),
		GuildID:      os.Getenv("DISCORD_GUILD_ID"),
		OwnerIDs:     splitIDs(os.Getenv("DISCORD_OWNER_IDS")),
		Roles: RoleIDs{
			FastMonkey:            os.Getenv("ROLE_FAST_MONKEY"),
			BossSlayer:            os.Getenv("ROLE_BOSS_SLAYER"),
			ExpertCompletionist:   os.Getenv("ROLE_EXPERT_COMPLETIONIST"),
			AdvancedCompletionist: os.Getenv("ROLE_ADVANCED_COMPLETIONIST"),
			Grandmaster:           os.Getenv("ROLE_GRANDMASTER"),
			TheDartLord:           os.Getenv("ROLE_THE_DART_LORD"),
			AllAchievements:       os.Getenv("ROLE_ALL_ACHIEVEMENTS"),
		},
		NKAPIBase:      os.Getenv("NK_API_BASE"),
		APIValidateURL: getEnvOrDefault("API_VALIDATE_URL", "https://api.epildevconnect.uk/api/btd6/validate"),
		APIKey:         os.Getenv("API_KEY"),
		DatabasePath:   getEnvOrDefault("DATABASE_PATH", "./data/bot.db"),
		MetricsAddr:    os.Getenv("METRICS_ADDR"),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
	}

	cacheMinutes, err := getEnvInt("CACHE_DURATION_MINUTES", 10)
	if err != nil {
		return nil, err
	}
	cfg.CacheDuration = time.Duration(cacheMinutes) * time.Minute

	syncMinutes, err := getEnvInt("SYNC_INTERVAL_MINUTES", 15)
	if err != nil {
		return nil, err
	}
	cfg.SyncInterval = time.Duration(syncMinutes) * time.Minute

	contentHours, err := getEnvInt("CONTENT_CHECK_HOURS", 24)
	if err != nil {
		return nil, err
	}
	cfg.ContentCheckInterval = time.Duration(contentHours) * time.Hour

	// Validate required fields
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is required")
	}
	if cfg.GuildID == "" {
		return nil, fmt.Errorf("DISCORD_GUILD_ID is required")
	}
	if len(cfg.OwnerIDs) == 0 {
		return nil, fmt.Errorf("DISCORD_OWNER_IDS is required")
	}
	if cfg.NKAPIBase == "" {
		return nil, fmt.Errorf("NK_API_BASE is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API_KEY is required")
	}
	for name, id := range map[string]string{
		"ROLE_FAST_MONKEY":            cfg.Roles.FastMonkey,
		"ROLE_BOSS_SLAYER":            cfg.Roles.BossSlayer,
		"ROLE_EXPERT_COMPLETIONIST":   cfg.Roles.ExpertCompletionist,
		"ROLE_ADVANCED_COMPLETIONIST": cfg.Roles.AdvancedCompletionist,
		"ROLE_GRANDMASTER":            cfg.Roles.Grandmaster,
		"ROLE_THE_DART_LORD":          cfg.Roles.TheDartLord,
		"ROLE_ALL_ACHIEVEMENTS":       cfg.Roles.AllAchievements,
	} {
		if id == "" {
			return nil, fmt.Errorf("%s is required", name)
		}
	}

	return cfg, nil
}

func splitIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

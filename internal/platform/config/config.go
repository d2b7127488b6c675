// Package config loads process configuration from the environment so main
// stays lean. A .env file is honored when present.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"geowarn/internal/geofence"
)

// Config is the full, immutable process configuration.
type Config struct {
	BotToken     string
	SuperAdminID int64

	// FeedChatID restricts which chat's location messages are ingested; 0
	// accepts any chat.
	FeedChatID int64
	WebAppURL  string

	GitHub GitHub

	RedisURL      string
	HTTPAddr      string
	StoreCapacity int
	Regions       []geofence.Region
}

// GitHub identifies the mirror target. A zero value disables mirroring.
type GitHub struct {
	Token string
	Repo  string // "owner/name"
	Path  string
}

// MirrorEnabled reports whether a mirror target is configured.
func (g GitHub) MirrorEnabled() bool {
	return g.Repo != ""
}

// defaultRegions is the built-in geofence table. Order matters: overlapping
// circles resolve to the earliest entry.
var defaultRegions = []geofence.Region{
	{ID: "tel-aviv", DisplayName: "Tel Aviv", CenterLat: 32.0809, CenterLon: 34.7806, RadiusKm: 7},
	{ID: "ramat-gan", DisplayName: "Ramat Gan", CenterLat: 32.0684, CenterLon: 34.8248, RadiusKm: 4},
	{ID: "givatayim", DisplayName: "Givatayim", CenterLat: 32.0723, CenterLon: 34.8125, RadiusKm: 2.5},
	{ID: "bnei-brak", DisplayName: "Bnei Brak", CenterLat: 32.0807, CenterLon: 34.8338, RadiusKm: 3},
	{ID: "holon", DisplayName: "Holon", CenterLat: 32.0167, CenterLon: 34.7792, RadiusKm: 4},
	{ID: "bat-yam", DisplayName: "Bat Yam", CenterLat: 32.0171, CenterLon: 34.7454, RadiusKm: 3},
	{ID: "herzliya", DisplayName: "Herzliya", CenterLat: 32.1663, CenterLon: 34.8433, RadiusKm: 5},
	{ID: "petah-tikva", DisplayName: "Petah Tikva", CenterLat: 32.0871, CenterLon: 34.8878, RadiusKm: 5},
}

// FromEnv builds the configuration. Missing credentials are fatal here, at
// startup, rather than surfacing mid-ingestion.
func FromEnv() (Config, error) {
	// Best effort: absence of a .env file is the normal production case.
	_ = godotenv.Load()

	cfg := Config{
		BotToken:  os.Getenv("BOT_TOKEN"),
		WebAppURL: os.Getenv("WEBAPP_URL"),
		RedisURL:  os.Getenv("REDIS_URL"),
		HTTPAddr:  envOr("HTTP_ADDR", ":8080"),
		GitHub: GitHub{
			Token: os.Getenv("GITHUB_TOKEN"),
			Repo:  os.Getenv("GITHUB_REPO"),
			Path:  envOr("GITHUB_FILE", "locations.json"),
		},
	}

	if cfg.BotToken == "" {
		return Config{}, errors.New("BOT_TOKEN is required")
	}

	superAdmin, err := envInt64("SUPER_ADMIN_ID")
	if err != nil {
		return Config{}, err
	}
	if superAdmin == 0 {
		return Config{}, errors.New("SUPER_ADMIN_ID is required")
	}
	cfg.SuperAdminID = superAdmin

	if cfg.GitHub.Repo != "" && cfg.GitHub.Token == "" {
		return Config{}, errors.New("GITHUB_TOKEN is required when GITHUB_REPO is set")
	}

	if cfg.FeedChatID, err = envInt64("FEED_CHAT_ID"); err != nil {
		return Config{}, err
	}

	capacity, err := envInt64("STORE_CAPACITY")
	if err != nil {
		return Config{}, err
	}
	cfg.StoreCapacity = int(capacity)

	cfg.Regions = defaultRegions
	if raw := os.Getenv("REGIONS"); raw != "" {
		var regions []geofence.Region
		if err := json.Unmarshal([]byte(raw), &regions); err != nil {
			return Config{}, fmt.Errorf("parse REGIONS: %w", err)
		}
		if len(regions) == 0 {
			return Config{}, errors.New("REGIONS must not be empty")
		}
		cfg.Regions = regions
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

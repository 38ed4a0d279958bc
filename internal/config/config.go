package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	BackendFirestore = "firestore"
	BackendMongo     = "mongo"
	BackendMemory    = "memory"
)

type Config struct {
	ServerAddress string
	Env           string

	StoreBackend            string
	FirebaseProjectID       string
	FirebaseCredentialsJSON string
	MongoURI                string
	MongoDB                 string
	DataDir                 string

	AdminEmails []string
	JWTSecret   string
	JWTIssuer   string
	JWTTTL      time.Duration

	CacheTTL  time.Duration
	CacheSize int

	SendGridAPIKey  string
	ReviewFromEmail string
	ReviewToEmail   string

	ScoringSchedule string
	MediaBucket     string
}

func Load() *Config {
	return &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Env:           getEnv("APP_ENV", "development"),

		StoreBackend:            strings.ToLower(getEnv("STORE_BACKEND", BackendFirestore)),
		FirebaseProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		FirebaseCredentialsJSON: os.Getenv("FIREBASE_CREDENTIALS_JSON"),
		MongoURI:                os.Getenv("MONGO_URI"),
		MongoDB:                 getEnv("MONGO_DB", "muso"),
		DataDir:                 getEnv("DATA_DIR", "./data"),

		AdminEmails: splitList(os.Getenv("ADMIN_EMAILS")),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTIssuer:   getEnv("JWT_ISSUER", "muso-admin"),
		JWTTTL:      getDuration("JWT_TTL", 12*time.Hour),

		CacheTTL:  getDuration("CACHE_TTL", 5*time.Minute),
		CacheSize: getInt("CACHE_SIZE", 1024),

		SendGridAPIKey:  os.Getenv("SENDGRID_API_KEY"),
		ReviewFromEmail: os.Getenv("REVIEW_FROM_EMAIL"),
		ReviewToEmail:   os.Getenv("REVIEW_TO_EMAIL"),

		ScoringSchedule: getEnv("SCORING_SCHEDULE", "*/30 * * * *"),
		MediaBucket:     os.Getenv("MEDIA_BUCKET"),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		zap.S().Warnw("invalid duration, using default", "key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		zap.S().Warnw("invalid integer, using default", "key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return n
}

// splitList reads a comma-separated env value, dropping blanks.
func splitList(raw string) []string {
	out := make([]string, 0)
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env       string
	Port      string
	DBURL     string
	RedisAddr string

	RPID          string
	RPDisplayName string
	RPOrigins     []string

	SigningKey         ed25519.PrivateKey
	AccessExpiryMin    int
	RefreshExpiryMin   int
	ChallengeExpiryMin int
	RevokeAllOnReuse   bool

	RetryMaxAttempts int
	RetryBackoffMs   int
	BreakerThreshold int
	BreakerCoolDown  time.Duration
}

func Load() *Config {
	return &Config{
		Env:       getEnv("ENV", "development"),
		Port:      getEnv("PORT", "8080"),
		DBURL:     mustGetEnv("DB_URL"),
		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),

		RPID:          mustGetEnv("RP_ID"),
		RPDisplayName: getEnv("RP_DISPLAY_NAME", "Passkey Auth"),
		RPOrigins:     getEnvAsSlice("RP_ORIGINS"),

		SigningKey:         mustGetSigningKey("JWT_SIGNING_SEED"),
		AccessExpiryMin:    getEnvAsInt("ACCESS_TOKEN_EXPIRY", 5),
		RefreshExpiryMin:   getEnvAsInt("REFRESH_TOKEN_EXPIRY", 1440),
		ChallengeExpiryMin: getEnvAsInt("CHALLENGE_EXPIRY", 5),
		RevokeAllOnReuse:   getEnvAsBool("REVOKE_ALL_ON_REUSE", false),

		RetryMaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBackoffMs:   getEnvAsInt("RETRY_BACKOFF_MS", 50),
		BreakerThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerCoolDown:  time.Duration(getEnvAsInt("BREAKER_COOLDOWN_SEC", 10)) * time.Second,
	}
}

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func mustGetEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	log.Fatalf("Missing required environment variable: %s", key)
	return ""
}

// mustGetSigningKey derives the Ed25519 signing key from a hex-encoded
// 32-byte seed. The service refuses to start without valid key material.
func mustGetSigningKey(key string) ed25519.PrivateKey {
	seed, err := hex.DecodeString(mustGetEnv(key))
	if err != nil {
		log.Fatalf("Invalid value for %s: not hex encoded", key)
	}
	if len(seed) != ed25519.SeedSize {
		log.Fatalf("Invalid value for %s: need %d bytes, got %d", key, ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed)
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		log.Printf("Invalid value for %s, using default %d", key, defaultVal)
		return defaultVal
	}
	return val
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Invalid value for %s, using default %t", key, defaultVal)
		return defaultVal
	}
	return val
}

func getEnvAsSlice(key string) []string {
	valStr := mustGetEnv(key)
	parts := strings.Split(valStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

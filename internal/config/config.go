// Package config loads application configuration from environment
// variables.  A .env file in the working directory is read first when
// present; real environment variables always win.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration required to boot the API.
// Optional subsystems (Redis, RabbitMQ) have their own loaders so they
// can be disabled without touching this struct.
type Config struct {
	Env            string // application environment (dev, test, prod)
	Port           string // HTTP port to listen on
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	AutoMigrate    bool   // apply the embedded schema on boot
	JWTSecret      string // secret used to sign access tokens
	AccessTTLMin   int    // access token lifetime in minutes
	RefreshTTLDays int    // refresh token lifetime in days
	BcryptCost     int    // bcrypt cost for password hashing
	AdminEmail     string // staff account ensured on boot (optional)
	AdminPassword  string // password for AdminEmail
	MediaDir       string // directory for uploaded play images
	MediaURL       string // URL prefix the media directory is served under
	MaxUploadBytes int64  // largest accepted image upload
}

// IsProd reports whether the service runs in production mode.
func (c Config) IsProd() bool {
	return strings.EqualFold(c.Env, "prod") || strings.EqualFold(c.Env, "production")
}

// Load reads configuration values from the environment.  Required
// variables are enforced by must() and missing values stop the process.
func Load() Config {
	// .env is a convenience for local runs; absence is not an error.
	_ = godotenv.Load()

	return Config{
		Env:            envStr("APP_ENV", "dev"),
		Port:           envStr("APP_PORT", "8080"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         must("DB_HOST"),
		DBPort:         envStr("DB_PORT", "3306"),
		DBName:         must("DB_NAME"),
		AutoMigrate:    envBool("DB_AUTO_MIGRATE", true),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     envInt("BCRYPT_COST", 10),
		AdminEmail:     os.Getenv("ADMIN_EMAIL"),
		AdminPassword:  os.Getenv("ADMIN_PASSWORD"),
		MediaDir:       envStr("MEDIA_DIR", "media"),
		MediaURL:       envStr("MEDIA_URL", "/media"),
		MaxUploadBytes: int64(envInt("MAX_UPLOAD_BYTES", 5<<20)),
	}
}

// must retrieves the value of a required environment variable.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the value into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

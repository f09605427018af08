package siteapi

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the backend. It is built once at
// startup (see ConfigFromEnv) and passed by injection into the components
// that consume it, so nothing re-reads the environment per request.
type Config struct {
	Addr        string // Listen address (default ":5001")
	Environment string // "development" or "production"
	Debug       bool   // Include error details in 500 responses

	FrontendURL string // SPA origin for CORS and post-login redirects

	SessionSecret string        // Required: cookie signing secret
	SessionTTL    time.Duration // Session lifetime (default 24h)
	SessionDBPath string        // SQLite path for the session store
	CookieSecure  bool          // Set true behind HTTPS

	GoogleClientID     string // OAuth client id
	GoogleClientSecret string // OAuth client secret
	GoogleCallbackURL  string // OAuth redirect URL registered with Google

	AllowedAdminEmails []string // Emails granted admin capabilities

	UploadDir        string   // Directory for uploaded files
	AllowedFileTypes []string // Accepted upload MIME types
	MaxFileSize      int64    // Upload size cap in bytes

	BlogDataFile string // JSON file holding the post collection

	GAPropertyID      string // Google Analytics property id
	GACredentialsJSON []byte // Service account key (JSON)
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":5001"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.FrontendURL == "" {
		c.FrontendURL = "http://localhost:3000"
	}
	c.FrontendURL = strings.TrimSuffix(c.FrontendURL, "/")
	if c.SessionTTL == 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.SessionDBPath == "" {
		c.SessionDBPath = "data/sessions.db"
	}
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	if len(c.AllowedFileTypes) == 0 {
		c.AllowedFileTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}
	}
	if c.MaxFileSize == 0 {
		c.MaxFileSize = 10 << 20 // 10MB
	}
	if c.BlogDataFile == "" {
		c.BlogDataFile = "data/blog-posts.json"
	}
}

// OAuthConfigured reports whether Google OAuth credentials are present.
// Without them every login attempt fails fast instead of crashing.
func (c *Config) OAuthConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// AnalyticsConfigured reports whether the analytics proxy can reach upstream.
func (c *Config) AnalyticsConfigured() bool {
	return c.GAPropertyID != "" && len(c.GACredentialsJSON) > 0
}

// IsAdminEmail tests membership in the admin allow-list. Comparison is
// case-insensitive since mailbox lookup of Google addresses is.
func (c *Config) IsAdminEmail(email string) bool {
	if email == "" {
		return false
	}
	for _, allowed := range c.AllowedAdminEmails {
		if strings.EqualFold(strings.TrimSpace(allowed), email) {
			return true
		}
	}
	return false
}

// ConfigFromEnv builds a Config from environment variables. Only
// SESSION_SECRET is strictly required; everything else has a default or
// degrades to a NotConfigured response at the affected endpoint.
func ConfigFromEnv() *Config {
	cfg := &Config{
		Addr:               listenAddr(),
		Environment:        EnvOr("ENVIRONMENT", "development"),
		FrontendURL:        EnvOr("FRONTEND_URL", "http://localhost:3000"),
		SessionSecret:      MustEnv("SESSION_SECRET"),
		SessionDBPath:      EnvOr("SESSION_DB_PATH", "data/sessions.db"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleCallbackURL:  os.Getenv("GOOGLE_CALLBACK_URL"),
		AllowedAdminEmails: SplitList(os.Getenv("ALLOWED_ADMIN_EMAILS")),
		UploadDir:          EnvOr("UPLOAD_DIR", "uploads"),
		AllowedFileTypes:   SplitList(os.Getenv("ALLOWED_FILE_TYPES")),
		BlogDataFile:       EnvOr("BLOG_DATA_FILE", "data/blog-posts.json"),
		GAPropertyID:       os.Getenv("GA_PROPERTY_ID"),
	}
	cfg.Debug = cfg.Environment == "development"
	cfg.CookieSecure = cfg.Environment == "production" ||
		strings.EqualFold(os.Getenv("COOKIE_SECURE"), "true")
	if v := os.Getenv("MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxFileSize = n
		}
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SessionTTL = d
		}
	}
	if blob := os.Getenv("GA_CREDENTIALS_JSON"); blob != "" {
		cfg.GACredentialsJSON = []byte(blob)
	} else if path := os.Getenv("GA_CREDENTIALS_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("analytics credentials file not readable: %v", err)
		} else {
			cfg.GACredentialsJSON = data
		}
	}
	cfg.setDefaults()
	return cfg
}

func listenAddr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":5001"
}

// SplitList splits a comma-separated env value, trimming whitespace and
// dropping empty entries.
func SplitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// MustEnv returns the value of the environment variable key, or fatally exits if empty.
func MustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("siteapi: required environment variable %s is not set", key)
	}
	return v
}

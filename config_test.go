package siteapi

import (
	"testing"
	"time"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"single", "a@example.com", []string{"a@example.com"}},
		{"multiple", "a@example.com,b@example.com", []string{"a@example.com", "b@example.com"}},
		{"whitespace", " a@example.com , b@example.com ", []string{"a@example.com", "b@example.com"}},
		{"empty entries", "a@example.com,,,b@example.com,", []string{"a@example.com", "b@example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitList(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitList(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("SplitList(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestIsAdminEmail(t *testing.T) {
	cfg := &Config{AllowedAdminEmails: []string{"Admin@Example.com", " second@example.com "}}

	tests := []struct {
		email string
		want  bool
	}{
		{"admin@example.com", true},
		{"ADMIN@EXAMPLE.COM", true},
		{"second@example.com", true},
		{"other@example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := cfg.IsAdminEmail(tt.email); got != tt.want {
			t.Errorf("IsAdminEmail(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.setDefaults()

	if cfg.Addr != ":5001" {
		t.Errorf("Addr = %q, want :5001", cfg.Addr)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("SessionTTL = %v, want 24h", cfg.SessionTTL)
	}
	if cfg.MaxFileSize != 10<<20 {
		t.Errorf("MaxFileSize = %d, want %d", cfg.MaxFileSize, 10<<20)
	}
	if len(cfg.AllowedFileTypes) == 0 {
		t.Errorf("AllowedFileTypes should default to the web image set")
	}
	if cfg.BlogDataFile == "" {
		t.Errorf("BlogDataFile should have a default")
	}
}

func TestConfigFrontendURLTrailingSlash(t *testing.T) {
	cfg := &Config{FrontendURL: "https://nordmedica.example/"}
	cfg.setDefaults()
	if cfg.FrontendURL != "https://nordmedica.example" {
		t.Errorf("FrontendURL = %q, want trailing slash stripped", cfg.FrontendURL)
	}
}

func TestOAuthConfigured(t *testing.T) {
	cfg := &Config{}
	if cfg.OAuthConfigured() {
		t.Fatal("empty config should not report OAuth configured")
	}
	cfg.GoogleClientID = "id"
	if cfg.OAuthConfigured() {
		t.Fatal("client id alone should not report OAuth configured")
	}
	cfg.GoogleClientSecret = "secret"
	if !cfg.OAuthConfigured() {
		t.Fatal("id and secret should report OAuth configured")
	}
}

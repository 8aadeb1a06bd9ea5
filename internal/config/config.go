package config

import (
	"errors"
	"os"
	"strings"
)

// Runtime holds the credentials and account set the daemon needs from the
// environment. Operational knobs (addresses, intervals) stay on flags.
type Runtime struct {
	APIBaseURL   string
	ClientID     string
	ClientSecret string
	Accounts     []string
}

func LoadRuntime() (Runtime, error) {
	cfg := Runtime{
		APIBaseURL:   getenvDefault("SOCIAL_API_BASE_URL", "https://api.social.example.com"),
		ClientID:     os.Getenv("SOCIAL_CLIENT_ID"),
		ClientSecret: os.Getenv("SOCIAL_CLIENT_SECRET"),
		Accounts:     splitList(os.Getenv("SOCIAL_ACCOUNTS")),
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return Runtime{}, errors.New("SOCIAL_CLIENT_ID and SOCIAL_CLIENT_SECRET must be set")
	}
	if len(cfg.Accounts) == 0 {
		return Runtime{}, errors.New("SOCIAL_ACCOUNTS must list at least one account id")
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

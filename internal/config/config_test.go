package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("LMS_API_URL", "")
	t.Setenv("DIGEST_WINDOW", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg := Load()
	assert.Equal(t, "http://localhost:5000/api", cfg.APIBaseURL)
	assert.Equal(t, time.Hour, cfg.DigestWindow)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
	assert.False(t, cfg.Production())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("LMS_API_URL", "https://lms.example.com/api/")
	t.Setenv("DIGEST_WINDOW", "0s")
	t.Setenv("RATE_LIMIT_PER_MIN", "5")
	t.Setenv("CHAT_RELAY", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg := Load()
	assert.True(t, cfg.Production())
	assert.Equal(t, "https://lms.example.com/api", cfg.APIBaseURL)
	assert.Equal(t, time.Duration(0), cfg.DigestWindow)
	assert.Equal(t, 5, cfg.RateLimitPerMin)
	assert.True(t, cfg.ChatRelay)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("SESSION_TTL", "soon")
	t.Setenv("RATE_LIMIT_PER_MIN", "many")
	t.Setenv("CHAT_RELAY", "maybe")

	cfg := Load()
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.False(t, cfg.ChatRelay)
}

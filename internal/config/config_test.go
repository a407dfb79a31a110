package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-uma-server/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := config.New()
	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "http://localhost:8080", c.GetBaseURL())
	require.Equal(t, time.Hour, c.GetDefaultAccessTokenExpiry())
	require.Equal(t, 7*24*time.Hour, c.GetDefaultRefreshTokenExpiry())
	require.Equal(t, time.Hour, c.GetTicketExpiry())
	require.Equal(t, config.StorageMemory, c.GetDatabaseDriver())
	require.False(t, c.GetRequirePKCE())
}

func TestOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("BASE_URL", "https://auth.example.com/")
	t.Setenv("TICKET_LIFETIME", "10m")
	t.Setenv("ACCESS_TOKEN_LIFETIME", "not-a-duration")
	t.Setenv("REQUIRE_PKCE", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	c := config.New()
	require.Equal(t, ":9000", c.GetPort())
	require.Equal(t, "https://auth.example.com", c.GetBaseURL())
	require.Equal(t, 10*time.Minute, c.GetTicketExpiry())
	require.Equal(t, time.Hour, c.GetDefaultAccessTokenExpiry())
	require.True(t, c.GetRequirePKCE())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://b.example.com"))
	require.False(t, c.GetAllowedOrigins().IsAllowedOrigin("https://c.example.com"))
}

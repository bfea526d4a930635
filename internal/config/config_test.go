package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebsocketURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:5050", WebsocketURL("http://localhost:5050"))
	assert.Equal(t, "wss://chat.example.com/api", WebsocketURL("https://chat.example.com/api"))
	assert.Equal(t, "ws://already", WebsocketURL("ws://already"))
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DMCHAT_API_URL", "https://chat.example.com/")
	t.Setenv("DMCHAT_WS_URL", "")
	t.Setenv("DMCHAT_HTTP_TIMEOUT_SEC", "3")
	t.Setenv("DMCHAT_SESSION_STORE", SessionStoreRedis)
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("JWT_EXPIRY_MIN", "5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://chat.example.com", cfg.Client.APIURL)
	assert.Equal(t, "wss://chat.example.com", cfg.Client.WSURL)
	assert.Equal(t, 3*time.Second, cfg.Client.HTTPTimeout)
	assert.Equal(t, SessionStoreRedis, cfg.Session.Store)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, 5*time.Minute, cfg.Devserver.TokenExpiry)
}

func TestLoadConfigExplicitWebsocketURL(t *testing.T) {
	t.Setenv("DMCHAT_API_URL", "http://127.0.0.1:9000")
	t.Setenv("DMCHAT_WS_URL", "ws://live.example.com/")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "ws://live.example.com", cfg.Client.WSURL)
}

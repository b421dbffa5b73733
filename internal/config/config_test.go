package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("TRIPDESK_GATEWAY_KEY", "sk_test_123")

	yamlContent := `
database:
  path: "test.db"
gateway:
  base_url: "https://api.gateway.test/v2"
  secret_key: "${TRIPDESK_GATEWAY_KEY}"
api:
  auth:
    jwt_secret: "secret"
notify:
  telegram:
    manager_chat_ids: [10, 20]
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "sk_test_123", cfg.Gateway.SecretKey)
	assert.Equal(t, 20*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, []string{"sales_partner"}, cfg.Gateway.DegradedModeStorefronts)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, 8081, cfg.API.GRPC.Port)
	assert.Equal(t, 5*time.Minute, cfg.Pricing.QuoteCacheTTL)
	assert.Equal(t, "payments.events", cfg.Broker.Queue)
	assert.Equal(t, []int64{10, 20}, cfg.Notify.Telegram.ManagerChatIDs)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		return Config{
			Database: DatabaseConfig{Path: "path"},
			Gateway:  GatewayConfig{BaseURL: "http://gw", SecretKey: "sk", Timeout: 10 * time.Second},
			API:      APIConfig{Auth: APIAuthConfig{JWTSecret: "jwt"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing db path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "missing gateway url", mutate: func(c *Config) { c.Gateway.BaseURL = "" }, wantErr: true},
		{name: "missing gateway key", mutate: func(c *Config) { c.Gateway.SecretKey = "" }, wantErr: true},
		{name: "timeout too long", mutate: func(c *Config) { c.Gateway.Timeout = 5 * time.Minute }, wantErr: true},
		{name: "timeout too short", mutate: func(c *Config) { c.Gateway.Timeout = time.Millisecond }, wantErr: true},
		{name: "missing jwt secret", mutate: func(c *Config) { c.API.Auth.JWTSecret = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDegradedModeAllowed(t *testing.T) {
	g := GatewayConfig{DegradedModeStorefronts: []string{"sales_partner"}}
	assert.True(t, g.DegradedModeAllowed("sales_partner"))
	assert.False(t, g.DegradedModeAllowed("user"))
	assert.False(t, GatewayConfig{}.DegradedModeAllowed("sales_partner"))
}

func TestApplyDefaultsKeepsExplicitEmptyStorefronts(t *testing.T) {
	cfg := Config{Gateway: GatewayConfig{DegradedModeStorefronts: []string{}}}
	cfg.applyDefaults()
	assert.Empty(t, cfg.Gateway.DegradedModeStorefronts)
}

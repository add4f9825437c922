package internal_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletop-relay/internal"
)

// TestConfig_Defaults 測試預設配置
func TestConfig_Defaults(t *testing.T) {
	config := internal.DefaultConfig()

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 10*time.Minute, config.Session.HibernationGrace.Std())
	assert.Equal(t, 60*time.Minute, config.Session.AbandonAfter.Std())
	assert.Equal(t, time.Minute, config.Session.SweepInterval.Std())
	assert.Equal(t, 256, config.Session.SendBuffer)
	assert.Equal(t, "info", config.Log.Level)
	assert.Equal(t, "text", config.Log.Format)
}

// TestLoadConfig 測試 YAML 載入與預設值補齊
func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantErr  bool
		validate func(t *testing.T, config *internal.Config)
	}{
		{
			name: "full config",
			yaml: `
server:
  port: 9090
  read_timeout: 5s
  write_timeout: 5s
session:
  hibernation_grace: 2m
  abandon_after: 30m
  sweep_interval: 10s
  send_buffer: 64
log:
  level: debug
  format: json
`,
			validate: func(t *testing.T, config *internal.Config) {
				assert.Equal(t, 9090, config.Server.Port)
				assert.Equal(t, 5*time.Second, config.Server.ReadTimeout.Std())
				assert.Equal(t, 2*time.Minute, config.Session.HibernationGrace.Std())
				assert.Equal(t, 30*time.Minute, config.Session.AbandonAfter.Std())
				assert.Equal(t, 64, config.Session.SendBuffer)
				assert.Equal(t, "debug", config.Log.Level)
				assert.Equal(t, "json", config.Log.Format)
			},
		},
		{
			name: "partial config falls back to defaults",
			yaml: `
server:
  port: 9090
`,
			validate: func(t *testing.T, config *internal.Config) {
				assert.Equal(t, 9090, config.Server.Port)
				assert.Equal(t, 10*time.Minute, config.Session.HibernationGrace.Std())
				assert.Equal(t, "info", config.Log.Level)
			},
		},
		{
			name:    "invalid duration",
			yaml:    "session:\n  hibernation_grace: 十分鐘\n",
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			yaml:    "server: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := internal.LoadConfig([]byte(tt.yaml))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validate(t, config)
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test basic config structure
func TestConfig_Structure(t *testing.T) {
	cfg := &Config{
		Platform: PlatformConfig{
			Org:          "c360",
			ID:           "test-platform",
			Type:         "vessel",
			Region:       "gulf_mexico",
			Capabilities: []string{"radar", "ctd"},
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
	}

	assert.Equal(t, "test-platform", cfg.Platform.ID)
	assert.Equal(t, "vessel", cfg.Platform.Type)
	assert.Contains(t, cfg.Platform.Capabilities, "radar")
}

// Test loading config from JSON file
func TestLoader_LoadJSON(t *testing.T) {
	// Create test config file
	testConfig := `{
		"platform": {
			"org": "c360",
			"id": "rv_walton_smith",
			"type": "vessel",
			"region": "gulf_mexico",
			"capabilities": ["radar", "ctd", "deployment"]
		},
		"nats": {
			"urls": ["nats://localhost:4222", "nats://localhost:4223"],
			"max_reconnects": 10,
			"reconnect_wait": "5s"
		},
		"transport": {
			"websocket": {"enabled": true, "listen_addr": ":9000"},
			"nats_transport": {"enabled": true, "request_subject": "gremlin.eval"}
		},
		"scripting": {
			"backend": "remote",
			"remote_subject": "eval.remote"
		}
	}`

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.json")
	err := os.WriteFile(configFile, []byte(testConfig), 0644)
	require.NoError(t, err)

	// Load config
	loader := NewLoader()
	cfg, err := loader.LoadFile(configFile)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Verify loaded values
	assert.Equal(t, "rv_walton_smith", cfg.Platform.ID)
	assert.Equal(t, "vessel", cfg.Platform.Type)
	assert.Equal(t, "gulf_mexico", cfg.Platform.Region)
	assert.Len(t, cfg.Platform.Capabilities, 3)
	assert.Len(t, cfg.NATS.URLs, 2)
	assert.Equal(t, 10, cfg.NATS.MaxReconnects)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait)
	assert.True(t, cfg.Transport.WebSocket.Enabled)
	assert.Equal(t, ":9000", cfg.Transport.WebSocket.ListenAddr)
	assert.True(t, cfg.Transport.NATS.Enabled)
	assert.Equal(t, "gremlin.eval", cfg.Transport.NATS.RequestSubject)
	assert.Equal(t, "remote", cfg.Scripting.Backend)
	assert.Equal(t, "eval.remote", cfg.Scripting.RemoteSubject)
}

// Test default values
func TestLoader_Defaults(t *testing.T) {
	// Minimal config with missing fields
	testConfig := `{
		"platform": {
			"org": "c360",
			"id": "test-platform",
			"type": "shore"
		}
	}`

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.json")
	err := os.WriteFile(configFile, []byte(testConfig), 0644)
	require.NoError(t, err)

	loader := NewLoader()
	cfg, err := loader.LoadFile(configFile)
	require.NoError(t, err)

	// Check defaults were applied
	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.NATS.URLs) // default URL
	assert.Equal(t, -1, cfg.NATS.MaxReconnects)                       // default infinite reconnects
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait)            // default wait
	assert.True(t, cfg.NATS.JetStream.Enabled)                        // default enabled

	// Processor/transport/scripting defaults
	assert.True(t, cfg.Transport.WebSocket.Enabled)
	assert.Equal(t, ":8182", cfg.Transport.WebSocket.ListenAddr)
	assert.Equal(t, "/gremlin", cfg.Transport.WebSocket.Path)
	assert.Equal(t, 64, cfg.Processor.ResultIterationBatchSize)
	assert.Equal(t, 30*time.Second, cfg.Processor.EvaluationTimeout)
	assert.Equal(t, "yaegi", cfg.Scripting.Backend)
}

// Test environment variable overrides
func TestLoader_EnvOverrides(t *testing.T) {
	// Set environment variables
	_ = os.Setenv("TRAVERSALPROC_PLATFORM_ID", "env-platform")
	_ = os.Setenv("TRAVERSALPROC_NATS_USERNAME", "testuser")
	_ = os.Setenv("TRAVERSALPROC_NATS_PASSWORD", "testpass")
	_ = os.Setenv("TRAVERSALPROC_SCRIPTING_BACKEND", "remote")
	defer func() {
		_ = os.Unsetenv("TRAVERSALPROC_PLATFORM_ID")
		_ = os.Unsetenv("TRAVERSALPROC_NATS_USERNAME")
		_ = os.Unsetenv("TRAVERSALPROC_NATS_PASSWORD")
		_ = os.Unsetenv("TRAVERSALPROC_SCRIPTING_BACKEND")
	}()

	// Base config
	testConfig := `{
		"platform": {
			"org": "c360",
			"id": "json-platform",
			"type": "vessel"
		}
	}`

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.json")
	err := os.WriteFile(configFile, []byte(testConfig), 0644)
	require.NoError(t, err)

	loader := NewLoader()
	cfg, err := loader.LoadFile(configFile)
	require.NoError(t, err)

	// Env vars should override JSON
	assert.Equal(t, "env-platform", cfg.Platform.ID)
	assert.Equal(t, "testuser", cfg.NATS.Username)
	assert.Equal(t, "testpass", cfg.NATS.Password)
	assert.Equal(t, "remote", cfg.Scripting.Backend)

	// JSON value should remain when no env override
	assert.Equal(t, "vessel", cfg.Platform.Type)
}

// Test validation
func TestLoader_Validation(t *testing.T) {
	tests := []struct {
		name      string
		config    string
		wantError string
	}{
		{
			name: "missing org",
			config: `{
				"platform": {
					"id": "platform1",
					"type": "vessel"
				}
			}`,
			wantError: "platform.org is required",
		},
		{
			name: "missing platform ID",
			config: `{
				"platform": {
					"org": "c360",
					"type": "vessel"
				}
			}`,
			wantError: "platform.id is required",
		},
		{
			name: "no transport enabled",
			config: `{
				"platform": {
					"org": "c360",
					"id": "test",
					"type": "vessel"
				},
				"transport": {
					"websocket": {"enabled": false},
					"nats_transport": {"enabled": false}
				}
			}`,
			wantError: "at least one of websocket or nats_transport must be enabled",
		},
		{
			name: "remote scripting without subject",
			config: `{
				"platform": {
					"org": "c360",
					"id": "test",
					"type": "vessel"
				},
				"scripting": {
					"backend": "remote"
				}
			}`,
			wantError: "scripting.remote_subject is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configFile := filepath.Join(tmpDir, "config.json")
			err := os.WriteFile(configFile, []byte(tt.config), 0644)
			require.NoError(t, err)

			loader := NewLoader()
			loader.EnableValidation(true)

			_, err = loader.LoadFile(configFile)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantError)
		})
	}
}

// Test merging configurations
func TestLoader_MergeConfigs(t *testing.T) {
	loader := NewLoader()

	base := &Config{
		Platform: PlatformConfig{
			Type:   "generic",
			Region: "gulf_mexico",
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
		},
		Processor: ProcessorConfig{
			ResultIterationBatchSize: 64,
		},
	}

	override := &Config{
		Platform: PlatformConfig{
			ID:           "test-platform",
			Type:         "vessel",
			Capabilities: []string{"radar"},
		},
		NATS: NATSConfig{
			MaxReconnects: 5,
			Username:      "testuser",
		},
		Scripting: ScriptingConfig{
			Backend: "remote",
		},
	}

	merged := loader.mergeConfigs(base, override)

	// Check merged values
	assert.Equal(t, "test-platform", merged.Platform.ID)             // from override
	assert.Equal(t, "vessel", merged.Platform.Type)                  // from override
	assert.Equal(t, "gulf_mexico", merged.Platform.Region)           // from base
	assert.Equal(t, []string{"radar"}, merged.Platform.Capabilities) // from override

	assert.Equal(t, []string{"nats://localhost:4222"}, merged.NATS.URLs) // from base
	assert.Equal(t, 5, merged.NATS.MaxReconnects)                        // from override
	assert.Equal(t, "testuser", merged.NATS.Username)                    // from override

	assert.Equal(t, 64, merged.Processor.ResultIterationBatchSize) // from base
	assert.Equal(t, "remote", merged.Scripting.Backend)            // from override
}

// Test saving configuration back to file
func TestConfig_Save(t *testing.T) {
	cfg := &Config{
		Platform: PlatformConfig{
			ID:           "save-test",
			Type:         "vessel",
			Region:       "atlantic",
			Capabilities: []string{"radar", "sonar"},
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://server1:4222", "nats://server2:4222"},
			MaxReconnects: 10,
		},
		Transport: TransportConfig{
			WebSocket: WebSocketConfig{Enabled: true, ListenAddr: ":8182"},
		},
		Scripting: ScriptingConfig{Backend: "yaegi"},
	}

	tmpDir := t.TempDir()
	saveFile := filepath.Join(tmpDir, "saved.json")

	err := cfg.SaveToFile(saveFile)
	require.NoError(t, err)

	// Load it back
	loader := NewLoader()
	loaded, err := loader.LoadFile(saveFile)
	require.NoError(t, err)

	assert.Equal(t, cfg.Platform.ID, loaded.Platform.ID)
	assert.Equal(t, cfg.Platform.Type, loaded.Platform.Type)
	assert.Equal(t, cfg.Platform.Region, loaded.Platform.Region)
	assert.Equal(t, cfg.Platform.Capabilities, loaded.Platform.Capabilities)
	assert.Equal(t, cfg.NATS.URLs, loaded.NATS.URLs)
	assert.Equal(t, cfg.NATS.MaxReconnects, loaded.NATS.MaxReconnects)
	assert.Equal(t, cfg.Transport.WebSocket.Enabled, loaded.Transport.WebSocket.Enabled)
	assert.Equal(t, cfg.Transport.WebSocket.ListenAddr, loaded.Transport.WebSocket.ListenAddr)
	assert.Equal(t, cfg.Scripting.Backend, loaded.Scripting.Backend)
}

package config

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/c360/traversalproc/natsclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigManager_PatternMatching(t *testing.T) {
	// Create a minimal config
	cfg := &Config{}

	// Create a test NATS client
	client := natsclient.NewTestClient(t, natsclient.WithJetStream())
	// TestClient uses t.Cleanup() automatically

	// Create Manager
	cm, err := NewConfigManager(cfg, client.Client, nil)
	require.NoError(t, err)
	require.NotNil(t, cm)

	tests := []struct {
		name     string
		key      string
		pattern  string
		expected bool
	}{
		{"exact match", "processor", "processor", true},
		{"wildcard suffix all transport", "transport.websocket", "transport.*", true},
		{"exact match scripting", "scripting", "scripting", true},
		{"wildcard suffix nats_transport", "transport.nats_transport", "transport.*", true},
		{"wildcard suffix no match", "scripting", "transport.*", false},
		{"no match different section", "processor", "transport.*", false},
		{"no match wrong exact", "processor", "scripting", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cm.matchesPattern(tt.key, tt.pattern)
			assert.Equal(t, tt.expected, result, "pattern %s matching key %s", tt.pattern, tt.key)
		})
	}
}

func TestConfigManager_Subscriptions(t *testing.T) {
	// Create a test config
	cfg := &Config{
		Transport: TransportConfig{
			WebSocket: WebSocketConfig{Enabled: true, ListenAddr: ":8182"},
		},
		Scripting: ScriptingConfig{
			Backend: "yaegi",
		},
	}

	// Create a test NATS client
	client := natsclient.NewTestClient(t, natsclient.WithJetStream())
	// TestClient uses t.Cleanup() automatically

	// Create Manager
	cm, err := NewConfigManager(cfg, client.Client, nil)
	require.NoError(t, err)

	// Start Manager
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err = cm.Start(ctx)
	require.NoError(t, err)
	defer cm.Stop(5 * time.Second)

	// Subscribe to transport changes
	transportUpdates := cm.OnChange("transport.*")
	require.NotNil(t, transportUpdates)

	// Subscribe to scripting changes
	scriptingUpdates := cm.OnChange("scripting")
	require.NotNil(t, scriptingUpdates)

	// Should receive initial config immediately
	select {
	case update := <-transportUpdates:
		assert.Equal(t, "transport.*", update.Path)
		assert.NotNil(t, update.Config)
		currentCfg := update.Config.Get()
		assert.True(t, currentCfg.Transport.WebSocket.Enabled)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for initial transport config")
	}

	select {
	case update := <-scriptingUpdates:
		assert.Equal(t, "scripting", update.Path)
		assert.NotNil(t, update.Config)
		currentCfg := update.Config.Get()
		assert.Equal(t, "yaegi", currentCfg.Scripting.Backend)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for initial scripting config")
	}
}

func TestConfigManager_KVUpdates(t *testing.T) {
	// Skip if not using testcontainers
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Create initial config with required fields
	cfg := &Config{
		Platform: PlatformConfig{
			Org:  "c360",
			ID:   "test-platform",
			Type: "test",
		},
		Transport: TransportConfig{WebSocket: WebSocketConfig{Enabled: true}},
		Processor: ProcessorConfig{
			ResultIterationBatchSize: 64,
		},
	}

	// Create a test NATS client with real NATS
	client := natsclient.NewTestClient(t, natsclient.WithJetStream())
	// TestClient uses t.Cleanup() automatically

	// Create Manager
	cm, err := NewConfigManager(cfg, client.Client, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Push initial config to KV before starting watcher
	err = cm.PushToKV(ctx)
	require.NoError(t, err)

	// Start Manager
	// This will detect existing KV and sync from it
	err = cm.Start(ctx)
	require.NoError(t, err)
	defer cm.Stop(5 * time.Second)

	// Subscribe to processor updates AFTER starting
	// OnChange will send current config immediately
	updates := cm.OnChange("processor")

	// Should receive initial config from OnChange
	select {
	case <-updates:
		// Got initial config from OnChange
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for initial config from OnChange")
	}

	// Update config via KV
	newConfig := json.RawMessage(`{"result_iteration_batch_size": 128}`)
	_, err = cm.kv.Put(ctx, "processor", newConfig)
	require.NoError(t, err)

	// Should receive update
	select {
	case update := <-updates:
		assert.Equal(t, "processor", update.Path)
		currentCfg := update.Config.Get()

		// Verify the config was updated
		assert.Equal(t, 128, currentCfg.Processor.ResultIterationBatchSize)

	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for config update")
	}
}

func TestConfigManager_PushToKV(t *testing.T) {
	// Create a config to push
	cfg := &Config{
		Platform: PlatformConfig{
			Org: "test-org",
			ID:  "test-id",
		},
		Transport: TransportConfig{
			WebSocket: WebSocketConfig{Enabled: true, ListenAddr: ":8182"},
		},
		Scripting: ScriptingConfig{
			Backend: "remote",
		},
	}

	// Create test NATS client with JetStream enabled
	client := natsclient.NewTestClient(t, natsclient.WithJetStream())
	// TestClient uses t.Cleanup() automatically

	// Create Manager
	cm, err := NewConfigManager(cfg, client.Client, nil)
	require.NoError(t, err)

	ctx := context.Background()

	// Push config to KV
	err = cm.PushToKV(ctx)
	require.NoError(t, err)

	// Verify transport was pushed
	entry, err := cm.kv.Get(ctx, "transport")
	require.NoError(t, err)
	var transportConfig TransportConfig
	err = json.Unmarshal(entry.Value(), &transportConfig)
	require.NoError(t, err)
	assert.True(t, transportConfig.WebSocket.Enabled)
	assert.Equal(t, ":8182", transportConfig.WebSocket.ListenAddr)

	// Verify scripting was pushed
	entry, err = cm.kv.Get(ctx, "scripting")
	require.NoError(t, err)
	var scriptingConfig ScriptingConfig
	err = json.Unmarshal(entry.Value(), &scriptingConfig)
	require.NoError(t, err)
	assert.Equal(t, "remote", scriptingConfig.Backend)

	// Verify platform was pushed
	entry, err = cm.kv.Get(ctx, "platform")
	require.NoError(t, err)

	var platformConfig PlatformConfig
	err = json.Unmarshal(entry.Value(), &platformConfig)
	require.NoError(t, err)
	assert.Equal(t, "test-org", platformConfig.Org)
	assert.Equal(t, "test-id", platformConfig.ID)
}

func TestConfigManager_MultipleSubscribers(t *testing.T) {
	cfg := &Config{}

	client := natsclient.NewTestClient(t, natsclient.WithJetStream())
	// TestClient uses t.Cleanup() automatically

	cm, err := NewConfigManager(cfg, client.Client, nil)
	require.NoError(t, err)

	// Create multiple subscribers for the same pattern
	sub1 := cm.OnChange("transport.*")
	sub2 := cm.OnChange("transport.*")
	sub3 := cm.OnChange("processor") // Exact match

	// All should receive initial config
	for i, sub := range []<-chan Update{sub1, sub2, sub3} {
		select {
		case update := <-sub:
			assert.NotNil(t, update.Config, "subscriber %d", i+1)
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("timeout waiting for initial config on subscriber %d", i+1)
		}
	}
}

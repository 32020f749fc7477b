package config

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/c360/traversalproc/natsclient"
)

type ManagerIntegrationSuite struct {
	suite.Suite
	testClient    *natsclient.TestClient
	natsClient    *natsclient.Client
	configManager *Manager
	kvStore       *natsclient.KVStore
	ctx           context.Context
	cancel        context.CancelFunc
}

func (s *ManagerIntegrationSuite) SetupSuite() {
	s.testClient = natsclient.NewTestClient(s.T(),
		natsclient.WithJetStream(),
		natsclient.WithKV())
	s.natsClient = s.testClient.Client
}

func (s *ManagerIntegrationSuite) SetupTest() {
	// Create base config with required fields
	baseConfig := &Config{
		Platform: PlatformConfig{
			Org:  "c360",
			ID:   "integration-test",
			Type: "test",
		},
		Transport: TransportConfig{WebSocket: WebSocketConfig{Enabled: true}},
	}

	// Create Manager
	var err error
	s.configManager, err = NewConfigManager(baseConfig, s.natsClient, nil)
	s.Require().NoError(err)

	// Create context for test
	s.ctx, s.cancel = context.WithCancel(context.Background())

	// Start watching
	err = s.configManager.Start(s.ctx)
	s.Require().NoError(err)

	// Get KVStore for direct KV operations
	s.kvStore = s.configManager.kvStore // Use the same KVStore instance

	// Give watcher time to initialize
	time.Sleep(50 * time.Millisecond)
}

func (s *ManagerIntegrationSuite) TearDownTest() {
	_ = s.configManager.Stop(5 * time.Second)
	s.cancel()
}

func (s *ManagerIntegrationSuite) TestJSONOnlyUpdates() {
	// Subscribe to transport updates
	updates := s.configManager.OnChange("transport.*")

	// With UpdatesOnly, we should get initial config from OnChange
	// but no replay from watcher
	select {
	case <-updates:
		// Expected - OnChange sends initial config
	case <-time.After(100 * time.Millisecond):
		s.Fail("No initial config received from OnChange")
	}

	// 1. Write JSON transport config - should work
	wsConfig := WebSocketConfig{Enabled: true, ListenAddr: ":9090", Path: "/metrics"}
	configJSON, _ := json.Marshal(TransportConfig{WebSocket: wsConfig})
	_, err := s.kvStore.Put(s.ctx, "transport.websocket", configJSON)
	s.Require().NoError(err)

	// 2. Wait for update via channel
	select {
	case update := <-updates:
		s.Equal("transport.websocket", update.Path) // Should be exact key, not pattern
		cfg := update.Config.Get()
		s.T().Logf("Transport config: %+v", cfg.Transport)
	case <-time.After(500 * time.Millisecond):
		s.Fail("No config update received")
	}

	// 3. Try property-level update - should be ignored
	s.T().Log("Writing property-level key transport.websocket.enabled")
	_, err = s.kvStore.Put(s.ctx, "transport.websocket.enabled", []byte("false"))
	s.Require().NoError(err)

	// 4. Verify no update received (property-level ignored)
	select {
	case update := <-updates:
		s.T().Logf("Unexpected update received for key: %s", update.Path)
		s.Fail("Should not receive update for property-level key")
	case <-time.After(200 * time.Millisecond):
		// Expected - no update
		s.T().Log("Good: No update received for property-level key")
	}

	// 5. Update with full JSON again - should work
	wsConfig.Enabled = false
	configJSON, _ = json.Marshal(TransportConfig{WebSocket: wsConfig, NATS: NATSTransportConfig{Enabled: true}})
	_, err = s.kvStore.Put(s.ctx, "transport.websocket", configJSON)
	s.Require().NoError(err)

	// 6. Should receive update for JSON change
	select {
	case update := <-updates:
		cfg := update.Config.Get()
		s.False(cfg.Transport.WebSocket.Enabled)
	case <-time.After(500 * time.Millisecond):
		s.Fail("Should receive update for JSON config change")
	}
}

func (s *ManagerIntegrationSuite) TestChannelSubscriptions() {
	// Subscribe to different patterns
	transportUpdates := s.configManager.OnChange("transport.*")
	scriptingUpdates := s.configManager.OnChange("scripting")
	specificTransport := s.configManager.OnChange("transport.websocket")

	// OnChange sends initial config, drain those (expecting up to 3)
	timeout := time.After(300 * time.Millisecond)
	drained := 0
	for drained < 3 {
		select {
		case <-transportUpdates:
			drained++
		case <-scriptingUpdates:
			drained++
		case <-specificTransport:
			drained++
		case <-timeout:
			// No more initial configs to drain
			drained = 3
		}
	}

	// Update transport
	configJSON, _ := json.Marshal(TransportConfig{WebSocket: WebSocketConfig{Enabled: true}})
	_, err := s.kvStore.Put(s.ctx, "transport.websocket", configJSON)
	s.Require().NoError(err)

	// Transport channels should receive update
	received := 0
	timeout2 := time.After(500 * time.Millisecond)

	for received < 2 {
		select {
		case <-transportUpdates:
			received++
		case <-specificTransport:
			received++
		case <-scriptingUpdates:
			s.Fail("Scripting channel should not receive transport update")
		case <-timeout2:
			s.Fail("Timeout waiting for transport updates")
			return
		}
	}

	s.Equal(2, received, "Should receive updates on both transport channels")

	// Scripting channel should NOT have received update
	select {
	case <-scriptingUpdates:
		s.Fail("Scripting channel should not receive transport update")
	case <-time.After(50 * time.Millisecond):
		// Expected - no update on scripting channel
	}
}

func (s *ManagerIntegrationSuite) TestConcurrentKVUpdates() {
	// Test that Manager handles concurrent KV updates gracefully
	updates := s.configManager.OnChange("transport.*")

	// Write multiple transport sections concurrently
	keys := []string{"transport.websocket", "transport.nats_transport"}
	done := make(chan bool, len(keys))

	for _, key := range keys {
		go func(k string) {
			configJSON, _ := json.Marshal(map[string]any{"enabled": true})
			_, err := s.kvStore.Put(s.ctx, k, configJSON)
			s.NoError(err)
			done <- true
		}(key)
	}

	// Wait for all writes to complete
	for i := 0; i < len(keys); i++ {
		<-done
	}

	// Should receive updates for all keys written (order may vary)
	receivedKeys := make(map[string]bool)
	timeout := time.After(1 * time.Second)

	for len(receivedKeys) < len(keys) {
		select {
		case update := <-updates:
			receivedKeys[update.Path] = true
		case <-timeout:
			s.Failf("Timeout waiting for all transport updates", "Received: %v", receivedKeys)
			return
		}
	}

	// Verify all keys were received
	for _, key := range keys {
		s.True(receivedKeys[key], "Should have received update for "+key)
	}
}

func (s *ManagerIntegrationSuite) TestCompleteFlow_KVToService() {
	// Test complete flow: KV → Manager → Config update → visibility

	// 1. Subscribe to updates
	updates := s.configManager.OnChange("processor")

	// OnChange sends initial config, drain it
	select {
	case <-updates:
		// Expected - OnChange sends initial config
	case <-time.After(100 * time.Millisecond):
		// May not receive if no existing config
	}

	// 2. Write processor config to KV
	procConfig := ProcessorConfig{ResultIterationBatchSize: 128, EvaluationTimeout: 10 * time.Second}
	configJSON, _ := json.Marshal(procConfig)
	_, err := s.kvStore.Put(s.ctx, "processor", configJSON)
	s.Require().NoError(err)

	// 3. Verify update received via channel
	select {
	case <-updates:
		// 4. Verify config is accessible via GetConfig()
		currentConfig := s.configManager.GetConfig()
		cfg := currentConfig.Get()

		s.Equal(128, cfg.Processor.ResultIterationBatchSize)
		s.Equal(10*time.Second, cfg.Processor.EvaluationTimeout)

	case <-time.After(500 * time.Millisecond):
		s.Fail("No config update received")
	}

	// 5. Update processor config again
	procConfig.ResultIterationBatchSize = 256
	configJSON, _ = json.Marshal(procConfig)
	_, err = s.kvStore.Put(s.ctx, "processor", configJSON)
	s.Require().NoError(err)

	// 6. Should receive update for the second write
	select {
	case <-updates:
		currentConfig := s.configManager.GetConfig()
		cfg := currentConfig.Get()
		s.Equal(256, cfg.Processor.ResultIterationBatchSize)
	case <-time.After(500 * time.Millisecond):
		s.Fail("No update received for second write")
	}
}

func (s *ManagerIntegrationSuite) TestKVStore_OptimisticLocking() {
	// Test that KVStore's CAS operations prevent lost updates

	// Create initial config
	configJSON, _ := json.Marshal(ScriptingConfig{Backend: "yaegi"})
	rev1, err := s.kvStore.Put(s.ctx, "scripting", configJSON)
	s.Require().NoError(err)
	s.Greater(rev1, uint64(0))

	// Get current state
	entry, err := s.kvStore.Get(s.ctx, "scripting")
	s.Require().NoError(err)
	s.Equal(rev1, entry.Revision)

	// Simulate concurrent update (someone else changes it)
	configJSON, _ = json.Marshal(ScriptingConfig{Backend: "remote", RemoteSubject: "eval.remote"})
	rev2, err := s.kvStore.Put(s.ctx, "scripting", configJSON)
	s.Require().NoError(err)
	s.Greater(rev2, rev1)

	// Try to update with old revision (should fail)
	configJSON, _ = json.Marshal(ScriptingConfig{Backend: "remote", RemoteSubject: "eval.other"})
	_, err = s.kvStore.Update(s.ctx, "scripting", configJSON, rev1)
	s.Error(err)
	s.True(natsclient.IsKVConflictError(err), "Should be a revision mismatch error")

	// Update with correct revision (should succeed)
	_, err = s.kvStore.Update(s.ctx, "scripting", configJSON, rev2)
	s.NoError(err)
}

func TestManagerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	suite.Run(t, new(ManagerIntegrationSuite))
}

package infra

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
)

// mockProcessManager is a test double for ProcessManager
type mockProcessManager struct {
	runningPIDs map[int]bool
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		runningPIDs: make(map[int]bool),
	}
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

func (m *mockProcessManager) SetRunning(pid int, running bool) {
	m.runningPIDs[pid] = running
}

// changeRecorder collects store deltas delivered to a listener
type changeRecorder struct {
	mu      sync.Mutex
	batches []domain.Changes
}

func (r *changeRecorder) listen(changes domain.Changes) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, changes)
}

func (r *changeRecorder) all() []domain.Changes {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Changes(nil), r.batches...)
}

// newTestStore opens an encrypted store in a temp directory.
func newTestStore(t *testing.T) (*EncryptedStore, string, []byte) {
	t.Helper()
	dataDir := t.TempDir()
	key, err := GenerateKey()
	require.NoError(t, err)

	s, err := NewEncryptedStore(dataDir, key, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s, dataDir, key
}

// Ensure mockProcessManager implements domain.ProcessManager
var _ domain.ProcessManager = (*mockProcessManager)(nil)

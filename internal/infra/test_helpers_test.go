package infra

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
)

// mockProcessManager is a test double for ProcessManager
type mockProcessManager struct {
	runningPIDs map[int]bool
	killedPIDs  []int
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		runningPIDs: make(map[int]bool),
	}
}

func (m *mockProcessManager) Kill(pid int) error {
	m.killedPIDs = append(m.killedPIDs, pid)
	delete(m.runningPIDs, pid)
	return nil
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

// Ensure mockProcessManager implements domain.ProcessManager
var _ domain.ProcessManager = (*mockProcessManager)(nil)

func newTestFileStore(t *testing.T, dir string) *FileStore {
	t.Helper()
	store, err := NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func blockRule(id int, d string) domain.Rule {
	return domain.Rule{
		ID:       id,
		Priority: 1,
		Condition: domain.RuleCondition{
			URLFilter:      domain.DomainURLFilter(d),
			RequestDomains: []string{d},
			ResourceTypes:  []domain.ResourceType{domain.ResourceMainFrame},
		},
		Action: domain.RuleAction{Type: domain.ActionRedirect, RedirectPath: DefaultPlaceholderPath},
	}
}

func nopLogger() *zap.Logger {
	return zap.NewNop()
}

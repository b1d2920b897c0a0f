package internal

import (
	"sync"
)

// CleanupManager tracks resources and ensures ordered cleanup in LIFO order.
type CleanupManager struct {
	mu     sync.Mutex
	writer Writer
	funcs  []cleanupFunc
}

type cleanupFunc struct {
	name string
	fn   func() error
}

// NewCleanupManager creates a cleanup manager that reports failures through
// the provided Writer.
func NewCleanupManager(w Writer) *CleanupManager {
	return &CleanupManager{writer: w}
}

// Add registers a cleanup function. Functions are executed in LIFO order
// (last added, first executed) to ensure proper cleanup sequencing.
func (m *CleanupManager) Add(name string, fn func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append([]cleanupFunc{{name, fn}}, m.funcs...)
}

// Execute runs all cleanup functions in reverse order (LIFO), reporting any errors.
// This method always completes all cleanup operations, even if some fail.
func (m *CleanupManager) Execute() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cleanup := range m.funcs {
		if err := cleanup.fn(); err != nil {
			m.writer.Warningf("cleanup failed for %s: %v", cleanup.name, err)
		}
	}
}

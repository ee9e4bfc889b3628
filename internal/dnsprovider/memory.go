package dnsprovider

import (
	"context"
	"sync"

	"github.com/thebronway/domain-manager/internal/domain"
	"github.com/thebronway/domain-manager/pkg/logger"
)

// Memory is an in-process record store used in demo mode, where no real
// DNS backend is reachable.
type Memory struct {
	mu      sync.Mutex
	records map[string]string
	log     *logger.Logger
}

// NewMemory builds a demo provider pre-seeded with records.
func NewMemory(seed map[string]string) *Memory {
	records := make(map[string]string, len(seed))
	for k, v := range seed {
		records[k] = v
	}
	return &Memory{records: records, log: logger.GetLogger()}
}

// GetRecord returns the stored value for the domain's A record.
func (m *Memory) GetRecord(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.records[name]
	if !ok {
		return "", domain.ErrRecordNotFound
	}
	return v, nil
}

// SetRecord stores the new value.
func (m *Memory) SetRecord(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.Info("DEMO: pretending to update DNS record", "domain", name, "value", value)
	m.records[name] = value
	return nil
}

// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package runstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/conveyor-foundation/conveyor/lib/settings"
)

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	runs map[string]map[string]settings.Settings
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{runs: make(map[string]map[string]settings.Settings)}
}

// Publish implements Store. The mapping is cloned on the way in so the
// caller cannot mutate published state afterwards.
func (m *Memory) Publish(_ context.Context, runID, stepID string, mapping settings.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	steps, exists := m.runs[runID]
	if !exists {
		steps = make(map[string]settings.Settings)
		m.runs[runID] = steps
	}
	if _, exists := steps[stepID]; exists {
		return fmt.Errorf("%w: run %q step %q", ErrAlreadyPublished, runID, stepID)
	}
	steps[stepID] = mapping.Clone()
	return nil
}

// Read implements Store. The returned mapping is a copy.
func (m *Memory) Read(_ context.Context, runID, stepID string) (settings.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mapping, exists := m.runs[runID][stepID]
	if !exists {
		return nil, fmt.Errorf("%w: run %q step %q", ErrNotFound, runID, stepID)
	}
	return mapping.Clone(), nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, runID)
	return nil
}

// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Entry is one journal line: a single attempt of a single step, or
// the record of a step being skipped. Entries are appended as JSON
// lines so a crashed run still leaves a readable trail.
type Entry struct {
	Time     time.Time `json:"time"`
	Chain    string    `json:"chain"`
	RunID    string    `json:"run_id"`
	StepID   string    `json:"step"`
	Attempt  int       `json:"attempt,omitempty"`
	Status   Status    `json:"status"`
	Duration int64     `json:"duration_ms,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Journal appends run entries to a writer, one JSON object per line.
// Safe for concurrent use.
type Journal struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

// NewJournal returns a Journal writing to w.
func NewJournal(w io.Writer) *Journal {
	return &Journal{encoder: json.NewEncoder(w)}
}

// Record appends one entry.
func (j *Journal) Record(entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.encoder.Encode(entry)
}

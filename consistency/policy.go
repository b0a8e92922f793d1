/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package consistency

import "sync"

// TableLevels overrides the process-wide defaults for one table.
type TableLevels struct {
	Read  Level `yaml:"read,omitempty"`
	Write Level `yaml:"write,omitempty"`
}

// Policy holds the process-wide default read and write levels together with
// per-table overrides. It is read-mostly and safe for concurrent use.
type Policy struct {
	mu           sync.RWMutex
	defaultRead  Level
	defaultWrite Level
	tables       map[string]TableLevels
}

// NewPolicy builds a policy. Unset defaults fall back to One.
func NewPolicy(defaultRead, defaultWrite Level) *Policy {
	if !defaultRead.IsSet() {
		defaultRead = One
	}
	if !defaultWrite.IsSet() {
		defaultWrite = One
	}
	return &Policy{
		defaultRead:  defaultRead,
		defaultWrite: defaultWrite,
		tables:       make(map[string]TableLevels),
	}
}

// DefaultPolicy returns a policy reading and writing at One.
func DefaultPolicy() *Policy {
	return NewPolicy(One, One)
}

// SetTableLevels registers overrides for table. Unset fields keep the defaults.
func (p *Policy) SetTableLevels(table string, levels TableLevels) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tables[table] = levels
}

// DefaultReadLevel returns the process-wide read level.
func (p *Policy) DefaultReadLevel() Level {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaultRead
}

// DefaultWriteLevel returns the process-wide write level.
func (p *Policy) DefaultWriteLevel() Level {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaultWrite
}

// ReadLevelFor resolves the read level for table.
func (p *Policy) ReadLevelFor(table string) Level {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if levels, ok := p.tables[table]; ok && levels.Read.IsSet() {
		return levels.Read
	}
	return p.defaultRead
}

// WriteLevelFor resolves the write level for table.
func (p *Policy) WriteLevelFor(table string) Level {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if levels, ok := p.tables[table]; ok && levels.Write.IsSet() {
		return levels.Write
	}
	return p.defaultWrite
}

// Tables returns a copy of the per-table overrides.
func (p *Policy) Tables() map[string]TableLevels {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]TableLevels, len(p.tables))
	for k, v := range p.tables {
		out[k] = v
	}
	return out
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import "sync"

// KeyStore remembers the verified admin key so a restarted console view can
// resume without prompting. Implementations must never write the key to disk.
type KeyStore interface {
	Load() string
	Save(key string)
	Clear()
}

// MemoryKeyStore holds the key for the lifetime of the process only.
type MemoryKeyStore struct {
	mu  sync.Mutex
	key string
}

// NewMemoryKeyStore returns an empty store.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{}
}

// Load returns the stored key or "".
func (s *MemoryKeyStore) Load() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Save stores key.
func (s *MemoryKeyStore) Save(key string) {
	s.mu.Lock()
	s.key = key
	s.mu.Unlock()
}

// Clear forgets the key.
func (s *MemoryKeyStore) Clear() {
	s.mu.Lock()
	s.key = ""
	s.mu.Unlock()
}

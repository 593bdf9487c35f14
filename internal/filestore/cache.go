// Package filestore resolves the bytes of session files from memory, the
// database or a secondary provider.
package filestore

import (
	"sync"
)

// SessionCache keeps uploaded bytes per session. A session's entry is created
// on first Put and reclaimed by Drop.
type SessionCache struct {
	mu       sync.RWMutex
	sessions map[string]map[string][]byte
}

func NewSessionCache() *SessionCache {
	return &SessionCache{sessions: make(map[string]map[string][]byte)}
}

func (c *SessionCache) Put(sessionID, fileID string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	files, ok := c.sessions[sessionID]
	if !ok {
		files = make(map[string][]byte)
		c.sessions[sessionID] = files
	}
	files[fileID] = data
}

func (c *SessionCache) Get(sessionID, fileID string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, ok := c.sessions[sessionID][fileID]
	return data, ok && len(data) > 0
}

// Drop forgets every file of the session.
func (c *SessionCache) Drop(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
}

func (c *SessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

package client

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrCacheMiss is returned when no snapshot is stored for the key.
var ErrCacheMiss = errors.New("client: cache miss")

// Snapshot is the locally persisted view of a mining session. It survives
// dashboard reloads so counters never appear to move backwards.
type Snapshot struct {
	UserID         string    `json:"user_id"`
	SessionID      string    `json:"session_id"`
	Hashrate       float64   `json:"hashrate"`
	SharesAccepted int64     `json:"shares_accepted"`
	SharesRejected int64     `json:"shares_rejected"`
	Rewards        float64   `json:"rewards"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Cache persists snapshots keyed by user and session.
type Cache interface {
	Load(userID, sessionID string) (*Snapshot, error)
	Store(snap *Snapshot) error
}

// MemoryCache is the test double and the fallback when no cache dir is
// writable.
type MemoryCache struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{snaps: make(map[string]Snapshot)}
}

func cacheKey(userID, sessionID string) string { return userID + ":" + sessionID }

func (c *MemoryCache) Load(userID, sessionID string) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[cacheKey(userID, sessionID)]
	if !ok {
		return nil, ErrCacheMiss
	}
	cp := snap
	return &cp, nil
}

func (c *MemoryCache) Store(snap *Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[cacheKey(snap.UserID, snap.SessionID)] = *snap
	return nil
}

// FileCache writes one JSON file per user/session pair under dir.
type FileCache struct {
	dir string
	mu  sync.Mutex
}

func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir}, nil
}

func (c *FileCache) path(userID, sessionID string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(cacheKey(userID, sessionID))
	return filepath.Join(c.dir, safe+".json")
}

func (c *FileCache) Load(userID, sessionID string) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := os.ReadFile(c.path(userID, sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// a corrupt cache file is treated as a miss, not a fatal error
		return nil, ErrCacheMiss
	}
	return &snap, nil
}

func (c *FileCache) Store(snap *Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	tmp := c.path(snap.UserID, snap.SessionID) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path(snap.UserID, snap.SessionID))
}

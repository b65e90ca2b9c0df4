package tieredcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// tierStore holds one tier's entries. All mutation happens under mu so
// store/delete/prune on the same tier never interleave destructively.
type tierStore struct {
	tier    Tier
	dir     string // "" = memory only
	mu      sync.Mutex
	entries map[string]Entry
}

func newTierStore(tier Tier, root string) (*tierStore, error) {
	ts := &tierStore{tier: tier, entries: make(map[string]Entry)}
	if root == "" {
		return ts, nil
	}
	ts.dir = filepath.Join(root, string(tier))
	if err := os.MkdirAll(ts.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir for %s: %w", tier, err)
	}
	if err := ts.load(); err != nil {
		return nil, err
	}
	return ts, nil
}

// load reads persisted entries back into memory. Unreadable files are skipped
// rather than failing the whole cache open.
func (ts *tierStore) load() error {
	files, err := os.ReadDir(ts.dir)
	if err != nil {
		return fmt.Errorf("read cache dir for %s: %w", ts.tier, err)
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(ts.dir, f.Name()))
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil || entry.Key == "" {
			continue
		}
		ts.entries[entry.Key] = entry
	}
	return nil
}

func (ts *tierStore) put(entry Entry) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.entries[entry.Key] = entry
	return ts.persist(entry)
}

func (ts *tierStore) get(key string, now time.Time) (Entry, bool, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	entry, ok := ts.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if entry.Expired(now) {
		// Self-healing lazy expiry: the read deletes what it would not
		// return.
		delete(ts.entries, key)
		ts.unpersist(key)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (ts *tierStore) remove(key string) (bool, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, ok := ts.entries[key]; !ok {
		return false, nil
	}
	delete(ts.entries, key)
	ts.unpersist(key)
	return true, nil
}

func (ts *tierStore) list(now time.Time) []Entry {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]Entry, 0, len(ts.entries))
	for key, entry := range ts.entries {
		if entry.Expired(now) {
			delete(ts.entries, key)
			ts.unpersist(key)
			continue
		}
		out = append(out, entry)
	}
	return out
}

func (ts *tierStore) prune(now time.Time) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	removed := 0
	for key, entry := range ts.entries {
		if entry.Expired(now) {
			delete(ts.entries, key)
			ts.unpersist(key)
			removed++
		}
	}
	return removed
}

func (ts *tierStore) clear() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	removed := len(ts.entries)
	for key := range ts.entries {
		ts.unpersist(key)
	}
	ts.entries = make(map[string]Entry)
	return removed
}

func (ts *tierStore) persist(entry Entry) error {
	if ts.dir == "" {
		return nil
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", entry.Key, err)
	}
	path := filepath.Join(ts.dir, hashKey(entry.Key)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write cache entry %s: %w", entry.Key, err)
	}
	return nil
}

func (ts *tierStore) unpersist(key string) {
	if ts.dir == "" {
		return
	}
	_ = os.Remove(filepath.Join(ts.dir, hashKey(key)+".json"))
}

// hashKey maps an opaque key to a stable filename.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// DeriveKey builds a deterministic cache key from a tool name and its
// normalized input, so identical requests hit the same entry.
func DeriveKey(toolName string, normalizedInput []byte) string {
	h := sha256.New()
	h.Write([]byte(toolName))
	h.Write([]byte{0})
	h.Write(normalizedInput)
	return toolName + ":" + hex.EncodeToString(h.Sum(nil)[:16])
}

package status

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// JSONFileKV persists the history snapshot as a single JSON file under the
// data root, written atomically via tmp+rename.
type JSONFileKV struct {
	mu   sync.Mutex
	path string
}

func NewJSONFileKV(dataRoot string) *JSONFileKV {
	return &JSONFileKV{path: filepath.Join(dataRoot, "history.json")}
}

func (kv *JSONFileKV) Load() (*Snapshot, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	b, err := os.ReadFile(kv.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (kv *JSONFileKV) Save(snap Snapshot) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(kv.path), 0o755); err != nil {
		return err
	}
	tmp := kv.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, kv.path)
}

func (kv *JSONFileKV) Clear() error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if err := os.Remove(kv.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

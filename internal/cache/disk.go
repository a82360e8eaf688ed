package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// entryMeta is written next to each cached body.
type entryMeta struct {
	Key       string    `json:"key"`
	Size      int       `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Disk keeps one directory per key under a base directory, holding
// body.xml and meta.json.
type Disk struct {
	dir string
}

// NewDisk creates a disk store rooted at dir. The directory is created on
// first save.
func NewDisk(dir string) *Disk {
	if dir == "" {
		// Relative fallback so development runs need no special paths.
		dir = "./var/soap-cache"
	}
	return &Disk{dir: dir}
}

func (d *Disk) Load(_ context.Context, key string) ([]byte, error) {
	body, err := os.ReadFile(filepath.Join(d.dir, key, "body.xml"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrMiss
		}
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrMiss
	}
	return body, nil
}

// UpdatedAt returns when key was last saved.
func (d *Disk) UpdatedAt(key string) (time.Time, error) {
	data, err := os.ReadFile(filepath.Join(d.dir, key, "meta.json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, ErrMiss
		}
		return time.Time{}, err
	}
	var meta entryMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return time.Time{}, err
	}
	return meta.UpdatedAt, nil
}

func (d *Disk) Save(_ context.Context, key string, body []byte) error {
	path := filepath.Join(d.dir, key)
	if err := os.MkdirAll(path, 0o700); err != nil {
		return err
	}

	// Write body first so meta never points at missing body.
	if err := os.WriteFile(filepath.Join(path, "body.xml"), body, 0o600); err != nil {
		return err
	}

	data, err := json.MarshalIndent(entryMeta{
		Key:       key,
		Size:      len(body),
		UpdatedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(path, "meta.json"), data, 0o600)
}

func (d *Disk) Close() error { return nil }

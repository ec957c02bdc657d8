package lead

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ent0n29/tensai/internal/atomicfile"
)

const (
	filePrefix = "lead_"
	fileExt    = ".json"
)

// FileStore keeps one JSON file per segment, contacts/lead_<segment>.json.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("lead directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lead directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Put(_ context.Context, segmentID string, rec Record) error {
	if err := validSegmentID(segmentID); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return fmt.Errorf("encode lead %s: %w", segmentID, err)
	}
	if err := atomicfile.Write(s.path(segmentID), raw, 0o644, time.Time{}); err != nil {
		return fmt.Errorf("write lead %s: %w", segmentID, err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, segmentID string) (Record, error) {
	if err := validSegmentID(segmentID); err != nil {
		return Record{}, err
	}
	raw, err := os.ReadFile(s.path(segmentID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("read lead %s: %w", segmentID, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode lead %s: %w", segmentID, err)
	}
	return rec, nil
}

func (s *FileStore) List(ctx context.Context) ([]Entry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || atomicfile.IsTemp(name) || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt)
		rec, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		var updated time.Time
		if fi, err := e.Info(); err == nil {
			updated = fi.ModTime().UTC()
		}
		out = append(out, Entry{SegmentID: id, Record: rec, UpdatedAt: updated})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SegmentID < out[j].SegmentID })
	return out, nil
}

func (s *FileStore) Delete(_ context.Context, segmentID string) error {
	if err := validSegmentID(segmentID); err != nil {
		return err
	}
	if err := os.Remove(s.path(segmentID)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete lead %s: %w", segmentID, err)
	}
	return nil
}

func (s *FileStore) path(segmentID string) string {
	return filepath.Join(s.dir, filePrefix+segmentID+fileExt)
}

func validSegmentID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid segment id %q", id)
	}
	return nil
}

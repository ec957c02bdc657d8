package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/ent0n29/tensai/internal/atomicfile"
)

const segmentExt = ".json"

// FileStore keeps one JSON file per segment in a directory. The file name
// encodes scope and creation instant; the file mtime is the modification instant.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("conversation directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) List(ctx context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || atomicfile.IsTemp(name) || !strings.HasSuffix(name, segmentExt) {
			continue
		}
		id := strings.TrimSuffix(name, segmentExt)
		scope, created, ok := parseSegmentID(id)
		if !ok {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat segment %s: %w", id, err)
		}
		out = append(out, Info{ID: id, Scope: scope, CreatedAt: created, ModifiedAt: fi.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *FileStore) Read(_ context.Context, id string) (Segment, error) {
	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Segment{}, ErrNotFound
		}
		return Segment{}, fmt.Errorf("read segment %s: %w", id, err)
	}
	var seg Segment
	if err := json.Unmarshal(raw, &seg); err != nil {
		return Segment{}, fmt.Errorf("decode segment %s: %w", id, err)
	}
	seg.ID = id
	return seg, nil
}

func (s *FileStore) Write(_ context.Context, seg Segment) error {
	if _, _, ok := parseSegmentID(seg.ID); !ok {
		return fmt.Errorf("invalid segment id %q", seg.ID)
	}
	raw, err := json.MarshalIndent(seg, "", "    ")
	if err != nil {
		return fmt.Errorf("encode segment %s: %w", seg.ID, err)
	}
	if err := atomicfile.Write(s.path(seg.ID), raw, 0o644, seg.ModifiedAt); err != nil {
		return fmt.Errorf("write segment %s: %w", seg.ID, err)
	}
	return nil
}

// Watch emits the id of every segment file created or replaced in the
// directory until ctx is done. Events may be coalesced or duplicated.
func (s *FileStore) Watch(ctx context.Context) (<-chan string, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", s.dir, err)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
					continue
				}
				name := filepath.Base(ev.Name)
				if atomicfile.IsTemp(name) || !strings.HasSuffix(name, segmentExt) {
					continue
				}
				select {
				case out <- strings.TrimSuffix(name, segmentExt):
				default:
					// a scan is already pending
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+segmentExt)
}

// newSegmentID encodes scope and creation instant plus a random suffix so
// segments created at the same instant stay distinct:
// chat_<scope>_<unixnano>_<suffix>.
func newSegmentID(scope string, created time.Time) string {
	return fmt.Sprintf("chat_%s_%d_%s", sanitizeScope(scope), created.UnixNano(), uuid.NewString()[:8])
}

func parseSegmentID(id string) (scope string, created time.Time, ok bool) {
	rest, found := strings.CutPrefix(id, "chat_")
	if !found {
		return "", time.Time{}, false
	}
	// Scopes never contain '_', so the id splits into exactly three parts.
	parts := strings.Split(rest, "_")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", time.Time{}, false
	}
	nanos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	return parts[0], time.Unix(0, nanos).UTC(), true
}

func sanitizeScope(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return GlobalScope
	}
	var b strings.Builder
	for _, r := range scope {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

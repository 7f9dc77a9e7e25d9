// Package file provides file-based persistence: one JSON document per
// workflow, execution and activity under a root directory.
package file

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
	"sync"

	"github.com/leadflow/leadflow/pkg/persistence"
)

const (
	workflowsDir  = "workflows"
	executionsDir = "executions"
	activitiesDir = "activities"
)

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

// NewPersistence creates the directory layout under root. A "file://" prefix
// is accepted.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{workflowsDir, executionsDir, activitiesDir} {
		if err := os.MkdirAll(filepath.Join(cleanRoot, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &Persistence{root: cleanRoot}, nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); err != nil {
		return fmt.Errorf("persistence root unavailable: %w", err)
	}

	return nil
}

func validID(id string) error {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", persistence.ErrInvalidID, id)
	}

	return nil
}

func (fp *Persistence) path(dir, id string) string {
	return filepath.Join(fp.root, dir, id+".json")
}

// write stores v atomically through a temporary file in the same directory.
func (fp *Persistence) write(dir, id string, v any) error {
	if err := validID(id); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", id, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Join(fp.root, dir), "."+id+".*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return err
	}

	return os.Rename(tmp.Name(), fp.path(dir, id))
}

// read decodes the document id into v; missing documents return fs.ErrNotExist.
func (fp *Persistence) read(dir, id string, v any) error {
	if err := validID(id); err != nil {
		return err
	}

	fp.mu.RLock()
	data, err := os.ReadFile(fp.path(dir, id))
	fp.mu.RUnlock()

	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}

func (fp *Persistence) remove(dir, id string) error {
	if err := validID(id); err != nil {
		return err
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	return os.Remove(fp.path(dir, id))
}

// ids lists the document ids of dir in name order.
func (fp *Persistence) ids(dir string) ([]string, error) {
	fp.mu.RLock()
	matches, err := fs.Glob(os.DirFS(filepath.Join(fp.root, dir)), "*.json")
	fp.mu.RUnlock()

	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, strings.TrimSuffix(match, ".json"))
	}

	sort.Strings(ids)

	return ids, nil
}

func notExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// Package local implements gateway.Gateway in-process on bleve.
//
// Every physical index is a bleve index, either memory-only or stored under
// a data directory. Aliases are kept in a table persisted next to the
// indices. Writes honour external versioning the way a cluster does:
// a write whose version is not greater than the stored one is rejected
// with status 409.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/gateway"
	"github.com/Aman-CERP/searchsync/internal/schema"
)

const (
	aliasFile   = "aliases.json"
	settingsKey = "_settings"
	metaFile    = "index_meta.json"
)

type physical struct {
	name     string
	path     string
	index    bleve.Index
	settings map[string]string
}

// Backend is an in-process search backend.
type Backend struct {
	mu      sync.RWMutex
	writeMu sync.Mutex

	dir     string
	indices map[string]*physical
	aliases map[string]map[string]struct{}
	closed  bool
}

var _ gateway.Gateway = (*Backend)(nil)

// NewMemory returns a backend whose indices live only in memory.
func NewMemory() *Backend {
	return &Backend{
		indices: make(map[string]*physical),
		aliases: make(map[string]map[string]struct{}),
	}
}

// Open loads or creates a backend stored under dir.
func Open(dir string) (*Backend, error) {
	if dir == "" {
		return NewMemory(), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, serrors.New(serrors.ErrCodeFilePermission, "failed to create data directory "+dir, err)
	}

	b := NewMemory()
	b.dir = dir

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeFilePermission, "failed to read data directory "+dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if _, err := os.Stat(filepath.Join(path, metaFile)); err != nil {
			continue
		}
		idx, err := bleve.Open(path)
		if err != nil {
			slog.Warn("local_index_open_failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		p := &physical{name: e.Name(), path: path, index: idx, settings: map[string]string{}}
		if raw, err := idx.GetInternal([]byte(settingsKey)); err == nil && raw != nil {
			_ = json.Unmarshal(raw, &p.settings)
		}
		b.indices[p.name] = p
	}

	if err := b.loadAliases(); err != nil {
		_ = b.Close()
		return nil, err
	}

	slog.Debug("local_backend_opened", slog.String("dir", dir), slog.Int("indices", len(b.indices)))
	return b, nil
}

func (b *Backend) loadAliases() error {
	data, err := os.ReadFile(filepath.Join(b.dir, aliasFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return serrors.New(serrors.ErrCodeFilePermission, "failed to read alias table", err)
	}

	var table map[string][]string
	if err := json.Unmarshal(data, &table); err != nil {
		return serrors.New(serrors.ErrCodeConfigInvalid, "alias table is corrupt", err)
	}
	for alias, names := range table {
		set := make(map[string]struct{}, len(names))
		for _, n := range names {
			if _, ok := b.indices[n]; ok {
				set[n] = struct{}{}
			}
		}
		if len(set) > 0 {
			b.aliases[alias] = set
		}
	}
	return nil
}

// saveAliases must be called with mu held.
func (b *Backend) saveAliases() error {
	if b.dir == "" {
		return nil
	}
	table := make(map[string][]string, len(b.aliases))
	for alias, set := range b.aliases {
		table[alias] = sortedKeys(set)
	}
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return serrors.InternalError("encode alias table", err)
	}
	tmp := filepath.Join(b.dir, aliasFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return serrors.New(serrors.ErrCodeFilePermission, "failed to write alias table", err)
	}
	return os.Rename(tmp, filepath.Join(b.dir, aliasFile))
}

func (b *Backend) newBleve(name string, m *schema.Mapping) (bleve.Index, string, error) {
	var (
		im  *mapping.IndexMappingImpl
		err error
	)
	if m == nil {
		im, err = newIndexMapping()
	} else {
		im, err = translateMapping(m)
	}
	if err != nil {
		return nil, "", rejected(400, "mapper_parsing_exception", err.Error())
	}

	if b.dir == "" {
		idx, err := bleve.NewMemOnly(im)
		return idx, "", err
	}
	path := filepath.Join(b.dir, name)
	idx, err := bleve.New(path, im)
	return idx, path, err
}

func (b *Backend) checkOpen() error {
	if b.closed {
		return serrors.BackendError("local backend is closed", nil)
	}
	return nil
}

// CreateIndex creates an empty index.
func (b *Backend) CreateIndex(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return err
	}

	if _, ok := b.indices[name]; ok {
		return rejected(400, "resource_already_exists_exception", "index ["+name+"] already exists")
	}
	if _, ok := b.aliases[name]; ok {
		return rejected(400, "invalid_index_name_exception", "["+name+"] is an alias")
	}

	idx, path, err := b.newBleve(name, nil)
	if err != nil {
		return serrors.BackendError("create index "+name, err)
	}
	b.indices[name] = &physical{name: name, path: path, index: idx, settings: map[string]string{}}

	slog.Debug("local_index_created", slog.String("index", name))
	return nil
}

// PutMapping applies mapping. The index must still be empty.
func (b *Backend) PutMapping(_ context.Context, index string, m *schema.Mapping) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return err
	}

	targets, err := b.resolve(index)
	if err != nil {
		return err
	}
	for _, p := range targets {
		count, err := p.index.DocCount()
		if err != nil {
			return serrors.BackendError("count documents in "+p.name, err)
		}
		if count > 0 {
			return rejected(400, "illegal_argument_exception", "index ["+p.name+"] already holds documents")
		}

		_ = p.index.Close()
		if p.path != "" {
			if err := os.RemoveAll(p.path); err != nil {
				return serrors.New(serrors.ErrCodeFilePermission, "failed to reset index "+p.name, err)
			}
		}
		idx, path, err := b.newBleve(p.name, m)
		if err != nil {
			return serrors.BackendError("apply mapping to "+p.name, err)
		}
		p.index, p.path = idx, path
		if err := b.persistSettings(p); err != nil {
			return err
		}
	}
	return nil
}

// IndexExists reports whether name is an index or an alias.
func (b *Backend) IndexExists(_ context.Context, name string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return false, err
	}

	_, isIndex := b.indices[name]
	_, isAlias := b.aliases[name]
	return isIndex || isAlias, nil
}

// GetAlias returns the indices bound to alias with all their aliases.
func (b *Backend) GetAlias(_ context.Context, alias string) (map[string][]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	out := make(map[string][]string)
	for index := range b.aliases[alias] {
		out[index] = b.aliasesOf(index)
	}
	return out, nil
}

func (b *Backend) aliasesOf(index string) []string {
	var names []string
	for alias, set := range b.aliases {
		if _, ok := set[index]; ok {
			names = append(names, alias)
		}
	}
	sort.Strings(names)
	return names
}

// UpdateAliases validates every action before applying any of them.
func (b *Backend) UpdateAliases(_ context.Context, actions []gateway.AliasAction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return err
	}

	next := make(map[string]map[string]struct{}, len(b.aliases))
	for alias, set := range b.aliases {
		cp := make(map[string]struct{}, len(set))
		for k := range set {
			cp[k] = struct{}{}
		}
		next[alias] = cp
	}

	for _, a := range actions {
		if _, ok := b.indices[a.Index]; !ok {
			return rejected(404, "index_not_found_exception", "no such index ["+a.Index+"]")
		}
		switch a.Type {
		case gateway.AliasAdd:
			if _, clash := b.indices[a.Alias]; clash {
				return rejected(400, "invalid_alias_name_exception", "an index exists with the same name as the alias ["+a.Alias+"]")
			}
			if next[a.Alias] == nil {
				next[a.Alias] = make(map[string]struct{})
			}
			next[a.Alias][a.Index] = struct{}{}
		case gateway.AliasRemove:
			if _, bound := next[a.Alias][a.Index]; !bound {
				return rejected(404, "aliases_not_found_exception", "aliases ["+a.Alias+"] missing")
			}
			delete(next[a.Alias], a.Index)
			if len(next[a.Alias]) == 0 {
				delete(next, a.Alias)
			}
		default:
			return rejected(400, "illegal_argument_exception", fmt.Sprintf("unknown alias action %q", a.Type))
		}
	}

	b.aliases = next
	return b.saveAliases()
}

// DeleteIndex drops a physical index and its alias bindings.
func (b *Backend) DeleteIndex(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return err
	}

	p, ok := b.indices[name]
	if !ok {
		return rejected(404, "index_not_found_exception", "no such index ["+name+"]")
	}

	_ = p.index.Close()
	if p.path != "" {
		if err := os.RemoveAll(p.path); err != nil {
			return serrors.New(serrors.ErrCodeFilePermission, "failed to remove index "+name, err)
		}
	}
	delete(b.indices, name)
	for alias, set := range b.aliases {
		delete(set, name)
		if len(set) == 0 {
			delete(b.aliases, alias)
		}
	}

	slog.Debug("local_index_deleted", slog.String("index", name))
	return b.saveAliases()
}

// PutSettings stores settings on every index name resolves to.
func (b *Backend) PutSettings(_ context.Context, index string, settings map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return err
	}

	targets, err := b.resolve(index)
	if err != nil {
		return err
	}
	for _, p := range targets {
		for k, v := range settings {
			p.settings[k] = v
		}
		if err := b.persistSettings(p); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) persistSettings(p *physical) error {
	data, err := json.Marshal(p.settings)
	if err != nil {
		return serrors.InternalError("encode settings", err)
	}
	if err := p.index.SetInternal([]byte(settingsKey), data); err != nil {
		return serrors.BackendError("store settings of "+p.name, err)
	}
	return nil
}

// Close closes every index.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var firstErr error
	for _, p := range b.indices {
		if err := p.index.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// resolve maps an index or alias name to physical indices.
// Must be called with mu held.
func (b *Backend) resolve(name string) ([]*physical, error) {
	if p, ok := b.indices[name]; ok {
		return []*physical{p}, nil
	}
	set, ok := b.aliases[name]
	if !ok {
		return nil, rejected(404, "index_not_found_exception", "no such index ["+name+"]")
	}
	out := make([]*physical, 0, len(set))
	for _, n := range sortedKeys(set) {
		out = append(out, b.indices[n])
	}
	return out, nil
}

// resolveWrite maps name to the single index that accepts writes.
func (b *Backend) resolveWrite(name string) (*physical, error) {
	targets, err := b.resolve(name)
	if err != nil {
		return nil, err
	}
	if len(targets) != 1 {
		return nil, rejected(400, "illegal_argument_exception",
			fmt.Sprintf("alias [%s] points to %d indices and has no write index", name, len(targets)))
	}
	return targets[0], nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func rejected(status int, typ, reason string) error {
	return serrors.New(serrors.ErrCodeBackendRejected, fmt.Sprintf("%s: %s", typ, reason), nil).
		WithDetail("status", fmt.Sprint(status)).
		WithDetail("type", typ)
}

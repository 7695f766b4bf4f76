package tenancy

import (
	"context"
	"fmt"
	"os"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

const snapshotKey = "snapshot"

// fileDocument es el formato del archivo de tenancies.
type fileDocument struct {
	Tenancies []Tenancy `yaml:"tenancies"`
}

// FileStore lee tenancies desde un archivo YAML. El archivo parseado se
// cachea ttl; recargas concurrentes se coalescen con singleflight.
type FileStore struct {
	path  string
	ttl   time.Duration
	cache *gocache.Cache
	group singleflight.Group
}

// NewFileStore crea el store y hace una primera carga para fallar temprano.
func NewFileStore(path string, ttl time.Duration) (*FileStore, error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	s := &FileStore{
		path:  path,
		ttl:   ttl,
		cache: gocache.New(ttl, 2*ttl),
	}
	if _, err := s.snapshot(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get implementa Store.
func (s *FileStore) Get(_ context.Context, tenancyID string) (*Tenancy, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	t, ok := snap[tenancyID]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *FileStore) snapshot() (map[string]*Tenancy, error) {
	if v, ok := s.cache.Get(snapshotKey); ok {
		return v.(map[string]*Tenancy), nil
	}
	v, err, _ := s.group.Do(snapshotKey, func() (any, error) {
		snap, err := loadFile(s.path)
		if err != nil {
			return nil, err
		}
		s.cache.Set(snapshotKey, snap, s.ttl)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]*Tenancy), nil
}

func loadFile(path string) (map[string]*Tenancy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tenancy: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodifica y valida un documento de tenancies.
func Parse(raw []byte) (map[string]*Tenancy, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("tenancy: parse: %w", err)
	}

	out := make(map[string]*Tenancy, len(doc.Tenancies))
	for i := range doc.Tenancies {
		t := &doc.Tenancies[i]
		if t.ID == "" {
			return nil, fmt.Errorf("tenancy: entry %d has no id", i)
		}
		if _, dup := out[t.ID]; dup {
			return nil, fmt.Errorf("tenancy: duplicate id %q", t.ID)
		}
		switch t.MergeStrategy() {
		case MergeLinkMethod, MergeRaiseError, MergeAllowDuplicates:
		default:
			return nil, fmt.Errorf("tenancy %s: unknown account_merge_strategy %q", t.ID, t.AccountMergeStrategy)
		}
		seen := map[string]bool{}
		for _, p := range t.Providers {
			if p.ID == "" {
				return nil, fmt.Errorf("tenancy %s: provider without id", t.ID)
			}
			if seen[p.ID] {
				return nil, fmt.Errorf("tenancy %s: duplicate provider %q", t.ID, p.ID)
			}
			seen[p.ID] = true
		}
		out[t.ID] = t
	}
	return out, nil
}

// StaticStore sirve un conjunto fijo de tenancies (tests, embebido).
type StaticStore map[string]*Tenancy

// Get implementa Store.
func (s StaticStore) Get(_ context.Context, tenancyID string) (*Tenancy, error) {
	t, ok := s[tenancyID]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

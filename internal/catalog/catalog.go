// Package catalog lists the mission documents available to load.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/OneOfOne/xxhash"

	"github.com/AaronLay10/StrideQuest/internal/mission"
)

// ErrNotFound is returned for names that are not catalog documents.
var ErrNotFound = errors.New("mission not in catalog")

// Entry is one loadable mission.
type Entry struct {
	File  string `json:"file"`
	Title string `json:"title"`
}

// Cache stores titles by content key. A miss is ("", false, nil).
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, title string) error
}

// Catalog reads mission titles from a directory of *.xml documents.
type Catalog struct {
	dir   string
	cache Cache
	log   *slog.Logger
}

// New creates a catalog over dir. cache may be nil.
func New(dir string, cache Cache, log *slog.Logger) *Catalog {
	if log == nil {
		log = slog.Default()
	}
	return &Catalog{dir: dir, cache: cache, log: log.With("component", "catalog")}
}

// Dir returns the catalog directory.
func (c *Catalog) Dir() string { return c.dir }

// List returns every readable mission sorted by file name. Documents that
// cannot be read or have no title are skipped.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	dirents, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read mission dir: %w", err)
	}

	var out []Entry
	for _, de := range dirents {
		if de.IsDir() || !isMissionFile(de.Name()) {
			continue
		}
		title, err := c.title(ctx, filepath.Join(c.dir, de.Name()))
		if err != nil {
			c.log.Warn("skipping mission", "file", de.Name(), "error", err)
			continue
		}
		out = append(out, Entry{File: de.Name(), Title: title})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out, nil
}

func (c *Catalog) title(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	key := Key(data)

	if c.cache != nil {
		title, ok, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			c.log.Warn("title cache read failed", "error", err)
		case ok:
			return title, nil
		}
	}

	title, err := mission.ReadTitle(data)
	if err != nil {
		return "", err
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, key, title); err != nil {
			c.log.Warn("title cache write failed", "error", err)
		}
	}
	return title, nil
}

// Path resolves a catalog file name to its path. Names with directory
// components are rejected.
func (c *Catalog) Path(file string) (string, error) {
	if file == "" || filepath.Base(file) != file || !isMissionFile(file) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, file)
	}
	path := filepath.Join(c.dir, file)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %q", ErrNotFound, file)
	}
	return path, nil
}

func isMissionFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xml") && !strings.HasPrefix(name, ".")
}

// Key is the cache key for a document: its xxhash64 in hex.
func Key(data []byte) string {
	h := xxhash.NewS64(0)
	h.Write(data)
	return "stridequest:title:" + strconv.FormatUint(h.Sum64(), 16)
}

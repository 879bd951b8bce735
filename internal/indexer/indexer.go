// Package indexer implements C3: the incremental file walker that keeps
// the catalog in sync with a repository's working tree. It walks the
// tree honoring ignore rules, hashes file content to detect changes, and
// drives the splitter + catalog for anything new or modified.
package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vmlinuzx/llmc-sub017/internal/catalog"
	"github.com/vmlinuzx/llmc-sub017/internal/logging"
	"github.com/vmlinuzx/llmc-sub017/internal/model"
	"github.com/vmlinuzx/llmc-sub017/internal/splitter"
)

// defaultIgnores mirrors the fixed blocklist every repo carries regardless
// of .ragignore contents.
var defaultIgnores = []string{
	".git", "node_modules", "vendor", "dist", "build", ".next", "target",
	"bin", "obj", ".terraform", ".venv", ".cache",
}

// Options configures one indexing run.
type Options struct {
	// MaxFileSize skips files larger than this (bytes). 0 means no cap.
	MaxFileSize int64
	// MaxConcurrency bounds parallel file workers. 0 picks a CPU-scaled default.
	MaxConcurrency int
	// IgnoreGlobs are additional globs from config (e.g. .ragignore contents).
	IgnoreGlobs []string
	// Paths restricts indexing to an explicit file list (incremental mode).
	// Empty means a full tree walk.
	Paths []string
}

// FileError pairs a failed file with the error, so one bad file never
// aborts the whole run (spec §4.3 per-file error isolation).
type FileError struct {
	Path string
	Err  error
}

// Stats summarizes one run.
type Stats struct {
	FilesScanned   int
	SpansAdded     int
	SpansUnchanged int
	SpansRemoved   int
	FilesFailed    int
	Errors         []FileError
	Duration       time.Duration
}

// Indexer drives the walk -> hash -> split -> catalog pipeline.
type Indexer struct {
	store *catalog.Store
	split *splitter.Engine
}

// New builds an Indexer against an already-open catalog and splitter engine.
func New(store *catalog.Store, split *splitter.Engine) *Indexer {
	return &Indexer{store: store, split: split}
}

// Run walks root (or Options.Paths, for incremental mode), updating the
// catalog for every new or changed file and removing entries for files
// that no longer exist.
func (ix *Indexer) Run(ctx context.Context, root string, opts Options) (Stats, error) {
	start := time.Now()
	log := logging.Get(logging.CategoryIndexer)

	var candidates []string
	var err error
	if len(opts.Paths) > 0 {
		candidates = opts.Paths
	} else {
		candidates, err = walkTree(root, opts.IgnoreGlobs)
		if err != nil {
			return Stats{}, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	conc := opts.MaxConcurrency
	if conc <= 0 {
		conc = runtime.NumCPU()
		if conc > 16 {
			conc = 16
		}
		if conc < 2 {
			conc = 2
		}
	}

	var (
		mu       sync.Mutex
		stats    Stats
		wg       sync.WaitGroup
		sem      = make(chan struct{}, conc)
		seenPath = make(map[string]bool, len(candidates))
	)

	for _, p := range candidates {
		select {
		case <-ctx.Done():
			break
		default:
		}
		seenPath[p] = true
		wg.Add(1)
		sem <- struct{}{}
		go func(p string) {
			defer wg.Done()
			defer func() { <-sem }()

			added, unchanged, fileErr := ix.indexFile(p, opts.MaxFileSize)
			mu.Lock()
			defer mu.Unlock()
			stats.FilesScanned++
			if fileErr != nil {
				stats.FilesFailed++
				stats.Errors = append(stats.Errors, FileError{Path: p, Err: fileErr})
				log.Warn("index file failed", zap.String("path", p), zap.Error(fileErr))
				return
			}
			stats.SpansAdded += added
			stats.SpansUnchanged += unchanged
		}(p)
	}
	wg.Wait()

	if len(opts.Paths) == 0 {
		removed, err := ix.pruneDeleted(seenPath)
		if err != nil {
			log.Warn("prune deleted files failed", zap.Error(err))
		}
		stats.SpansRemoved = removed
	}

	stats.Duration = time.Since(start)
	log.Info("index run complete",
		zap.Int("files_scanned", stats.FilesScanned),
		zap.Int("spans_added", stats.SpansAdded),
		zap.Int("spans_unchanged", stats.SpansUnchanged),
		zap.Int("spans_removed", stats.SpansRemoved),
		zap.Int("files_failed", stats.FilesFailed),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// indexFile hashes path, skips it if unchanged, otherwise splits it and
// replaces its span set. Returns (spansAdded, spansUnchanged, err).
func (ix *Indexer) indexFile(p string, maxSize int64) (int, int, error) {
	info, err := os.Stat(p)
	if err != nil {
		return 0, 0, err
	}
	if maxSize > 0 && info.Size() > maxSize {
		return 0, 0, nil
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return 0, 0, err
	}
	contentHash := model.ContentHash(data)

	prevHash, err := ix.store.GetFileHash(p)
	if err == nil && prevHash == contentHash {
		spans, err := ix.store.SpansForFile(p)
		if err != nil {
			return 0, 0, err
		}
		return 0, len(spans), nil
	}

	lang := detectLanguage(filepath.Ext(p), p)
	spans, err := ix.split.Split(p, lang, data)
	if err != nil {
		return 0, 0, fmt.Errorf("split: %w", err)
	}

	if err := ix.store.UpsertFile(model.File{
		Path:        p,
		Language:    lang,
		ContentHash: contentHash,
		Size:        info.Size(),
		MTime:       info.ModTime(),
	}); err != nil {
		return 0, 0, fmt.Errorf("upsert file: %w", err)
	}
	if err := ix.store.ReplaceSpans(p, spans); err != nil {
		return 0, 0, fmt.Errorf("replace spans: %w", err)
	}
	return len(spans), 0, nil
}

// pruneDeleted removes any catalog file not present in seen, returning how
// many files were dropped.
func (ix *Indexer) pruneDeleted(seen map[string]bool) (int, error) {
	tracked, err := ix.trackedFiles()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, p := range tracked {
		if seen[p] {
			continue
		}
		if err := ix.store.DeleteFile(p); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (ix *Indexer) trackedFiles() ([]string, error) {
	return ix.store.AllFilePaths()
}

func walkTree(root string, ignoreGlobs []string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		rel = filepath.ToSlash(rel)
		name := d.Name()

		if d.IsDir() {
			if p != root && isIgnored(rel, name, ignoreGlobs) {
				return filepath.SkipDir
			}
			return nil
		}
		if isIgnored(rel, name, ignoreGlobs) {
			return nil
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// isIgnored checks the fixed blocklist plus any .ragignore-style globs.
func isIgnored(rel, name string, globs []string) bool {
	for _, n := range defaultIgnores {
		if name == n || strings.HasPrefix(rel, n+"/") {
			return true
		}
	}
	for _, raw := range globs {
		g := strings.TrimSuffix(strings.TrimSpace(raw), "/")
		if g == "" || strings.HasPrefix(g, "#") {
			continue
		}
		if ok, _ := path.Match(g, rel); ok {
			return true
		}
		if strings.HasSuffix(g, "/*") {
			prefix := strings.TrimSuffix(g, "/*")
			if strings.HasPrefix(rel, prefix+"/") {
				return true
			}
		}
		if name == g {
			return true
		}
	}
	return false
}

var extLang = map[string]string{
	".go": "go", ".py": "python", ".js": "javascript", ".jsx": "javascript",
	".ts": "typescript", ".tsx": "typescript", ".rs": "rust",
	".md": "markdown", ".markdown": "markdown",
}

func detectLanguage(ext, _ string) string {
	if lang, ok := extLang[strings.ToLower(ext)]; ok {
		return lang
	}
	return "text"
}

// Package logging provides config-driven, categorized structured logging
// for the engine. Each subsystem logs through its own Category; a category
// can be silenced independently via configuration, in which case its
// logger becomes a zap no-op core so the hot path never branches on a flag.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategorySplitter   Category = "splitter"
	CategoryCatalog    Category = "catalog"
	CategoryIndexer    Category = "indexer"
	CategorySchema     Category = "schema"
	CategoryGraph      Category = "graph"
	CategoryEmbedding  Category = "embedding"
	CategoryRouter     Category = "router"
	CategoryEnrichment Category = "enrichment"
	CategoryPlanner    Category = "planner"
	CategoryDaemon     Category = "daemon"
	CategoryMAASL      Category = "maasl"
	CategoryCLI        Category = "cli"
)

var allCategories = []Category{
	CategorySplitter, CategoryCatalog, CategoryIndexer, CategorySchema,
	CategoryGraph, CategoryEmbedding, CategoryRouter, CategoryEnrichment,
	CategoryPlanner, CategoryDaemon, CategoryMAASL, CategoryCLI,
}

var (
	mu       sync.RWMutex
	base     *zap.Logger
	enabled  map[Category]bool
	cache    = map[Category]*zap.Logger{}
	initDone bool
)

// Options configures logger initialization.
type Options struct {
	// Debug enables debug-level logging.
	Debug bool
	// Disabled lists categories to silence entirely.
	Disabled []Category
	// JSON selects JSON encoding (the default); false selects console
	// encoding, useful for interactive CLI runs.
	JSON bool
}

// Init builds the base zap.Logger and per-category enablement map. Safe to
// call more than once (e.g. across CLI subcommand PersistentPreRunE calls);
// the last call wins.
func Init(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	zcfg := zap.NewProductionConfig()
	if opts.JSON {
		zcfg.Encoding = "json"
	} else {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	if opts.Debug {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	l, err := zcfg.Build()
	if err != nil {
		return err
	}
	base = l

	disabled := map[Category]bool{}
	for _, c := range opts.Disabled {
		disabled[c] = true
	}
	enabled = map[Category]bool{}
	for _, c := range allCategories {
		enabled[c] = !disabled[c]
	}
	cache = map[Category]*zap.Logger{}
	initDone = true
	return nil
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

// Get returns the logger for a category, building and caching it lazily.
// If Init has never been called, a sane default (info level, JSON, all
// categories enabled) is used so packages can log before CLI bootstrap
// (e.g. in tests).
func Get(cat Category) *zap.Logger {
	mu.RLock()
	if !initDone {
		mu.RUnlock()
		_ = Init(Options{JSON: true})
		mu.RLock()
	}
	if l, ok := cache[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := cache[cat]; ok {
		return l
	}

	var l *zap.Logger
	if enabled[cat] {
		l = base.With(zap.String("category", string(cat)))
	} else {
		l = zap.New(zapcore.NewNopCore())
	}
	cache[cat] = l
	return l
}

package collection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/keyword"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/search"
	"github.com/hyperjump/yomu/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// BuildResult is the outcome of Registry.Build.
type BuildResult struct {
	Key       string
	Status    string // models.StatusSuccess or models.StatusAlreadyExists
	UnitCount int
}

// Collection is a published index for one document.
type Collection struct {
	key       string
	store     *vector.BoltStore
	lexical   atomic.Pointer[keyword.BleveIndex]
	retriever atomic.Pointer[search.FusedRetriever]
}

// Key returns the collection key.
func (c *Collection) Key() string { return c.key }

// Len returns the number of indexed units.
func (c *Collection) Len() int { return c.store.Len() }

// Units returns the indexed units in sequence order.
func (c *Collection) Units() []models.RetrievableUnit { return c.store.Units() }

// Hybrid reports whether the lexical and fused indexes are built.
func (c *Collection) Hybrid() bool { return c.retriever.Load().Hybrid() }

func (c *Collection) close() error {
	if lex := c.lexical.Load(); lex != nil {
		_ = lex.Close()
	}
	return c.store.Close()
}

// Registry maps collection keys to published collections. Builds for different
// keys run in parallel; builds for the same key are serialized by a per-key lock
// held from the existence check through publish. The map lock is held only to
// read or publish entries.
type Registry struct {
	root       string
	embedder   embedding.Embedder
	weight     float64
	searchOpts *keyword.SearchOptions
	logger     *zap.Logger

	mu          sync.RWMutex
	collections map[string]*Collection
	order       []string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	rebuild singleflight.Group
}

// Option configures a Registry.
type Option func(*Registry)

// WithSemanticWeight sets the fused-ranking weight of the semantic side.
func WithSemanticWeight(w float64) Option {
	return func(r *Registry) { r.weight = w }
}

// WithSearchOptions sets the lexical search options used by every collection.
func WithSearchOptions(opts *keyword.SearchOptions) Option {
	return func(r *Registry) { r.searchOpts = opts }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry persisting semantic stores under root.
func NewRegistry(root string, embedder embedding.Embedder, opts ...Option) *Registry {
	r := &Registry{
		root:        root,
		embedder:    embedder,
		weight:      search.DefaultSemanticWeight,
		logger:      zap.NewNop(),
		collections: make(map[string]*Collection),
		locks:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) keyLock(key string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

func (r *Registry) dir(key string) string {
	return filepath.Join(r.root, key)
}

// Exists reports whether a collection is published for identity.
func (r *Registry) Exists(identity string) bool {
	_, ok := r.Get(NormalizeKey(identity))
	return ok
}

// Get returns the published collection for key.
func (r *Registry) Get(key string) (*Collection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collections[key]
	return c, ok
}

// Keys returns published keys in insertion order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Default returns the first published key.
func (r *Registry) Default() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return "", false
	}
	return r.order[0], true
}

func (r *Registry) publish(c *Collection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.collections[c.key]; !ok {
		r.order = append(r.order, c.key)
	}
	r.collections[c.key] = c
}

func (r *Registry) newRetriever(store *vector.BoltStore, lex *keyword.BleveIndex, units []models.RetrievableUnit) *search.FusedRetriever {
	var li keyword.KeywordIndex
	if lex != nil {
		li = lex
	}
	return search.NewFusedRetriever(store, li, r.embedder, units,
		search.WithSemanticWeight(r.weight),
		search.WithSearchOptions(r.searchOpts),
		search.WithLogger(r.logger),
	)
}

// Build indexes units under the key derived from identity and publishes the collection.
// An existing key is left untouched and reported as already existing with zero units.
// On failure every partial artifact, including the persisted directory, is removed and
// the returned error wraps models.ErrBuildFailed.
func (r *Registry) Build(ctx context.Context, identity string, units []models.RetrievableUnit) (BuildResult, error) {
	key := NormalizeKey(identity)
	lock := r.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if _, ok := r.Get(key); ok {
		return BuildResult{Key: key, Status: models.StatusAlreadyExists}, nil
	}
	dir := r.dir(key)
	if vector.Exists(dir) {
		c, err := r.attach(key)
		if err == nil {
			r.publish(c)
			r.logger.Info("attached persisted collection", zap.String("key", key))
			return BuildResult{Key: key, Status: models.StatusAlreadyExists}, nil
		}
		r.logger.Warn("discarding unreadable collection", zap.String("key", key), zap.Error(err))
		if err := os.RemoveAll(dir); err != nil {
			return BuildResult{Key: key, Status: models.StatusFailed}, fmt.Errorf("%w: %v", models.ErrBuildFailed, err)
		}
	}

	start := time.Now()
	c, err := r.build(ctx, key, units)
	if err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			r.logger.Error("rollback failed", zap.String("key", key), zap.Error(rmErr))
		}
		r.logger.Error("collection build failed", zap.String("key", key), zap.Error(err))
		return BuildResult{Key: key, Status: models.StatusFailed}, fmt.Errorf("%w: %s: %w", models.ErrBuildFailed, key, err)
	}
	r.publish(c)
	r.logger.Info("collection built",
		zap.String("key", key),
		zap.Int("units", len(units)),
		zap.Duration("took", time.Since(start)),
	)
	return BuildResult{Key: key, Status: models.StatusSuccess, UnitCount: len(units)}, nil
}

func (r *Registry) build(ctx context.Context, key string, units []models.RetrievableUnit) (*Collection, error) {
	if len(units) == 0 {
		return nil, errors.New("no units to index")
	}
	if r.embedder == nil {
		return nil, models.ErrEmbeddingUnavailable
	}
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Content
	}
	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed units: %w", err)
	}
	if len(vectors) != len(units) {
		return nil, fmt.Errorf("embed units: got %d vectors for %d units", len(vectors), len(units))
	}

	store, err := vector.Create(r.dir(key), units, vectors)
	if err != nil {
		return nil, err
	}
	lex, err := keyword.NewBleveIndex()
	if err == nil {
		err = lex.IndexUnits(ctx, units)
		if err != nil {
			_ = lex.Close()
		}
	}
	if err != nil {
		_ = store.Destroy()
		return nil, err
	}

	c := &Collection{key: key, store: store}
	c.lexical.Store(lex)
	c.retriever.Store(r.newRetriever(store, lex, units))
	return c, nil
}

// attach opens a persisted semantic store without lexical indexes.
func (r *Registry) attach(key string) (*Collection, error) {
	store, err := vector.Open(r.dir(key))
	if err != nil {
		return nil, err
	}
	c := &Collection{key: key, store: store}
	c.retriever.Store(r.newRetriever(store, nil, nil))
	return c, nil
}

// Reload attaches every persisted semantic store under the root directory, keyed by
// directory name. Lexical indexes are rebuilt on the first query against each collection.
// Directories that cannot be opened are logged and skipped.
func (r *Registry) Reload(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan index path: %w", err)
	}
	loaded := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		if !e.IsDir() || !vector.Exists(r.dir(e.Name())) {
			continue
		}
		key := e.Name()
		lock := r.keyLock(key)
		lock.Lock()
		if _, ok := r.Get(key); ok {
			lock.Unlock()
			continue
		}
		c, err := r.attach(key)
		if err != nil {
			lock.Unlock()
			r.logger.Warn("skipping unreadable collection", zap.String("key", key), zap.Error(err))
			continue
		}
		r.publish(c)
		lock.Unlock()
		loaded++
	}
	r.logger.Info("collections reloaded", zap.Int("count", loaded))
	return loaded, nil
}

// Query retrieves up to k hits for text from the collection for identity, or from the
// first published collection when identity is empty. A missing collection yields an
// error wrapping models.ErrNotFound.
func (r *Registry) Query(ctx context.Context, identity, text string, k int) (*models.QueryResult, error) {
	start := time.Now()
	var key string
	if identity == "" {
		def, ok := r.Default()
		if !ok {
			return nil, fmt.Errorf("%w: no collections", models.ErrNotFound)
		}
		key = def
	} else {
		key = NormalizeKey(identity)
	}
	c, ok := r.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, key)
	}

	if !c.Hybrid() {
		if err := r.ensureLexical(ctx, c); err != nil {
			r.logger.Warn("lexical rebuild failed, serving semantic results", zap.String("key", key), zap.Error(err))
		}
	}
	hits, degraded, err := c.retriever.Load().Retrieve(ctx, text, k)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", key, err)
	}
	return &models.QueryResult{
		Query:      text,
		Collection: key,
		Hits:       hits,
		Degraded:   degraded,
		QueryTime:  time.Since(start).Milliseconds(),
	}, nil
}

// ensureLexical rebuilds the lexical index and fused retriever of a reloaded collection
// from its stored units. Concurrent callers share one rebuild.
func (r *Registry) ensureLexical(ctx context.Context, c *Collection) error {
	_, err, _ := r.rebuild.Do(c.key, func() (interface{}, error) {
		if c.Hybrid() {
			return nil, nil
		}
		units := c.store.Units()
		lex, err := keyword.NewBleveIndex()
		if err != nil {
			return nil, err
		}
		if err := lex.IndexUnits(ctx, units); err != nil {
			_ = lex.Close()
			return nil, err
		}
		c.lexical.Store(lex)
		c.retriever.Store(r.newRetriever(c.store, lex, units))
		r.logger.Info("lexical index rebuilt", zap.String("key", c.key), zap.Int("units", len(units)))
		return nil, nil
	})
	return err
}

// Close releases every collection.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, key := range r.order {
		if err := r.collections[key].close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	r.collections = make(map[string]*Collection)
	r.order = nil
	return errors.Join(errs...)
}

// Package archive opens everything one photo archive needs: the data
// directory lock, the decision and side stores, the detection catalog, the
// matcher with its optional index, and the labeling session on top.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/catalog"
	"github.com/kozaktomas/face-queue/internal/config"
	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/database/csvlog"
	"github.com/kozaktomas/face-queue/internal/database/jsonfile"
	"github.com/kozaktomas/face-queue/internal/database/mariadb"
	"github.com/kozaktomas/face-queue/internal/database/postgres"
	"github.com/kozaktomas/face-queue/internal/database/sqlite"
	"github.com/kozaktomas/face-queue/internal/facematch"
	"github.com/kozaktomas/face-queue/internal/queue"
)

// LockFile is created inside the data directory while an archive is open.
const LockFile = ".face-queue.lock"

// ErrLocked is returned by Open when another process holds the data directory.
var ErrLocked = errors.New("data directory is in use by another face-queue process")

// Archive is an opened archive. Close releases its connections and the lock.
type Archive struct {
	Session *queue.Session
	Catalog *catalog.Catalog
	Matcher *facematch.Matcher
	Images  *catalog.Images

	cfg     *config.Config
	lock    *flock.Flock
	closers []func() error
	logger  *zap.Logger
}

// Open locks the data directory and loads the archive described by cfg.
// When the HNSW index is enabled it is loaded from disk, or built and
// saved when the persisted one does not match the catalog.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Archive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Archive.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	a := &Archive{cfg: cfg, logger: logger}
	a.lock = flock.New(filepath.Join(cfg.Archive.DataDir, LockFile))
	ok, err := a.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	if err := a.open(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) open(ctx context.Context) error {
	cfg := a.cfg
	decisions, err := a.openDecisions()
	if err != nil {
		return err
	}
	side, err := jsonfile.OpenSideStores(cfg.Archive.DataDir, a.logger.Named("store"))
	if err != nil {
		return fmt.Errorf("opening side stores: %w", err)
	}

	cat, closers, err := LoadCatalog(ctx, cfg, a.logger)
	a.closers = append(a.closers, closers...)
	if err != nil {
		return err
	}
	a.Images = catalog.NewImages(cfg.Archive.BucketsDir)
	if cfg.Archive.RequireImages {
		before := cat.Len()
		cat = cat.Filter(func(d *facematch.Detection) bool { return a.Images.HasFront(d.BucketPrefix) })
		a.logger.Info("dropped detections without images", zap.Int("dropped", before-cat.Len()))
	}
	a.Catalog = cat
	a.Matcher = NewMatcher(cfg, cat, a.logger)

	if cfg.Matcher.HNSW {
		if err := a.ensureIndex(); err != nil {
			// The exhaustive scan still works without the index.
			a.logger.Warn("HNSW index unavailable, using the full scan", zap.Error(err))
		}
	}

	a.Session, err = queue.New(queue.Deps{
		Catalog:   cat,
		Matcher:   a.Matcher,
		Decisions: decisions,
		Side:      side,
		Images:    a.Images,
	}, queue.Options{
		HistoryLimit:   cfg.Queue.HistoryLimit,
		MinSimilarity:  cfg.Queue.MinSimilarity,
		BatchSize:      cfg.Queue.BatchSize,
		PageSize:       cfg.Queue.PageSize,
		UnlabeledLimit: cfg.Queue.UnlabeledLimit,
		Clusters: facematch.ClusterOptions{
			Similarity:    cfg.Cluster.Similarity,
			MinFaces:      cfg.Cluster.MinFaces,
			MinConfidence: cfg.Cluster.MinConfidence,
		},
	}, a.logger.Named("queue"))
	return err
}

func (a *Archive) openDecisions() (database.DecisionStores, error) {
	logger := a.logger.Named("store")
	switch a.cfg.Store.Backend {
	case config.BackendSQLite:
		db, err := sqlite.Open(filepath.Join(a.cfg.Archive.DataDir, sqlite.DecisionsFile))
		if err != nil {
			return database.DecisionStores{}, fmt.Errorf("opening decision database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		return sqlite.OpenDecisionStores(db, logger)
	default:
		stores, err := csvlog.OpenDecisionStores(a.cfg.Archive.DataDir, logger)
		if err != nil {
			return database.DecisionStores{}, fmt.Errorf("opening decision logs: %w", err)
		}
		return stores, nil
	}
}

// LoadCatalog reads the detection catalog from the configured source and
// attaches name hints. The returned closers release the connections it opened,
// also when an error is returned.
func LoadCatalog(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*catalog.Catalog, []func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var closers []func() error

	src, closeSrc, err := OpenSource(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, closeSrc)

	var hints []catalog.HintSource
	if cfg.Hints.Sidecars {
		hints = append(hints, catalog.NewSidecarHints(cfg.Archive.BucketsDir, logger.Named("sidecar")))
	}
	if cfg.Hints.PhotoPrismDSN != "" {
		pool, err := mariadb.NewPool(cfg.Hints.PhotoPrismDSN)
		if err != nil {
			logger.Warn("PhotoPrism database unavailable, skipping its name hints", zap.Error(err))
		} else {
			closers = append(closers, pool.Close)
			hints = append(hints, mariadb.NewHintSource(pool, logger.Named("photoprism")))
		}
	}

	cat, err := catalog.Load(ctx, src, hints, logger.Named("catalog"))
	if err != nil {
		return nil, closers, err
	}
	return cat, closers, nil
}

// OpenSource opens the configured detection source.
func OpenSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (catalog.Source, func() error, error) {
	switch cfg.Catalog.Source {
	case config.SourcePostgres:
		pool, err := postgres.Open(ctx, &cfg.Catalog)
		if err != nil {
			return nil, nil, err
		}
		repo := postgres.NewDetectionRepository(pool, cfg.Catalog.Variants, cfg.Catalog.MinConfidence, logger.Named("postgres"))
		return repo, pool.Close, nil
	default:
		db, err := sqlite.OpenCatalog(cfg.CatalogPath())
		if err != nil {
			return nil, nil, err
		}
		src := sqlite.NewCatalogSource(db, cfg.Catalog.Variants, cfg.Catalog.MinConfidence, logger.Named("sqlite"))
		return src, db.Close, nil
	}
}

// NewMatcher creates the matcher for a catalog with the configured options.
func NewMatcher(cfg *config.Config, cat *catalog.Catalog, logger *zap.Logger) *facematch.Matcher {
	return facematch.NewMatcher(cat.Detections(), facematch.Options{
		Dim:     cfg.Matcher.Dim,
		Workers: cfg.Matcher.Workers,
	}, logger.Named("matcher"))
}

// ensureIndex attaches the persisted index when it matches the matcher,
// and builds (and persists) a fresh one otherwise.
func (a *Archive) ensureIndex() error {
	path := a.cfg.IndexPath()
	if path != "" {
		idx, meta, err := facematch.LoadIndex(path)
		switch {
		case err == nil && meta.Matches(a.Matcher.Len(), a.Matcher.Dim(), a.Matcher.FaceIDsHash()):
			a.Matcher.SetIndex(idx)
			a.logger.Info("HNSW index loaded", zap.String("path", path), zap.Int("faces", idx.Len()))
			return nil
		case err == nil:
			a.logger.Info("HNSW index is stale, rebuilding",
				zap.Int("indexed", meta.FaceCount), zap.Int("faces", a.Matcher.Len()))
		case !errors.Is(err, facematch.ErrIndexNotFound):
			a.logger.Warn("failed to load HNSW index, rebuilding", zap.Error(err))
		}
	}
	_, err := BuildIndex(a.Matcher, path, nil)
	if err != nil {
		return err
	}
	a.logger.Info("HNSW index built", zap.Int("faces", a.Matcher.Index().Len()), zap.String("path", path))
	return nil
}

// BuildIndex builds the HNSW index of m, attaches it and saves it to path
// unless path is empty.
func BuildIndex(m *facematch.Matcher, path string, progress func()) (*facematch.Index, error) {
	idx := m.BuildIndex(progress)
	if path == "" {
		return idx, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return idx, fmt.Errorf("creating index directory: %w", err)
	}
	if err := idx.Save(path); err != nil {
		return idx, err
	}
	return idx, nil
}

// Config returns the configuration the archive was opened with.
func (a *Archive) Config() *config.Config { return a.cfg }

// Close releases every connection and the data directory lock.
func (a *Archive) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("release lock: %w", err))
		}
	}
	return errors.Join(errs...)
}

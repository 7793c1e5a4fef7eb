package mariadb

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/facematch"
)

// HintSource reads the subject names PhotoPrism attached to face markers of
// archive files. Files are matched to buckets by their "bkt_<prefix>" directory.
type HintSource struct {
	pool   *Pool
	logger *zap.Logger
}

// NewHintSource creates a hint source over an open pool.
func NewHintSource(pool *Pool, logger *zap.Logger) *HintSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HintSource{pool: pool, logger: logger}
}

// LoadHints returns subject names keyed by bucket prefix. An empty prefixes
// list returns every bucket PhotoPrism knows about.
func (h *HintSource) LoadHints(ctx context.Context, prefixes []string) (map[string][]string, error) {
	query := `
		SELECT f.file_name, s.subj_name
		FROM markers m
		JOIN files f ON f.file_uid = m.file_uid
		JOIN subjects s ON s.subj_uid = m.subj_uid
		WHERE m.marker_type = 'face'
		  AND m.marker_invalid = 0
		  AND s.subj_name <> ''
		ORDER BY f.file_name, m.marker_uid
	`

	rows, err := h.pool.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query marker subjects: %w", err)
	}
	defer rows.Close()

	wanted := make(map[string]struct{}, len(prefixes))
	for _, p := range prefixes {
		wanted[p] = struct{}{}
	}

	names := make(map[string][]string)
	for rows.Next() {
		var fileName, subject string
		if err := rows.Scan(&fileName, &subject); err != nil {
			return nil, fmt.Errorf("scan marker subject: %w", err)
		}
		prefix, ok := BucketPrefixFromPath(fileName)
		if !ok {
			continue
		}
		if _, ok := wanted[prefix]; len(wanted) > 0 && !ok {
			continue
		}
		names[prefix] = append(names[prefix], subject)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate marker subjects: %w", err)
	}

	hints := make(map[string][]string, len(names))
	for prefix, list := range names {
		hints[prefix] = facematch.MergeHints(list)
	}
	h.logger.Debug("loaded PhotoPrism name hints", zap.Int("buckets", len(hints)))
	return hints, nil
}

// BucketPrefixFromPath extracts the bucket prefix from a path containing a
// "bkt_<prefix>" directory.
func BucketPrefixFromPath(p string) (string, bool) {
	for _, segment := range strings.Split(path.Clean(strings.ReplaceAll(p, "\\", "/")), "/") {
		if prefix, ok := strings.CutPrefix(segment, "bkt_"); ok && prefix != "" {
			return prefix, true
		}
	}
	return "", false
}

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// SidecarHints reads legacy person names from bkt_<prefix>/sidecar.json
// (data.photos_asset.persons). Unreadable sidecars yield no hints.
type SidecarHints struct {
	root   string
	logger *zap.Logger
}

// NewSidecarHints creates a hint source over the buckets directory.
func NewSidecarHints(root string, logger *zap.Logger) *SidecarHints {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SidecarHints{root: root, logger: logger}
}

type sidecarDoc struct {
	Data struct {
		PhotosAsset struct {
			Persons []any `json:"persons"`
		} `json:"photos_asset"`
	} `json:"data"`
}

// LoadHints implements HintSource.
func (s *SidecarHints) LoadHints(ctx context.Context, prefixes []string) (map[string][]string, error) {
	out := make(map[string][]string)
	for i, prefix := range prefixes {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if names := s.read(prefix); len(names) > 0 {
			out[prefix] = names
		}
	}
	return out, nil
}

func (s *SidecarHints) read(prefix string) []string {
	path := filepath.Join(s.root, "bkt_"+prefix, "sidecar.json")
	data, err := os.ReadFile(path) //nolint:gosec // path is built from the configured buckets dir
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("reading sidecar failed", zap.String("path", path), zap.Error(err))
		}
		return nil
	}
	var doc sidecarDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Debug("decoding sidecar failed", zap.String("path", path), zap.Error(err))
		return nil
	}
	var names []string
	for _, p := range doc.Data.PhotosAsset.Persons {
		if name, ok := p.(string); ok && strings.TrimSpace(name) != "" {
			names = append(names, strings.TrimSpace(name))
		}
	}
	return names
}

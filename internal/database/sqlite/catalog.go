package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/facematch"
)

// legacyConfidenceMax filters rows written by an old detector that stored
// unbounded scores in the confidence column.
const legacyConfidenceMax = 1.01

// DefaultVariants are the variant roles whose faces are queued.
var DefaultVariants = []string{"raw_front", "proxy_front"}

// CatalogSource reads face detections from the archive's face_embeddings table.
type CatalogSource struct {
	db            *DB
	variants      []string
	minConfidence float64
	logger        *zap.Logger
}

// NewCatalogSource creates a detection source over an archive database.
// An empty variants list selects DefaultVariants.
func NewCatalogSource(db *DB, variants []string, minConfidence float64, logger *zap.Logger) *CatalogSource {
	if len(variants) == 0 {
		variants = DefaultVariants
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogSource{db: db, variants: variants, minConfidence: minConfidence, logger: logger}
}

// LoadDetections returns every usable detection. Face IDs are "<bucket_prefix>:<face_index>".
func (s *CatalogSource) LoadDetections(ctx context.Context) ([]facematch.Detection, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(s.variants)), ",")
	query := `
		SELECT f.bucket_id, f.variant_role, f.face_index, COALESCE(f.confidence, 0),
		       f.embedding, f.embedding_dim,
		       COALESCE(f.left, 0), COALESCE(f.top, 0), COALESCE(f.width, 0), COALESCE(f.height, 0),
		       b.bucket_prefix
		FROM face_embeddings AS f
		JOIN buckets AS b ON b.bucket_id = f.bucket_id
		WHERE f.variant_role IN (` + placeholders + `)
		  AND f.embedding IS NOT NULL
		  AND length(f.embedding) > 0
		  AND COALESCE(f.confidence, 0) >= ?
		ORDER BY b.bucket_prefix, f.face_index`

	args := make([]any, 0, len(s.variants)+1)
	for _, v := range s.variants {
		args = append(args, v)
	}
	args = append(args, s.minConfidence)

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying face embeddings: %w", err)
	}
	defer rows.Close()

	var (
		detections []facematch.Detection
		skipped    int
	)
	for rows.Next() {
		var (
			d    facematch.Detection
			blob []byte
			dim  int
			box  facematch.BBox
		)
		if err := rows.Scan(&d.BucketID, &d.Variant, &d.FaceIndex, &d.Confidence,
			&blob, &dim, &box.Left, &box.Top, &box.Width, &box.Height, &d.BucketPrefix); err != nil {
			return nil, fmt.Errorf("scanning face embedding: %w", err)
		}
		if d.Confidence > legacyConfidenceMax {
			skipped++
			continue
		}
		emb, ok := DecodeEmbedding(blob, dim)
		if !ok {
			skipped++
			continue
		}
		d.Embedding = emb
		d.BBox = box
		d.FaceID = d.BucketPrefix + ":" + strconv.Itoa(d.FaceIndex)
		detections = append(detections, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating face embeddings: %w", err)
	}

	s.logger.Info("loaded detections from archive database",
		zap.Int("detections", len(detections)),
		zap.Int("skipped", skipped))
	return detections, nil
}

// DecodeEmbedding decodes a little-endian float32 blob, truncated to dim
// values when dim is positive.
func DecodeEmbedding(blob []byte, dim int) ([]float32, bool) {
	n := len(blob) / 4
	if n == 0 {
		return nil, false
	}
	if dim > 0 && dim < n {
		n = dim
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out, true
}

// EncodeEmbedding is the inverse of DecodeEmbedding.
func EncodeEmbedding(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

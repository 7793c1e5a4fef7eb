package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/facematch"
)

// DetectionRepository reads and writes the face_detections table.
type DetectionRepository struct {
	pool          *Pool
	variants      []string
	minConfidence float64
	logger        *zap.Logger
}

// NewDetectionRepository creates a repository. An empty variants list loads every variant.
func NewDetectionRepository(pool *Pool, variants []string, minConfidence float64, logger *zap.Logger) *DetectionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if variants == nil {
		// pq encodes a nil slice as NULL, which would match nothing.
		variants = []string{}
	}
	return &DetectionRepository{pool: pool, variants: variants, minConfidence: minConfidence, logger: logger}
}

// detectionRow is one face_detections row before conversion.
type detectionRow struct {
	BucketID     string
	BucketPrefix string
	Variant      string
	FaceIndex    int
	Embedding    []float32
	BBox         []float64
	DetScore     float64
	PhotoWidth   sql.NullInt32
	PhotoHeight  sql.NullInt32
	Orientation  sql.NullInt32
}

// detection converts a row. Pixel boxes are converted to display-relative
// coordinates when the photo dimensions are known; otherwise the stored box
// is already relative.
func (r detectionRow) detection() (facematch.Detection, bool) {
	var (
		box facematch.BBox
		ok  bool
	)
	if r.PhotoWidth.Valid && r.PhotoHeight.Valid {
		orientation := 1
		if r.Orientation.Valid {
			orientation = int(r.Orientation.Int32)
		}
		box, ok = facematch.ConvertPixelBBoxToDisplayRelative(r.BBox, int(r.PhotoWidth.Int32), int(r.PhotoHeight.Int32), orientation)
	} else if len(r.BBox) == 4 {
		box, ok = facematch.NormalizeBBox(facematch.BBox{Left: r.BBox[0], Top: r.BBox[1], Width: r.BBox[2], Height: r.BBox[3]})
	}
	if !ok {
		return facematch.Detection{}, false
	}
	return facematch.Detection{
		FaceID:       r.BucketPrefix + ":" + strconv.Itoa(r.FaceIndex),
		BucketID:     r.BucketID,
		BucketPrefix: r.BucketPrefix,
		Variant:      r.Variant,
		FaceIndex:    r.FaceIndex,
		Embedding:    r.Embedding,
		BBox:         box,
		Confidence:   r.DetScore,
	}, true
}

// LoadDetections returns every detection matching the configured variants and confidence.
func (r *DetectionRepository) LoadDetections(ctx context.Context) ([]facematch.Detection, error) {
	query := `
		SELECT bucket_id, bucket_prefix, variant, face_index, embedding, bbox, det_score,
		       photo_width, photo_height, orientation
		FROM face_detections
		WHERE det_score >= $1
		  AND (cardinality($2::text[]) = 0 OR variant = ANY($2))
		ORDER BY bucket_prefix, face_index
	`

	rows, err := r.pool.Query(ctx, query, r.minConfidence, pq.Array(r.variants))
	if err != nil {
		return nil, fmt.Errorf("query face detections: %w", err)
	}
	defer rows.Close()

	var (
		detections []facematch.Detection
		skipped    int
	)
	for rows.Next() {
		var (
			row  detectionRow
			vec  pgvector.Vector
			bbox pq.Float64Array
		)
		if err := rows.Scan(&row.BucketID, &row.BucketPrefix, &row.Variant, &row.FaceIndex, &vec, &bbox,
			&row.DetScore, &row.PhotoWidth, &row.PhotoHeight, &row.Orientation); err != nil {
			return nil, fmt.Errorf("scan face detection: %w", err)
		}
		row.Embedding = vec.Slice()
		row.BBox = []float64(bbox)

		d, ok := row.detection()
		if !ok {
			skipped++
			continue
		}
		detections = append(detections, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face detections: %w", err)
	}

	r.logger.Info("loaded detections from postgres",
		zap.Int("detections", len(detections)),
		zap.Int("skipped", skipped))
	return detections, nil
}

// SaveDetections upserts detections with relative boxes. Used when importing
// an archive catalog.
func (r *DetectionRepository) SaveDetections(ctx context.Context, detections []facematch.Detection) error {
	if len(detections) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO face_detections (bucket_id, bucket_prefix, variant, face_index, embedding, dim, bbox, det_score)
		VALUES ($1, $2, $3, $4, $5::vector, $6, $7, $8)
		ON CONFLICT (bucket_prefix, variant, face_index) DO UPDATE SET
			bucket_id = EXCLUDED.bucket_id,
			embedding = EXCLUDED.embedding,
			dim = EXCLUDED.dim,
			bbox = EXCLUDED.bbox,
			det_score = EXCLUDED.det_score,
			photo_width = NULL,
			photo_height = NULL,
			orientation = NULL
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range detections {
		d := &detections[i]
		bbox := pq.Array([]float64{d.BBox.Left, d.BBox.Top, d.BBox.Width, d.BBox.Height})
		if _, err := stmt.ExecContext(ctx,
			d.BucketID,
			d.BucketPrefix,
			d.Variant,
			d.FaceIndex,
			pgvector.NewVector(d.Embedding),
			len(d.Embedding),
			bbox,
			d.Confidence,
		); err != nil {
			return fmt.Errorf("insert detection %s: %w", d.FaceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Count returns the number of stored detections.
func (r *DetectionRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM face_detections").Scan(&count); err != nil {
		return 0, fmt.Errorf("count detections: %w", err)
	}
	return count, nil
}

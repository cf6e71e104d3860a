package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/linkreach/linkreach/internal/catalog"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

func (r *Repository) CreateDataset(ctx context.Context, in catalog.CreateDatasetInput) (catalog.DatasetRecord, error) {
	columns := in.Columns
	if columns == nil {
		columns = []string{}
	}
	columnsJSON, err := json.Marshal(columns)
	if err != nil {
		return catalog.DatasetRecord{}, fmt.Errorf("marshal dataset columns: %w", err)
	}

	query := `
INSERT INTO dataset (file_id, filename, object_key, columns_json, total_rows, size_bytes, expires_at)
VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)
RETURNING created_at`
	var createdAt time.Time
	if err := r.db.QueryRowContext(ctx, query,
		in.FileID,
		in.Filename,
		in.ObjectKey,
		string(columnsJSON),
		in.TotalRows,
		in.SizeBytes,
		in.ExpiresAt,
	).Scan(&createdAt); err != nil {
		return catalog.DatasetRecord{}, fmt.Errorf("create dataset: %w", err)
	}
	return catalog.DatasetRecord{
		FileID:    in.FileID,
		Filename:  in.Filename,
		ObjectKey: in.ObjectKey,
		Columns:   columns,
		TotalRows: in.TotalRows,
		SizeBytes: in.SizeBytes,
		CreatedAt: createdAt,
		ExpiresAt: in.ExpiresAt,
	}, nil
}

func (r *Repository) GetDataset(ctx context.Context, fileID string) (catalog.DatasetRecord, error) {
	query := `
SELECT file_id, filename, object_key, columns_json, total_rows, size_bytes, created_at, expires_at
FROM dataset
WHERE file_id = $1`

	record, err := scanDataset(r.db.QueryRowContext(ctx, query, fileID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.DatasetRecord{}, catalog.ErrNotFound
		}
		return catalog.DatasetRecord{}, fmt.Errorf("get dataset: %w", err)
	}
	return record, nil
}

// DeleteDataset relies on ON DELETE CASCADE to drop the dataset's artifacts.
func (r *Repository) DeleteDataset(ctx context.Context, fileID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM dataset
WHERE file_id = $1`, fileID)
	if err != nil {
		return false, fmt.Errorf("delete dataset: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete dataset rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *Repository) ListExpiredDatasets(ctx context.Context, now time.Time, limit int) ([]catalog.DatasetRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT file_id, filename, object_key, columns_json, total_rows, size_bytes, created_at, expires_at
FROM dataset
WHERE expires_at <= $1
ORDER BY expires_at ASC
LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]catalog.DatasetRecord, 0)
	for rows.Next() {
		record, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dataset row: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataset rows: %w", err)
	}
	return out, nil
}

func (r *Repository) CountLiveDatasets(ctx context.Context, now time.Time) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM dataset
WHERE expires_at > $1`, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("count live datasets: %w", err)
	}
	return count, nil
}

func (r *Repository) CreateArtifact(ctx context.Context, in catalog.CreateArtifactInput) (catalog.ArtifactRecord, error) {
	query := `
INSERT INTO artifact (token, file_id, object_key, format, row_count, size_bytes, expression, expires_at)
SELECT $1, d.file_id, $3, $4, $5, $6, $7, $8
FROM dataset d
WHERE d.file_id = $2
RETURNING created_at`
	var createdAt time.Time
	if err := r.db.QueryRowContext(ctx, query,
		in.Token,
		in.FileID,
		in.ObjectKey,
		in.Format,
		in.RowCount,
		in.SizeBytes,
		in.Expression,
		in.ExpiresAt,
	).Scan(&createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.ArtifactRecord{}, catalog.ErrNotFound
		}
		return catalog.ArtifactRecord{}, fmt.Errorf("create artifact: %w", err)
	}
	return catalog.ArtifactRecord{
		Token:      in.Token,
		FileID:     in.FileID,
		ObjectKey:  in.ObjectKey,
		Format:     in.Format,
		RowCount:   in.RowCount,
		SizeBytes:  in.SizeBytes,
		Expression: in.Expression,
		CreatedAt:  createdAt,
		ExpiresAt:  in.ExpiresAt,
	}, nil
}

func (r *Repository) GetArtifact(ctx context.Context, token string) (catalog.ArtifactRecord, error) {
	query := `
SELECT token, file_id, object_key, format, row_count, size_bytes, expression, created_at, expires_at
FROM artifact
WHERE token = $1`

	record, err := scanArtifact(r.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.ArtifactRecord{}, catalog.ErrNotFound
		}
		return catalog.ArtifactRecord{}, fmt.Errorf("get artifact: %w", err)
	}
	return record, nil
}

func (r *Repository) ListArtifacts(ctx context.Context, fileID string) ([]catalog.ArtifactRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT token, file_id, object_key, format, row_count, size_bytes, expression, created_at, expires_at
FROM artifact
WHERE file_id = $1
ORDER BY created_at ASC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]catalog.ArtifactRecord, 0)
	for rows.Next() {
		record, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact row: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifact rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner) (catalog.DatasetRecord, error) {
	var (
		record      catalog.DatasetRecord
		columnsJSON []byte
	)
	if err := row.Scan(
		&record.FileID,
		&record.Filename,
		&record.ObjectKey,
		&columnsJSON,
		&record.TotalRows,
		&record.SizeBytes,
		&record.CreatedAt,
		&record.ExpiresAt,
	); err != nil {
		return catalog.DatasetRecord{}, err
	}
	if err := json.Unmarshal(columnsJSON, &record.Columns); err != nil {
		return catalog.DatasetRecord{}, fmt.Errorf("decode dataset columns: %w", err)
	}
	return record, nil
}

func scanArtifact(row rowScanner) (catalog.ArtifactRecord, error) {
	var record catalog.ArtifactRecord
	if err := row.Scan(
		&record.Token,
		&record.FileID,
		&record.ObjectKey,
		&record.Format,
		&record.RowCount,
		&record.SizeBytes,
		&record.Expression,
		&record.CreatedAt,
		&record.ExpiresAt,
	); err != nil {
		return catalog.ArtifactRecord{}, err
	}
	return record, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/septivank/meter-reading-service/internal/db"
	"github.com/septivank/meter-reading-service/internal/query"
)

const fieldReadingColumns = `f.id, f.customer_id, f.meter_number, f.previous_reading, f.current_reading,
	f.reading_date, f.status, f.notes, f.photo, f.created_at, f.updated_at`

// FieldReadingQuery parses list parameters for field readings.
var FieldReadingQuery = query.NewBuilder(map[string]query.Field{
	"customerId":      {Column: "f.customer_id", Kind: query.Text},
	"meterNumber":     {Column: "f.meter_number", Kind: query.Text},
	"previousReading": {Column: "f.previous_reading", Kind: query.Number},
	"currentReading":  {Column: "f.current_reading", Kind: query.Number},
	"readingDate":     {Column: "f.reading_date", Kind: query.Time},
	"status":          {Column: "f.status", Kind: query.Text},
	"createdAt":       {Column: "f.created_at", Kind: query.Time},
}, "-readingDate")

func scanFieldReading(row scanner) (*db.FieldReading, error) {
	var f db.FieldReading
	err := row.Scan(
		&f.ID,
		&f.CustomerID,
		&f.MeterNumber,
		&f.PreviousReading,
		&f.CurrentReading,
		&f.ReadingDate,
		&f.Status,
		&f.Notes,
		&f.Photo,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateFieldReading inserts a field reading and fills its timestamps.
func (r *Repository) CreateFieldReading(ctx context.Context, f *db.FieldReading) error {
	query := `
		INSERT INTO field_readings (
			id, customer_id, meter_number, previous_reading, current_reading,
			reading_date, status, notes, photo
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		f.ID,
		f.CustomerID,
		f.MeterNumber,
		f.PreviousReading,
		f.CurrentReading,
		f.ReadingDate,
		f.Status,
		f.Notes,
		f.Photo,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return classify(err, "create field reading")
	}
	return nil
}

// GetFieldReading returns a field reading by id.
func (r *Repository) GetFieldReading(ctx context.Context, id uuid.UUID) (*db.FieldReading, error) {
	query := `SELECT ` + fieldReadingColumns + ` FROM field_readings f WHERE f.id = $1`

	f, err := scanFieldReading(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classify(err, "query field reading")
	}
	return f, nil
}

// ListFieldReadings returns the field readings matching q.
func (r *Repository) ListFieldReadings(ctx context.Context, q query.Query) ([]db.FieldReading, error) {
	sql, args := buildList(`SELECT `+fieldReadingColumns+` FROM field_readings f`, nil, nil, q)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err, "query field readings")
	}
	defer rows.Close()

	readings := []db.FieldReading{}
	for rows.Next() {
		f, err := scanFieldReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan field reading: %w", err)
		}
		readings = append(readings, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return readings, nil
}

// SetFieldReadingStatus replaces the status and notes of a field reading.
func (r *Repository) SetFieldReadingStatus(ctx context.Context, id uuid.UUID, status db.FieldReadingStatus, notes *string) (*db.FieldReading, error) {
	query := `
		UPDATE field_readings f
		SET status = $1, notes = $2, updated_at = now()
		WHERE f.id = $3
		RETURNING ` + fieldReadingColumns

	f, err := scanFieldReading(r.pool.QueryRow(ctx, query, status, notes, id))
	if err != nil {
		return nil, classify(err, "update field reading status")
	}
	return f, nil
}

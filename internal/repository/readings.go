package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/meter-reading-service/internal/billing"
	"github.com/septivank/meter-reading-service/internal/db"
	"github.com/septivank/meter-reading-service/internal/query"
)

// ReadingQuery parses list parameters for meter readings.
var ReadingQuery = query.NewBuilder(map[string]query.Field{
	"customer":        {Column: "r.customer_id", Kind: query.UUID},
	"readingDate":     {Column: "r.reading_date", Kind: query.Time},
	"previousReading": {Column: "r.previous_reading", Kind: query.Number},
	"currentReading":  {Column: "r.current_reading", Kind: query.Number},
	"consumption":     {Column: "r.consumption", Kind: query.Number},
	"meterReader":     {Column: "r.meter_reader_id", Kind: query.UUID},
	"status":          {Column: "r.status", Kind: query.Text},
	"photo":           {Column: "r.photo", Kind: query.Text},
	"notes":           {Column: "r.notes", Kind: query.Text},
	"verifiedBy":      {Column: "r.verified_by", Kind: query.UUID},
	"verifiedAt":      {Column: "r.verified_at", Kind: query.Time},
	"billingMonth":    {Column: "r.billing_month", Kind: query.Text},
	"billingYear":     {Column: "r.billing_year", Kind: query.Integer},
	"createdAt":       {Column: "r.created_at", Kind: query.Time},
	"updatedAt":       {Column: "r.updated_at", Kind: query.Time},
}, "-readingDate")

// readingSelect joins the customer and reader summaries onto the readings in source,
// which must be aliased r. Customers are joined regardless of their active flag.
func readingSelect(source string) string {
	return `
		SELECT r.id, r.customer_id, COALESCE(c.name, ''), COALESCE(c.customer_id, ''),
			COALESCE(c.meter_number, ''), COALESCE(c.tariff_category, ''), COALESCE(c.power_capacity, 0),
			r.reading_date, r.previous_reading, r.current_reading, r.consumption,
			r.meter_reader_id, COALESCE(u.name, ''), r.status, r.photo, r.notes,
			r.longitude, r.latitude, r.verified_by, r.verified_at,
			r.billing_month, r.billing_year, r.created_at, r.updated_at
		FROM ` + source + `
		LEFT JOIN customers c ON c.id = r.customer_id
		LEFT JOIN users u ON u.id = r.meter_reader_id`
}

// ReadingFilter narrows FindReadings. Zero fields do not filter.
type ReadingFilter struct {
	CustomerID *uuid.UUID
	ReaderID   *uuid.UUID
	Period     *billing.Period
	Statuses   []db.ReadingStatus
	Before     *time.Time
}

func (f ReadingFilter) clauses() ([]string, []any) {
	var (
		filters []string
		args    []any
	)
	add := func(format string, v any) {
		args = append(args, v)
		filters = append(filters, fmt.Sprintf(format, len(args)))
	}

	if f.CustomerID != nil {
		add("r.customer_id = $%d", *f.CustomerID)
	}
	if f.ReaderID != nil {
		add("r.meter_reader_id = $%d", *f.ReaderID)
	}
	if f.Period != nil {
		add("r.billing_month = $%d", f.Period.Month)
		add("r.billing_year = $%d", f.Period.Year)
	}
	if len(f.Statuses) > 0 {
		add("r.status = ANY($%d)", statusStrings(f.Statuses))
	}
	if f.Before != nil {
		add("r.reading_date < $%d", *f.Before)
	}
	return filters, args
}

// ReadingPatch lists the reading fields that may change after creation.
type ReadingPatch struct {
	CurrentReading *float64
	Consumption    *float64
	MeterReaderID  *uuid.UUID
	Status         *db.ReadingStatus
	Photo          *string
	Notes          *string
	Location       *db.GeoPoint
	VerifiedBy     *uuid.UUID
	VerifiedAt     *time.Time
}

func scanReading(row scanner) (*db.MeterReading, error) {
	var (
		m        db.MeterReading
		lng, lat float64
	)
	err := row.Scan(
		&m.ID,
		&m.Customer.ID,
		&m.Customer.Name,
		&m.Customer.CustomerID,
		&m.Customer.MeterNumber,
		&m.Customer.TariffCategory,
		&m.Customer.PowerCapacity,
		&m.ReadingDate,
		&m.PreviousReading,
		&m.CurrentReading,
		&m.Consumption,
		&m.MeterReader.ID,
		&m.MeterReader.Name,
		&m.Status,
		&m.Photo,
		&m.Notes,
		&lng,
		&lat,
		&m.VerifiedBy,
		&m.VerifiedAt,
		&m.BillingMonth,
		&m.BillingYear,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Location = db.NewGeoPoint(lng, lat)
	return &m, nil
}

func (r *Repository) queryReadings(ctx context.Context, sql string, args ...any) ([]db.MeterReading, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err, "query meter readings")
	}
	defer rows.Close()

	readings := []db.MeterReading{}
	for rows.Next() {
		m, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meter reading: %w", err)
		}
		readings = append(readings, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return readings, nil
}

// InsertReading stores a new reading and returns it with its joined summaries.
func (r *Repository) InsertReading(ctx context.Context, m *db.MeterReading) (*db.MeterReading, error) {
	query := `
		WITH changed AS (
			INSERT INTO meter_readings (
				id, customer_id, reading_date, previous_reading, current_reading,
				consumption, meter_reader_id, status, photo, notes, longitude, latitude,
				billing_month, billing_year
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING *
		)` + readingSelect("changed r")

	created, err := scanReading(r.pool.QueryRow(ctx, query,
		m.ID,
		m.Customer.ID,
		m.ReadingDate,
		m.PreviousReading,
		m.CurrentReading,
		m.Consumption,
		m.MeterReader.ID,
		m.Status,
		m.Photo,
		m.Notes,
		m.Location.Lng(),
		m.Location.Lat(),
		m.BillingMonth,
		m.BillingYear,
	))
	if err != nil {
		return nil, classify(err, "insert meter reading")
	}
	return created, nil
}

// GetReading returns a reading by id.
func (r *Repository) GetReading(ctx context.Context, id uuid.UUID) (*db.MeterReading, error) {
	query := readingSelect("meter_readings r") + ` WHERE r.id = $1`

	m, err := scanReading(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classify(err, "query meter reading")
	}
	return m, nil
}

// FindReadings returns the readings matching both f and q.
func (r *Repository) FindReadings(ctx context.Context, f ReadingFilter, q query.Query) ([]db.MeterReading, error) {
	filters, args := f.clauses()
	sql, args := buildList(readingSelect("meter_readings r"), filters, args, q)
	return r.queryReadings(ctx, sql, args...)
}

// LatestReading returns the customer's most recent reading by reading date.
func (r *Repository) LatestReading(ctx context.Context, customerID uuid.UUID) (*db.MeterReading, error) {
	readings, err := r.FindReadings(ctx, ReadingFilter{CustomerID: &customerID}, newestFirst(1))
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, ErrNotFound
	}
	return &readings[0], nil
}

// PriorReadings returns up to limit readings of the customer dated strictly before
// before, newest first.
func (r *Repository) PriorReadings(ctx context.Context, customerID uuid.UUID, before time.Time, limit int) ([]db.MeterReading, error) {
	return r.FindReadings(ctx, ReadingFilter{CustomerID: &customerID, Before: &before}, newestFirst(limit))
}

// UpdateReading applies p and returns the updated reading.
func (r *Repository) UpdateReading(ctx context.Context, id uuid.UUID, p ReadingPatch) (*db.MeterReading, error) {
	var up patch
	if p.CurrentReading != nil {
		up.set("current_reading", *p.CurrentReading)
	}
	if p.Consumption != nil {
		up.set("consumption", *p.Consumption)
	}
	if p.MeterReaderID != nil {
		up.set("meter_reader_id", *p.MeterReaderID)
	}
	if p.Status != nil {
		up.set("status", *p.Status)
	}
	if p.Photo != nil {
		up.set("photo", *p.Photo)
	}
	if p.Notes != nil {
		up.set("notes", *p.Notes)
	}
	if p.Location != nil {
		up.set("longitude", p.Location.Lng())
		up.set("latitude", p.Location.Lat())
	}
	if p.VerifiedBy != nil {
		up.set("verified_by", *p.VerifiedBy)
	}
	if p.VerifiedAt != nil {
		up.set("verified_at", *p.VerifiedAt)
	}
	if up.empty() {
		return r.GetReading(ctx, id)
	}

	sql, args := up.update("meter_readings", id, "")
	query := `WITH changed AS (` + sql + ` RETURNING *)` + readingSelect("changed r")

	m, err := scanReading(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, classify(err, "update meter reading")
	}
	return m, nil
}

// VerifyReading marks a reading verified by verifier in one statement.
func (r *Repository) VerifyReading(ctx context.Context, id uuid.UUID, verifier uuid.UUID, at time.Time) (*db.MeterReading, error) {
	query := `
		WITH changed AS (
			UPDATE meter_readings
			SET status = $1, verified_by = $2, verified_at = $3, updated_at = now()
			WHERE id = $4
			RETURNING *
		)` + readingSelect("changed r")

	m, err := scanReading(r.pool.QueryRow(ctx, query, db.StatusVerified, verifier, at, id))
	if err != nil {
		return nil, classify(err, "verify meter reading")
	}
	return m, nil
}

// DeleteReading removes a reading permanently.
func (r *Repository) DeleteReading(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM meter_readings WHERE id = $1`, id)
	if err != nil {
		return classify(err, "delete meter reading")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func newestFirst(limit int) query.Query {
	return query.Query{
		Sort:  []query.SortKey{{Column: "r.reading_date", Desc: true}},
		Page:  1,
		Limit: limit,
	}
}

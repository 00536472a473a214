package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/septivank/meter-reading-service/internal/billing"
	"github.com/septivank/meter-reading-service/internal/db"
)

// MonthTotal aggregates the readings of one billing month.
type MonthTotal struct {
	Month            string
	Count            int
	TotalConsumption float64
	AvgConsumption   float64
}

// ReaderTally counts a meter reader's readings by status.
type ReaderTally struct {
	ReaderID       uuid.UUID
	ReaderName     string
	Total          int
	Verified       int
	Disputed       int
	Pending        int
	AvgConsumption float64
}

// MonthStats summarises consumption per upper-cased billing month.
type MonthStats struct {
	Month            string
	Count            int
	AvgConsumption   float64
	MinConsumption   float64
	MaxConsumption   float64
	TotalConsumption float64
}

// MonthlyTotals groups the year's readings with one of statuses by billing month.
func (r *Repository) MonthlyTotals(ctx context.Context, year int, statuses []db.ReadingStatus) ([]MonthTotal, error) {
	query := `
		SELECT billing_month, COUNT(*), COALESCE(SUM(consumption), 0), COALESCE(AVG(consumption), 0)
		FROM meter_readings
		WHERE billing_year = $1 AND status = ANY($2)
		GROUP BY billing_month
	`

	rows, err := r.pool.Query(ctx, query, year, statusStrings(statuses))
	if err != nil {
		return nil, classify(err, "query monthly totals")
	}
	defer rows.Close()

	var totals []MonthTotal
	for rows.Next() {
		var t MonthTotal
		if err := rows.Scan(&t.Month, &t.Count, &t.TotalConsumption, &t.AvgConsumption); err != nil {
			return nil, fmt.Errorf("failed to scan monthly total: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return totals, nil
}

// ReaderTallies counts each reader's readings in the period. Readers without a
// user record are left out.
func (r *Repository) ReaderTallies(ctx context.Context, p billing.Period) ([]ReaderTally, error) {
	query := `
		SELECT u.id, u.name, COUNT(*),
			COUNT(*) FILTER (WHERE r.status = 'verified'),
			COUNT(*) FILTER (WHERE r.status = 'disputed'),
			COUNT(*) FILTER (WHERE r.status = 'pending'),
			COALESCE(AVG(r.consumption), 0)
		FROM meter_readings r
		JOIN users u ON u.id = r.meter_reader_id
		WHERE r.billing_month = $1 AND r.billing_year = $2
		GROUP BY u.id, u.name
	`

	rows, err := r.pool.Query(ctx, query, p.Month, p.Year)
	if err != nil {
		return nil, classify(err, "query reader performance")
	}
	defer rows.Close()

	var tallies []ReaderTally
	for rows.Next() {
		var t ReaderTally
		err := rows.Scan(&t.ReaderID, &t.ReaderName, &t.Total, &t.Verified, &t.Disputed, &t.Pending, &t.AvgConsumption)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reader tally: %w", err)
		}
		tallies = append(tallies, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return tallies, nil
}

// ConsumptionStats summarises every non-disputed reading by billing month.
func (r *Repository) ConsumptionStats(ctx context.Context) ([]MonthStats, error) {
	query := `
		SELECT upper(billing_month), COUNT(*), AVG(consumption), MIN(consumption),
			MAX(consumption), SUM(consumption)
		FROM meter_readings
		WHERE status <> $1
		GROUP BY upper(billing_month)
	`

	rows, err := r.pool.Query(ctx, query, db.StatusDisputed)
	if err != nil {
		return nil, classify(err, "query reading stats")
	}
	defer rows.Close()

	var stats []MonthStats
	for rows.Next() {
		var s MonthStats
		err := rows.Scan(&s.Month, &s.Count, &s.AvgConsumption, &s.MinConsumption, &s.MaxConsumption, &s.TotalConsumption)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return stats, nil
}

func statusStrings(statuses []db.ReadingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

package anomaly

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/meter-reading-service/internal/db"
	"golang.org/x/sync/errgroup"
)

// Detector flags consumption that deviates from a customer's recent baseline
type Detector struct {
	baselineSize int
}

// NewDetector creates a detector that averages up to baselineSize prior readings
func NewDetector(baselineSize int) *Detector {
	if baselineSize <= 0 {
		baselineSize = 3
	}
	return &Detector{baselineSize: baselineSize}
}

// BaselineSize is the maximum number of prior readings averaged.
func (d *Detector) BaselineSize() int {
	return d.baselineSize
}

// Evaluation is the comparison of one consumption value with its baseline
type Evaluation struct {
	Baseline      float64
	PercentChange float64
	Anomalous     bool
}

// Evaluate compares consumption with the mean of prior (newest first; only the
// first BaselineSize values are used). ok is false when there is nothing to
// compare against. A zero baseline yields a zero percent change.
func (d *Detector) Evaluate(consumption float64, prior []float64, threshold float64) (eval Evaluation, ok bool) {
	if len(prior) == 0 {
		return Evaluation{}, false
	}
	if len(prior) > d.baselineSize {
		prior = prior[:d.baselineSize]
	}

	sum := 0.0
	for _, v := range prior {
		sum += v
	}
	eval.Baseline = sum / float64(len(prior))

	if eval.Baseline > 0 {
		eval.PercentChange = (consumption - eval.Baseline) / eval.Baseline * 100
	}
	eval.Anomalous = math.Abs(eval.PercentChange) > threshold

	return eval, true
}

// PriorLookup returns up to limit readings of customer strictly before date, newest first.
type PriorLookup func(ctx context.Context, customerID uuid.UUID, before time.Time, limit int) ([]db.MeterReading, error)

// Finding is a reading flagged as anomalous
type Finding struct {
	Reading                db.MeterReading   `json:"reading"`
	PercentChange          float64           `json:"percentChange"`
	AvgPreviousConsumption float64           `json:"avgPreviousConsumption"`
	PreviousReadings       []db.MeterReading `json:"previousReadings"`
}

// Scan evaluates every reading against its own customer's history. Lookups run
// with at most concurrency in flight; findings keep the order of readings.
func (d *Detector) Scan(ctx context.Context, readings []db.MeterReading, threshold float64, concurrency int, lookup PriorLookup) ([]Finding, error) {
	results := make([]*Finding, len(readings))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i := range readings {
		reading := readings[i]
		if reading.Customer.ID == uuid.Nil {
			continue
		}
		g.Go(func() error {
			prior, err := lookup(gctx, reading.Customer.ID, reading.ReadingDate, d.baselineSize)
			if err != nil {
				return fmt.Errorf("failed to load prior readings for %s: %w", reading.ID, err)
			}

			values := make([]float64, len(prior))
			for j, p := range prior {
				values[j] = p.Consumption
			}

			eval, ok := d.Evaluate(reading.Consumption, values, threshold)
			if !ok || !eval.Anomalous {
				return nil
			}
			results[i] = &Finding{
				Reading:                reading,
				PercentChange:          eval.PercentChange,
				AvgPreviousConsumption: eval.Baseline,
				PreviousReadings:       prior,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	findings := make([]Finding, 0)
	for _, f := range results {
		if f != nil {
			findings = append(findings, *f)
		}
	}
	return findings, nil
}

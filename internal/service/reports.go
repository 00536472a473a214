package service

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/meter-reading-service/internal/anomaly"
	"github.com/septivank/meter-reading-service/internal/apperr"
	"github.com/septivank/meter-reading-service/internal/billing"
	"github.com/septivank/meter-reading-service/internal/db"
	"github.com/septivank/meter-reading-service/internal/repository"
	"go.uber.org/zap"
)

// ReportStore supplies the rows reports are built from.
type ReportStore interface {
	ReadingFinder
	PriorReadings(ctx context.Context, customerID uuid.UUID, before time.Time, limit int) ([]db.MeterReading, error)
	MonthlyTotals(ctx context.Context, year int, statuses []db.ReadingStatus) ([]repository.MonthTotal, error)
	ReaderTallies(ctx context.Context, p billing.Period) ([]repository.ReaderTally, error)
	ConsumptionStats(ctx context.Context) ([]repository.MonthStats, error)
}

// anomalyStatuses are the statuses screened for anomalies; disputed readings are already flagged.
var anomalyStatuses = []db.ReadingStatus{db.StatusVerified, db.StatusCorrected, db.StatusPending}

type TariffTotal struct {
	Count            int     `json:"count"`
	TotalConsumption float64 `json:"totalConsumption"`
}

type MonthlyReport struct {
	Month               string                            `json:"month"`
	Year                int                               `json:"year"`
	TotalReadings       int                               `json:"totalReadings"`
	TotalConsumption    float64                           `json:"totalConsumption"`
	ConsumptionByTariff map[db.TariffCategory]TariffTotal `json:"consumptionByTariff"`
	MeterReadings       []db.MeterReading                 `json:"meterReadings"`
}

type MonthConsumption struct {
	Month            string  `json:"month"`
	Count            int     `json:"count"`
	TotalConsumption float64 `json:"totalConsumption"`
	AvgConsumption   float64 `json:"avgConsumption"`
}

type YearlyReport struct {
	Year                   int                `json:"year"`
	TotalYearlyConsumption float64            `json:"totalYearlyConsumption"`
	MonthlyConsumption     []MonthConsumption `json:"monthlyConsumption"`
}

type CustomerHistory struct {
	Customer           db.CustomerSummary `json:"customer"`
	TotalReadings      int                `json:"totalReadings"`
	TotalConsumption   float64            `json:"totalConsumption"`
	AvgConsumption     float64            `json:"avgConsumption"`
	ConsumptionByMonth map[string]float64 `json:"consumptionByMonth"`
	MeterReadings      []db.MeterReading  `json:"meterReadings"`
}

type ReaderPerformance struct {
	ReaderID         uuid.UUID `json:"id"`
	ReaderName       string    `json:"readerName"`
	TotalReadings    int       `json:"totalReadings"`
	VerifiedReadings int       `json:"verifiedReadings"`
	DisputedReadings int       `json:"disputedReadings"`
	PendingReadings  int       `json:"pendingReadings"`
	VerificationRate float64   `json:"verificationRate"`
	DisputeRate      float64   `json:"disputeRate"`
	AvgConsumption   float64   `json:"avgConsumption"`
}

type ReaderPerformanceReport struct {
	Month             string              `json:"month"`
	Year              int                 `json:"year"`
	ReaderPerformance []ReaderPerformance `json:"readerPerformance"`
}

type MonthStat struct {
	Month            string  `json:"month"`
	NumReadings      int     `json:"numReadings"`
	AvgConsumption   float64 `json:"avgConsumption"`
	MinConsumption   float64 `json:"minConsumption"`
	MaxConsumption   float64 `json:"maxConsumption"`
	TotalConsumption float64 `json:"totalConsumption"`
}

type AnomalyReport struct {
	Month            string            `json:"month"`
	Year             int               `json:"year"`
	AnomalyThreshold float64           `json:"anomalyThreshold"`
	TotalAnomalies   int               `json:"totalAnomalies"`
	Anomalies        []anomaly.Finding `json:"anomalies"`
}

// ReportService aggregates readings into consumption reports.
type ReportService struct {
	store            ReportStore
	customers        CustomerFinder
	detector         *anomaly.Detector
	defaultThreshold float64
	concurrency      int
	logger           *zap.Logger
}

func NewReportService(
	store ReportStore,
	customers CustomerFinder,
	detector *anomaly.Detector,
	defaultThreshold float64,
	concurrency int,
	logger *zap.Logger,
) *ReportService {
	return &ReportService{
		store:            store,
		customers:        customers,
		detector:         detector,
		defaultThreshold: defaultThreshold,
		concurrency:      concurrency,
		logger:           logger,
	}
}

// Monthly reports the verified and corrected readings of a billing period.
func (s *ReportService) Monthly(ctx context.Context, p billing.Period) (*MonthlyReport, error) {
	readings, err := s.store.FindReadings(ctx, repository.ReadingFilter{
		Period:   &p,
		Statuses: db.ReportableStatuses,
	}, newestFirst(0))
	if err != nil {
		return nil, err
	}
	report := SummarizeMonth(p, readings)
	return &report, nil
}

// Yearly reports consumption per billing month of year.
func (s *ReportService) Yearly(ctx context.Context, year int) (*YearlyReport, error) {
	totals, err := s.store.MonthlyTotals(ctx, year, db.ReportableStatuses)
	if err != nil {
		return nil, err
	}
	report := SummarizeYear(year, totals)
	return &report, nil
}

// CustomerHistory reports an active customer's verified consumption over time.
func (s *ReportService) CustomerHistory(ctx context.Context, customerID uuid.UUID) (*CustomerHistory, error) {
	customer, err := s.customers.FindActiveCustomer(ctx, customerID)
	if err != nil {
		return nil, translate(err, customerNotFound)
	}

	readings, err := s.store.FindReadings(ctx, repository.ReadingFilter{
		CustomerID: &customerID,
		Statuses:   db.ReportableStatuses,
	}, oldestFirst())
	if err != nil {
		return nil, err
	}

	history := SummarizeHistory(customer.Summary(), readings)
	return &history, nil
}

// ReaderPerformance ranks meter readers by the readings they took in the period.
func (s *ReportService) ReaderPerformance(ctx context.Context, p billing.Period) (*ReaderPerformanceReport, error) {
	tallies, err := s.store.ReaderTallies(ctx, p)
	if err != nil {
		return nil, err
	}
	return &ReaderPerformanceReport{
		Month:             p.Month,
		Year:              p.Year,
		ReaderPerformance: RankReaders(tallies),
	}, nil
}

// Stats summarises non-disputed readings per month, in calendar order.
func (s *ReportService) Stats(ctx context.Context) ([]MonthStat, error) {
	stats, err := s.store.ConsumptionStats(ctx)
	if err != nil {
		return nil, err
	}
	return OrderStats(stats), nil
}

// ParseThreshold reads an optional percentage threshold. An empty value yields def.
func ParseThreshold(raw string, def float64) (float64, error) {
	if raw == "" {
		return def, nil
	}
	t, err := parseFinite(raw)
	if err != nil || t < 0 {
		return 0, apperr.Validation("threshold must be a non-negative number")
	}
	return t, nil
}

// Anomalies flags readings of the period whose consumption moved more than
// threshold percent away from the customer's recent average. An empty
// threshold uses the configured default.
func (s *ReportService) Anomalies(ctx context.Context, p billing.Period, threshold string) (*AnomalyReport, error) {
	t, err := ParseThreshold(threshold, s.defaultThreshold)
	if err != nil {
		return nil, err
	}

	readings, err := s.store.FindReadings(ctx, repository.ReadingFilter{
		Period:   &p,
		Statuses: anomalyStatuses,
	}, newestFirst(0))
	if err != nil {
		return nil, err
	}

	findings, err := s.detector.Scan(ctx, readings, t, s.concurrency, s.store.PriorReadings)
	if err != nil {
		return nil, err
	}

	s.logger.Info("anomaly scan completed",
		zap.String("billing_period", p.String()),
		zap.Int("readings", len(readings)),
		zap.Int("anomalies", len(findings)),
		zap.Float64("threshold", t),
		zap.Int("baseline_size", s.detector.BaselineSize()),
	)

	return &AnomalyReport{
		Month:            p.Month,
		Year:             p.Year,
		AnomalyThreshold: t,
		TotalAnomalies:   len(findings),
		Anomalies:        findings,
	}, nil
}

// SummarizeMonth totals readings overall and per tariff category.
func SummarizeMonth(p billing.Period, readings []db.MeterReading) MonthlyReport {
	report := MonthlyReport{
		Month:               p.Month,
		Year:                p.Year,
		TotalReadings:       len(readings),
		ConsumptionByTariff: map[db.TariffCategory]TariffTotal{},
		MeterReadings:       readings,
	}
	for _, m := range readings {
		report.TotalConsumption += m.Consumption
		if tariff := m.Customer.TariffCategory; tariff != "" {
			t := report.ConsumptionByTariff[tariff]
			t.Count++
			t.TotalConsumption += m.Consumption
			report.ConsumptionByTariff[tariff] = t
		}
	}
	return report
}

// SummarizeYear orders the month totals by calendar and sums them.
func SummarizeYear(year int, totals []repository.MonthTotal) YearlyReport {
	report := YearlyReport{Year: year, MonthlyConsumption: make([]MonthConsumption, 0, len(totals))}
	for _, t := range totals {
		report.TotalYearlyConsumption += t.TotalConsumption
		report.MonthlyConsumption = append(report.MonthlyConsumption, MonthConsumption{
			Month:            t.Month,
			Count:            t.Count,
			TotalConsumption: t.TotalConsumption,
			AvgConsumption:   t.AvgConsumption,
		})
	}
	slices.SortFunc(report.MonthlyConsumption, func(a, b MonthConsumption) int {
		return byMonth(a.Month, b.Month)
	})
	return report
}

// SummarizeHistory expects readings in ascending date order. When a billing
// month has several readings, the last one is reported for that month.
func SummarizeHistory(customer db.CustomerSummary, readings []db.MeterReading) CustomerHistory {
	h := CustomerHistory{
		Customer:           customer,
		TotalReadings:      len(readings),
		ConsumptionByMonth: make(map[string]float64, len(readings)),
		MeterReadings:      readings,
	}
	for _, m := range readings {
		h.TotalConsumption += m.Consumption
		h.ConsumptionByMonth[billing.Period{Month: m.BillingMonth, Year: m.BillingYear}.String()] = m.Consumption
	}
	if len(readings) > 0 {
		h.AvgConsumption = h.TotalConsumption / float64(len(readings))
	}
	return h
}

// RankReaders derives rates and orders readers by total readings, busiest first.
func RankReaders(tallies []repository.ReaderTally) []ReaderPerformance {
	out := make([]ReaderPerformance, 0, len(tallies))
	for _, t := range tallies {
		rp := ReaderPerformance{
			ReaderID:         t.ReaderID,
			ReaderName:       t.ReaderName,
			TotalReadings:    t.Total,
			VerifiedReadings: t.Verified,
			DisputedReadings: t.Disputed,
			PendingReadings:  t.Pending,
			AvgConsumption:   t.AvgConsumption,
		}
		if t.Total > 0 {
			rp.VerificationRate = float64(t.Verified) / float64(t.Total)
			rp.DisputeRate = float64(t.Disputed) / float64(t.Total)
		}
		out = append(out, rp)
	}
	slices.SortStableFunc(out, func(a, b ReaderPerformance) int {
		if c := cmp.Compare(b.TotalReadings, a.TotalReadings); c != 0 {
			return c
		}
		return cmp.Compare(a.ReaderName, b.ReaderName)
	})
	return out
}

// OrderStats puts monthly stats in calendar order.
func OrderStats(stats []repository.MonthStats) []MonthStat {
	out := make([]MonthStat, 0, len(stats))
	for _, s := range stats {
		out = append(out, MonthStat{
			Month:            s.Month,
			NumReadings:      s.Count,
			AvgConsumption:   s.AvgConsumption,
			MinConsumption:   s.MinConsumption,
			MaxConsumption:   s.MaxConsumption,
			TotalConsumption: s.TotalConsumption,
		})
	}
	slices.SortFunc(out, func(a, b MonthStat) int {
		return byMonth(a.Month, b.Month)
	})
	return out
}

// byMonth orders month names by calendar; unknown names sort last, alphabetically.
func byMonth(a, b string) int {
	ia, ib := billing.MonthIndex(a), billing.MonthIndex(b)
	if ia == 0 {
		ia = 13
	}
	if ib == 0 {
		ib = 13
	}
	if c := cmp.Compare(ia, ib); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}

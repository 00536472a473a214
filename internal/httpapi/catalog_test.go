package httpapi

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/meter-reading-service/internal/billing"
	"github.com/septivank/meter-reading-service/internal/db"
	"github.com/septivank/meter-reading-service/internal/query"
	"github.com/septivank/meter-reading-service/internal/repository"
)

// catalog is an in-memory customer and meter reading store.
type catalog struct {
	mu        sync.Mutex
	customers map[uuid.UUID]*db.Customer
	readings  []db.MeterReading
	radius    float64
}

func newCatalog() *catalog {
	return &catalog{customers: map[uuid.UUID]*db.Customer{}}
}

func (s *catalog) CreateCustomer(_ context.Context, c *db.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.customers {
		if existing.CustomerID == c.CustomerID || existing.MeterNumber == c.MeterNumber {
			return repository.ErrDuplicate
		}
	}
	copied := *c
	s.customers[c.ID] = &copied
	return nil
}

func (s *catalog) FindActiveCustomer(_ context.Context, id uuid.UUID) (*db.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.customers[id]; ok && c.Active {
		copied := *c
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (s *catalog) ListCustomers(context.Context, query.Query) ([]db.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.Customer
	for _, c := range s.customers {
		if c.Active {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *catalog) UpdateCustomer(_ context.Context, id uuid.UUID, p repository.CustomerPatch) (*db.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok || !c.Active {
		return nil, repository.ErrNotFound
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Address != nil {
		c.Address = *p.Address
	}
	copied := *c
	return &copied, nil
}

func (s *catalog) DeactivateCustomer(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok || !c.Active {
		return repository.ErrNotFound
	}
	c.Active = false
	return nil
}

func (s *catalog) SearchCustomers(_ context.Context, term string) ([]db.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.Customer
	for _, c := range s.customers {
		if c.Active && strings.Contains(strings.ToLower(c.Name), strings.ToLower(term)) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *catalog) CustomersWithin(_ context.Context, _, _, radius float64) ([]db.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.radius = radius
	return nil, nil
}

func (s *catalog) FindReadings(_ context.Context, f repository.ReadingFilter, q query.Query) ([]db.MeterReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []db.MeterReading{}
	for _, m := range s.readings {
		switch {
		case f.CustomerID != nil && m.Customer.ID != *f.CustomerID:
		case f.ReaderID != nil && m.MeterReader.ID != *f.ReaderID:
		case f.Period != nil && (m.BillingMonth != f.Period.Month || m.BillingYear != f.Period.Year):
		case len(f.Statuses) > 0 && !slices.Contains(f.Statuses, m.Status):
		case f.Before != nil && !m.ReadingDate.Before(*f.Before):
		default:
			out = append(out, m)
		}
	}

	desc := len(q.Sort) > 0 && q.Sort[0].Desc
	slices.SortStableFunc(out, func(a, b db.MeterReading) int {
		if desc {
			return b.ReadingDate.Compare(a.ReadingDate)
		}
		return a.ReadingDate.Compare(b.ReadingDate)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *catalog) InsertReading(_ context.Context, m *db.MeterReading) (*db.MeterReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := *m
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt
	s.readings = append(s.readings, created)
	return &created, nil
}

func (s *catalog) index(id uuid.UUID) int {
	return slices.IndexFunc(s.readings, func(m db.MeterReading) bool { return m.ID == id })
}

func (s *catalog) GetReading(_ context.Context, id uuid.UUID) (*db.MeterReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return nil, repository.ErrNotFound
	}
	m := s.readings[i]
	return &m, nil
}

func (s *catalog) LatestReading(ctx context.Context, customerID uuid.UUID) (*db.MeterReading, error) {
	readings, _ := s.FindReadings(ctx, repository.ReadingFilter{CustomerID: &customerID}, newestFirst(1))
	if len(readings) == 0 {
		return nil, repository.ErrNotFound
	}
	return &readings[0], nil
}

func (s *catalog) PriorReadings(ctx context.Context, customerID uuid.UUID, before time.Time, limit int) ([]db.MeterReading, error) {
	return s.FindReadings(ctx, repository.ReadingFilter{CustomerID: &customerID, Before: &before}, newestFirst(limit))
}

func (s *catalog) UpdateReading(_ context.Context, id uuid.UUID, p repository.ReadingPatch) (*db.MeterReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return nil, repository.ErrNotFound
	}
	m := &s.readings[i]
	if p.CurrentReading != nil {
		m.CurrentReading = *p.CurrentReading
	}
	if p.Consumption != nil {
		m.Consumption = *p.Consumption
	}
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.Notes != nil {
		m.Notes = p.Notes
	}
	copied := *m
	return &copied, nil
}

func (s *catalog) VerifyReading(_ context.Context, id uuid.UUID, verifier uuid.UUID, at time.Time) (*db.MeterReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return nil, repository.ErrNotFound
	}
	m := &s.readings[i]
	m.Status = db.StatusVerified
	m.VerifiedBy = &verifier
	m.VerifiedAt = &at
	copied := *m
	return &copied, nil
}

func (s *catalog) DeleteReading(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return repository.ErrNotFound
	}
	s.readings = slices.Delete(s.readings, i, i+1)
	return nil
}

func (s *catalog) MonthlyTotals(_ context.Context, year int, statuses []db.ReadingStatus) ([]repository.MonthTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.MonthTotal
	for _, m := range s.readings {
		if m.BillingYear != year || !slices.Contains(statuses, m.Status) {
			continue
		}
		i := slices.IndexFunc(out, func(t repository.MonthTotal) bool { return t.Month == m.BillingMonth })
		if i < 0 {
			out = append(out, repository.MonthTotal{Month: m.BillingMonth})
			i = len(out) - 1
		}
		out[i].Count++
		out[i].TotalConsumption += m.Consumption
		out[i].AvgConsumption = out[i].TotalConsumption / float64(out[i].Count)
	}
	return out, nil
}

func (s *catalog) ReaderTallies(_ context.Context, p billing.Period) ([]repository.ReaderTally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.ReaderTally
	for _, m := range s.readings {
		if m.BillingMonth != p.Month || m.BillingYear != p.Year {
			continue
		}
		i := slices.IndexFunc(out, func(t repository.ReaderTally) bool { return t.ReaderID == m.MeterReader.ID })
		if i < 0 {
			out = append(out, repository.ReaderTally{ReaderID: m.MeterReader.ID, ReaderName: m.MeterReader.Name})
			i = len(out) - 1
		}
		t := &out[i]
		t.AvgConsumption = (t.AvgConsumption*float64(t.Total) + m.Consumption) / float64(t.Total+1)
		t.Total++
		switch m.Status {
		case db.StatusVerified:
			t.Verified++
		case db.StatusDisputed:
			t.Disputed++
		case db.StatusPending:
			t.Pending++
		}
	}
	return out, nil
}

func (s *catalog) ConsumptionStats(context.Context) ([]repository.MonthStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.MonthStats
	for _, m := range s.readings {
		if m.Status == db.StatusDisputed {
			continue
		}
		i := slices.IndexFunc(out, func(st repository.MonthStats) bool { return st.Month == m.BillingMonth })
		if i < 0 {
			out = append(out, repository.MonthStats{Month: m.BillingMonth, MinConsumption: m.Consumption, MaxConsumption: m.Consumption})
			i = len(out) - 1
		}
		st := &out[i]
		st.Count++
		st.TotalConsumption += m.Consumption
		st.AvgConsumption = st.TotalConsumption / float64(st.Count)
		st.MinConsumption = min(st.MinConsumption, m.Consumption)
		st.MaxConsumption = max(st.MaxConsumption, m.Consumption)
	}
	// GROUP BY order is unspecified.
	slices.SortFunc(out, func(a, b repository.MonthStats) int { return cmp.Compare(a.Month, b.Month) })
	return out, nil
}

func newestFirst(limit int) query.Query {
	return query.Query{Sort: []query.SortKey{{Column: "r.reading_date", Desc: true}}, Page: 1, Limit: limit}
}

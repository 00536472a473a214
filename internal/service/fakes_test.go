package service

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/meter-reading-service/internal/billing"
	"github.com/septivank/meter-reading-service/internal/db"
	"github.com/septivank/meter-reading-service/internal/mq"
	"github.com/septivank/meter-reading-service/internal/query"
	"github.com/septivank/meter-reading-service/internal/repository"
)

// memStore is an in-memory stand-in for the Postgres repository.
type memStore struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*db.User
	customers map[uuid.UUID]*db.Customer
	readings  []db.MeterReading
	fields    map[uuid.UUID]*db.FieldReading
	within    []float64
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[uuid.UUID]*db.User{},
		customers: map[uuid.UUID]*db.Customer{},
		fields:    map[uuid.UUID]*db.FieldReading{},
	}
}

func (s *memStore) addUser(name string, role db.Role) *db.User {
	u := &db.User{ID: uuid.New(), Name: name, Email: strings.ToLower(name) + "@example.com", Role: role, Active: true}
	s.users[u.ID] = u
	return u
}

func (s *memStore) addCustomer(tariff db.TariffCategory) *db.Customer {
	c := &db.Customer{
		ID:             uuid.New(),
		CustomerID:     "CUST-" + uuid.NewString()[:8],
		Name:           "Customer",
		MeterNumber:    "MTR-" + uuid.NewString()[:8],
		TariffCategory: tariff,
		PowerCapacity:  900,
		Active:         true,
	}
	s.customers[c.ID] = c
	return c
}

// addReading stores a reading directly, bypassing ingestion rules.
func (s *memStore) addReading(c *db.Customer, reader *db.User, date time.Time, current, consumption float64, status db.ReadingStatus) db.MeterReading {
	p := billing.PeriodOf(date)
	m := db.MeterReading{
		ID:              uuid.New(),
		Customer:        c.Summary(),
		ReadingDate:     date,
		PreviousReading: current - consumption,
		CurrentReading:  current,
		Consumption:     consumption,
		MeterReader:     db.ReaderSummary{ID: reader.ID, Name: reader.Name},
		Status:          status,
		BillingMonth:    p.Month,
		BillingYear:     p.Year,
	}
	s.readings = append(s.readings, m)
	return m
}

// Users

// CreateUser mirrors the unique index on lower(email).
func (s *memStore) CreateUser(_ context.Context, u *db.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicate
		}
	}
	u.Active = true
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	copied := *u
	s.users[u.ID] = &copied
	return nil
}

func (s *memStore) FindActiveUser(_ context.Context, id uuid.UUID) (*db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || !u.Active {
		return nil, repository.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *memStore) FindUserByEmail(_ context.Context, email string) (*db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Active && strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) ListUsers(context.Context, query.Query) ([]db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.User
	for _, u := range s.users {
		if u.Active {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *memStore) UpdateUser(_ context.Context, id uuid.UUID, p repository.UserPatch) (*db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || !u.Active {
		return nil, repository.ErrNotFound
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		for _, other := range s.users {
			if other.ID != id && strings.EqualFold(other.Email, *p.Email) {
				return nil, repository.ErrDuplicate
			}
		}
		u.Email = *p.Email
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	copied := *u
	return &copied, nil
}

func (s *memStore) SetPassword(_ context.Context, id uuid.UUID, hash string, changedAt time.Time) (*db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || !u.Active {
		return nil, repository.ErrNotFound
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = &changedAt
	copied := *u
	return &copied, nil
}

func (s *memStore) DeactivateUser(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || !u.Active {
		return repository.ErrNotFound
	}
	u.Active = false
	return nil
}

// Customers

func (s *memStore) CreateCustomer(_ context.Context, c *db.Customer) error {
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

func (s *memStore) FindActiveCustomer(_ context.Context, id uuid.UUID) (*db.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok || !c.Active {
		return nil, repository.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *memStore) ListCustomers(context.Context, query.Query) ([]db.Customer, error) {
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

func (s *memStore) UpdateCustomer(_ context.Context, id uuid.UUID, p repository.CustomerPatch) (*db.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok || !c.Active {
		return nil, repository.ErrNotFound
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.TariffCategory != nil {
		c.TariffCategory = *p.TariffCategory
	}
	if p.MeterType != nil {
		c.MeterType = *p.MeterType
	}
	copied := *c
	return &copied, nil
}

func (s *memStore) DeactivateCustomer(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok || !c.Active {
		return repository.ErrNotFound
	}
	c.Active = false
	return nil
}

func (s *memStore) SearchCustomers(_ context.Context, term string) ([]db.Customer, error) {
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

func (s *memStore) CustomersWithin(_ context.Context, lat, lng, radius float64) ([]db.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.within = []float64{lat, lng, radius}
	return []db.Customer{}, nil
}

// Readings

func (s *memStore) FindReadings(_ context.Context, f repository.ReadingFilter, q query.Query) ([]db.MeterReading, error) {
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

func (s *memStore) InsertReading(_ context.Context, m *db.MeterReading) (*db.MeterReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := *m
	if c, ok := s.customers[m.Customer.ID]; ok {
		created.Customer = c.Summary()
	}
	if u, ok := s.users[m.MeterReader.ID]; ok {
		created.MeterReader.Name = u.Name
	}
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt
	s.readings = append(s.readings, created)
	return &created, nil
}

func (s *memStore) index(id uuid.UUID) int {
	return slices.IndexFunc(s.readings, func(m db.MeterReading) bool { return m.ID == id })
}

func (s *memStore) GetReading(_ context.Context, id uuid.UUID) (*db.MeterReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return nil, repository.ErrNotFound
	}
	m := s.readings[i]
	return &m, nil
}

func (s *memStore) LatestReading(ctx context.Context, customerID uuid.UUID) (*db.MeterReading, error) {
	readings, _ := s.FindReadings(ctx, repository.ReadingFilter{CustomerID: &customerID}, newestFirst(1))
	if len(readings) == 0 {
		return nil, repository.ErrNotFound
	}
	return &readings[0], nil
}

func (s *memStore) PriorReadings(ctx context.Context, customerID uuid.UUID, before time.Time, limit int) ([]db.MeterReading, error) {
	return s.FindReadings(ctx, repository.ReadingFilter{CustomerID: &customerID, Before: &before}, newestFirst(limit))
}

func (s *memStore) UpdateReading(_ context.Context, id uuid.UUID, p repository.ReadingPatch) (*db.MeterReading, error) {
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
	if p.VerifiedBy != nil {
		m.VerifiedBy = p.VerifiedBy
	}
	if p.VerifiedAt != nil {
		m.VerifiedAt = p.VerifiedAt
	}
	copied := *m
	return &copied, nil
}

func (s *memStore) VerifyReading(_ context.Context, id uuid.UUID, verifier uuid.UUID, at time.Time) (*db.MeterReading, error) {
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

func (s *memStore) DeleteReading(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return repository.ErrNotFound
	}
	s.readings = slices.Delete(s.readings, i, i+1)
	return nil
}

// Reports

func (s *memStore) MonthlyTotals(_ context.Context, year int, statuses []db.ReadingStatus) ([]repository.MonthTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byMonth := map[string]*repository.MonthTotal{}
	for _, m := range s.readings {
		if m.BillingYear != year || !slices.Contains(statuses, m.Status) {
			continue
		}
		t, ok := byMonth[m.BillingMonth]
		if !ok {
			t = &repository.MonthTotal{Month: m.BillingMonth}
			byMonth[m.BillingMonth] = t
		}
		t.Count++
		t.TotalConsumption += m.Consumption
		t.AvgConsumption = t.TotalConsumption / float64(t.Count)
	}
	var out []repository.MonthTotal
	for _, t := range byMonth {
		out = append(out, *t)
	}
	// Mimic an unordered GROUP BY.
	slices.SortFunc(out, func(a, b repository.MonthTotal) int { return cmp.Compare(a.Month, b.Month) })
	return out, nil
}

func (s *memStore) ReaderTallies(context.Context, billing.Period) ([]repository.ReaderTally, error) {
	return nil, errors.New("not used")
}

func (s *memStore) ConsumptionStats(context.Context) ([]repository.MonthStats, error) {
	return nil, errors.New("not used")
}

// Field readings

func (s *memStore) CreateFieldReading(_ context.Context, f *db.FieldReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *f
	s.fields[f.ID] = &copied
	return nil
}

func (s *memStore) GetFieldReading(_ context.Context, id uuid.UUID) (*db.FieldReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fields[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *f
	return &copied, nil
}

func (s *memStore) ListFieldReadings(context.Context, query.Query) ([]db.FieldReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []db.FieldReading{}
	for _, f := range s.fields {
		out = append(out, *f)
	}
	return out, nil
}

func (s *memStore) SetFieldReadingStatus(_ context.Context, id uuid.UUID, status db.FieldReadingStatus, notes *string) (*db.FieldReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fields[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	f.Status = status
	f.Notes = notes
	copied := *f
	return &copied, nil
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []mq.ReadingEvent
	err    error
}

func (p *recordingPublisher) PublishReadingEvent(_ context.Context, e mq.ReadingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func ptr[T any](v T) *T {
	return &v
}

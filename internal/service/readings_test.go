package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/meter-reading-service/internal/apperr"
	"github.com/septivank/meter-reading-service/internal/db"
	"github.com/septivank/meter-reading-service/internal/mq"
	"github.com/septivank/meter-reading-service/internal/validator"
	"go.uber.org/zap"
)

var now = time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)

func newReadingService(store *memStore, events EventPublisher) *ReadingService {
	s := NewReadingService(store, store, events, validator.NewValidator(1440), zap.NewNop())
	s.now = fixedClock(now)
	return s
}

func TestConsumption(t *testing.T) {
	cases := []struct {
		previous, current, want float64
	}{
		{0, 0, 0},
		{100, 150, 50},
		{12.5, 12.5, 0},
		{0, 245.5, 245.5},
	}
	for _, tc := range cases {
		got, err := Consumption(tc.previous, tc.current)
		if err != nil {
			t.Errorf("Consumption(%v, %v) returned %v", tc.previous, tc.current, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Consumption(%v, %v) = %v, want %v", tc.previous, tc.current, got, tc.want)
		}
	}

	if _, err := Consumption(100, 99.9); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Expected validation error for a backwards meter, got %v", err)
	}
}

func TestCreate_FirstReadingDefaultsPreviousToZero(t *testing.T) {
	store := newMemStore()
	reader := store.addUser("Petugas", db.RolePetugas)
	customer := store.addCustomer("R1")
	svc := newReadingService(store, mq.NopPublisher{})

	m, err := svc.Create(context.Background(), reader, CreateReadingInput{
		Customer:       customer.ID.String(),
		CurrentReading: ptr(0.0),
	})
	if err != nil {
		t.Fatalf("Failed to create reading: %v", err)
	}

	if m.PreviousReading != 0 || m.Consumption != 0 {
		t.Errorf("Expected previous 0 and consumption 0, got %v and %v", m.PreviousReading, m.Consumption)
	}
	if !m.ReadingDate.Equal(now) || m.BillingMonth != "March" || m.BillingYear != 2025 {
		t.Errorf("Expected reading date to default to now, got %v (%s %d)", m.ReadingDate, m.BillingMonth, m.BillingYear)
	}
	if m.MeterReader.ID != reader.ID {
		t.Errorf("Expected the actor as meter reader, got %v", m.MeterReader.ID)
	}
}

func TestCreate_CallerPreviousUsedOnlyForFirstReading(t *testing.T) {
	store := newMemStore()
	reader := store.addUser("Petugas", db.RolePetugas)
	customer := store.addCustomer("R1")
	svc := newReadingService(store, mq.NopPublisher{})

	m, err := svc.Create(context.Background(), reader, CreateReadingInput{
		Customer:        customer.ID.String(),
		CurrentReading:  ptr(100.0),
		PreviousReading: ptr(40.0),
	})
	if err != nil {
		t.Fatalf("Failed to create reading: %v", err)
	}
	if m.PreviousReading != 40 || m.Consumption != 60 {
		t.Errorf("Expected previous 40 consumption 60, got %v and %v", m.PreviousReading, m.Consumption)
	}
}

func TestCreate_PreviousComesFromLatestReading(t *testing.T) {
	store := newMemStore()
	reader := store.addUser("Petugas", db.RolePetugas)
	customer := store.addCustomer("R1")
	store.addReading(customer, reader, now.AddDate(0, -2, 0), 80, 80, db.StatusVerified)
	store.addReading(customer, reader, now.AddDate(0, -1, 0), 100, 20, db.StatusVerified)

	events := &recordingPublisher{}
	svc := newReadingService(store, events)

	readingDate := time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC)
	m, err := svc.Create(context.Background(), reader, CreateReadingInput{
		Customer:        customer.ID.String(),
		CurrentReading:  ptr(150.0),
		PreviousReading: ptr(7.0),
		ReadingDate:     &readingDate,
	})
	if err != nil {
		t.Fatalf("Failed to create reading: %v", err)
	}

	if m.PreviousReading != 100 {
		t.Errorf("Expected previous reading 100, got %v", m.PreviousReading)
	}
	if m.Consumption != 50 {
		t.Errorf("Expected consumption 50, got %v", m.Consumption)
	}
	if m.Status != db.StatusPending {
		t.Errorf("Expected pending status, got %s", m.Status)
	}
	if m.BillingMonth != "March" || m.BillingYear != 2025 {
		t.Errorf("Expected March 2025, got %s %d", m.BillingMonth, m.BillingYear)
	}
	if m.Customer.MeterNumber != customer.MeterNumber {
		t.Errorf("Expected customer summary to be joined, got %+v", m.Customer)
	}
	if got := events.types(); len(got) != 1 || got[0] != mq.ReadingCreated {
		t.Errorf("Expected one created event, got %v", got)
	}
}

func TestCreate_RejectsNegativeConsumption(t *testing.T) {
	store := newMemStore()
	reader := store.addUser("Petugas", db.RolePetugas)
	customer := store.addCustomer("R1")
	store.addReading(customer, reader, now.AddDate(0, -1, 0), 100, 100, db.StatusVerified)
	svc := newReadingService(store, mq.NopPublisher{})

	_, err := svc.Create(context.Background(), reader, CreateReadingInput{
		Customer:       customer.ID.String(),
		CurrentReading: ptr(90.0),
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if len(store.readings) != 1 {
		t.Errorf("Expected nothing to be stored, have %d readings", len(store.readings))
	}
}

func TestCreate_CustomerMustBeActive(t *testing.T) {
	store := newMemStore()
	reader := store.addUser("Petugas", db.RolePetugas)
	customer := store.addCustomer("R1")
	customer.Active = false
	svc := newReadingService(store, mq.NopPublisher{})

	_, err := svc.Create(context.Background(), reader, CreateReadingInput{
		Customer:       customer.ID.String(),
		CurrentReading: ptr(10.0),
	})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestCreate_ValidatesInput(t *testing.T) {
	store := newMemStore()
	reader := store.addUser("Petugas", db.RolePetugas)
	svc := newReadingService(store, mq.NopPublisher{})

	cases := map[string]CreateReadingInput{
		"missing customer":  {CurrentReading: ptr(1.0)},
		"malformed id":      {Customer: "C-001", CurrentReading: ptr(1.0)},
		"missing reading":   {Customer: store.addCustomer("R1").ID.String()},
		"negative reading":  {Customer: store.addCustomer("R1").ID.String(), CurrentReading: ptr(-1.0)},
		"location off map":  {Customer: store.addCustomer("R1").ID.String(), CurrentReading: ptr(1.0), Location: ptr(db.NewGeoPoint(200, 0))},
		"malformed reader":  {Customer: store.addCustomer("R1").ID.String(), CurrentReading: ptr(1.0), MeterReader: ptr("nobody")},
		"negative previous": {Customer: store.addCustomer("R1").ID.String(), CurrentReading: ptr(1.0), PreviousReading: ptr(-5.0)},
	}
	for name, in := range cases {
		if _, err := svc.Create(context.Background(), reader, in); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}

	if _, err := svc.Create(context.Background(), nil, CreateReadingInput{}); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Errorf("Expected unauthorized without an actor, got %v", err)
	}
}

func TestCreate_PublishFailureDoesNotFailRequest(t *testing.T) {
	store := newMemStore()
	reader := store.addUser("Petugas", db.RolePetugas)
	customer := store.addCustomer("R1")
	svc := newReadingService(store, &recordingPublisher{err: errors.New("broker down")})

	if _, err := svc.Create(context.Background(), reader, CreateReadingInput{
		Customer:       customer.ID.String(),
		CurrentReading: ptr(10.0),
	}); err != nil {
		t.Errorf("Expected success despite publish failure, got %v", err)
	}
}

func TestVerify_IsIdempotentInEffect(t *testing.T) {
	store := newMemStore()
	reader := store.addUser("Petugas", db.RolePetugas)
	first := store.addUser("Supervisor", db.RoleSupervisor)
	second := store.addUser("Admin", db.RoleAdmin)
	customer := store.addCustomer("R1")
	m := store.addReading(customer, reader, now.AddDate(0, 0, -1), 50, 50, db.StatusPending)

	events := &recordingPublisher{}
	svc := newReadingService(store, events)

	v1, err := svc.Verify(context.Background(), first, m.ID)
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	if v1.Status != db.StatusVerified || v1.VerifiedBy == nil || *v1.VerifiedBy != first.ID || v1.VerifiedAt == nil {
		t.Fatalf("Expected verified by first supervisor, got %+v", v1)
	}

	later := now.Add(time.Hour)
	svc.now = fixedClock(later)
	v2, err := svc.Verify(context.Background(), second, m.ID)
	if err != nil {
		t.Fatalf("Failed to verify again: %v", err)
	}
	if v2.Status != db.StatusVerified {
		t.Errorf("Expected status to stay verified, got %s", v2.Status)
	}
	if *v2.VerifiedBy != second.ID || !v2.VerifiedAt.Equal(later) {
		t.Errorf("Expected verifier and time of the latest call, got %v at %v", *v2.VerifiedBy, *v2.VerifiedAt)
	}
	if got := events.types(); len(got) != 2 || got[0] != mq.ReadingVerified || got[1] != mq.ReadingVerified {
		t.Errorf("Expected two verified events, got %v", got)
	}
}

func TestVerify_MissingReading(t *testing.T) {
	store := newMemStore()
	supervisor := store.addUser("Supervisor", db.RoleSupervisor)
	svc := newReadingService(store, mq.NopPublisher{})

	if _, err := svc.Verify(context.Background(), supervisor, uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	store := newMemStore()
	reader := store.addUser("Petugas", db.RolePetugas)
	supervisor := store.addUser("Supervisor", db.RoleSupervisor)
	customer := store.addCustomer("R1")
	m := store.addReading(customer, reader, now.AddDate(0, 0, -1), 150, 50, db.StatusPending)
	svc := newReadingService(store, mq.NopPublisher{})
	ctx := context.Background()

	if _, err := svc.Update(ctx, supervisor, m.ID, UpdateReadingInput{Customer: customer.ID.String()}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Expected customer change to be rejected, got %v", err)
	}
	if _, err := svc.Update(ctx, supervisor, m.ID, UpdateReadingInput{ReadingDate: "2025-01-01"}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Expected reading date change to be rejected, got %v", err)
	}
	if _, err := svc.Update(ctx, supervisor, m.ID, UpdateReadingInput{CurrentReading: ptr(99.0)}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Expected reading below previous to be rejected, got %v", err)
	}
	if _, err := svc.Update(ctx, supervisor, m.ID, UpdateReadingInput{Status: ptr("approved")}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Expected unknown status to be rejected, got %v", err)
	}

	updated, err := svc.Update(ctx, supervisor, m.ID, UpdateReadingInput{CurrentReading: ptr(170.0), Status: ptr("verified")})
	if err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	if updated.CurrentReading != 170 || updated.Consumption != 70 {
		t.Errorf("Expected consumption recomputed to 70, got %v", updated.Consumption)
	}
	if updated.Status != db.StatusVerified || updated.VerifiedBy == nil || *updated.VerifiedBy != supervisor.ID {
		t.Errorf("Expected verification stamped by the actor, got %+v", updated)
	}
}

func TestDelete(t *testing.T) {
	store := newMemStore()
	reader := store.addUser("Petugas", db.RolePetugas)
	m := store.addReading(store.addCustomer("R1"), reader, now, 10, 10, db.StatusPending)
	svc := newReadingService(store, mq.NopPublisher{})

	if err := svc.Delete(context.Background(), m.ID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if err := svc.Delete(context.Background(), m.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Expected not found on second delete, got %v", err)
	}
}

func TestByReader(t *testing.T) {
	store := newMemStore()
	alice := store.addUser("Alice", db.RolePetugas)
	bob := store.addUser("Bob", db.RolePetugas)
	customer := store.addCustomer("R1")
	store.addReading(customer, alice, now.AddDate(0, 0, -2), 10, 10, db.StatusPending)
	store.addReading(customer, bob, now.AddDate(0, 0, -1), 20, 10, db.StatusPending)
	store.addReading(customer, alice, now, 30, 10, db.StatusPending)
	svc := newReadingService(store, mq.NopPublisher{})

	readings, err := svc.ByReader(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(readings) != 2 || readings[0].CurrentReading != 30 {
		t.Errorf("Expected alice's two readings newest first, got %+v", readings)
	}
}

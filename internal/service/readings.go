package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/meter-reading-service/internal/apperr"
	"github.com/septivank/meter-reading-service/internal/billing"
	"github.com/septivank/meter-reading-service/internal/db"
	"github.com/septivank/meter-reading-service/internal/mq"
	"github.com/septivank/meter-reading-service/internal/query"
	"github.com/septivank/meter-reading-service/internal/repository"
	"github.com/septivank/meter-reading-service/internal/validator"
	"go.uber.org/zap"
)

const readingNotFound = "No meter reading found with that ID"

// ReadingFinder lists readings.
type ReadingFinder interface {
	FindReadings(ctx context.Context, f repository.ReadingFilter, q query.Query) ([]db.MeterReading, error)
}

// ReadingStore persists meter readings.
type ReadingStore interface {
	ReadingFinder
	InsertReading(ctx context.Context, m *db.MeterReading) (*db.MeterReading, error)
	GetReading(ctx context.Context, id uuid.UUID) (*db.MeterReading, error)
	LatestReading(ctx context.Context, customerID uuid.UUID) (*db.MeterReading, error)
	UpdateReading(ctx context.Context, id uuid.UUID, p repository.ReadingPatch) (*db.MeterReading, error)
	VerifyReading(ctx context.Context, id uuid.UUID, verifier uuid.UUID, at time.Time) (*db.MeterReading, error)
	DeleteReading(ctx context.Context, id uuid.UUID) error
}

// CustomerFinder resolves active customers.
type CustomerFinder interface {
	FindActiveCustomer(ctx context.Context, id uuid.UUID) (*db.Customer, error)
}

type CreateReadingInput struct {
	Customer        string       `json:"customer" validate:"required,uuid"`
	CurrentReading  *float64     `json:"currentReading" validate:"required,gte=0"`
	PreviousReading *float64     `json:"previousReading" validate:"omitempty,gte=0"`
	ReadingDate     *time.Time   `json:"readingDate"`
	MeterReader     *string      `json:"meterReader" validate:"omitempty,uuid"`
	Photo           *string      `json:"photo"`
	Notes           *string      `json:"notes"`
	Location        *db.GeoPoint `json:"location"`
}

// UpdateReadingInput carries a partial update. Customer and ReadingDate are
// decoded only to reject attempts to change them.
type UpdateReadingInput struct {
	Customer       any          `json:"customer"`
	ReadingDate    any          `json:"readingDate"`
	CurrentReading *float64     `json:"currentReading" validate:"omitempty,gte=0"`
	MeterReader    *string      `json:"meterReader" validate:"omitempty,uuid"`
	Status         *string      `json:"status" validate:"omitempty,readingstatus"`
	Photo          *string      `json:"photo"`
	Notes          *string      `json:"notes"`
	Location       *db.GeoPoint `json:"location"`
}

// ReadingService records readings and runs the verification workflow.
type ReadingService struct {
	readings  ReadingStore
	customers CustomerFinder
	events    EventPublisher
	validator *validator.Validator
	logger    *zap.Logger
	now       Clock
}

func NewReadingService(
	readings ReadingStore,
	customers CustomerFinder,
	events EventPublisher,
	v *validator.Validator,
	logger *zap.Logger,
) *ReadingService {
	return &ReadingService{
		readings:  readings,
		customers: customers,
		events:    events,
		validator: v,
		logger:    logger,
		now:       time.Now,
	}
}

// Consumption is current minus previous. A meter never runs backwards.
func Consumption(previous, current float64) (float64, error) {
	if current < previous {
		return 0, apperr.Validation(fmt.Sprintf(
			"current reading %v is lower than previous reading %v; consumption cannot be negative", current, previous))
	}
	return current - previous, nil
}

// Create records a reading. The previous reading is taken from the customer's
// latest reading; the caller's value is used only for the first one.
func (s *ReadingService) Create(ctx context.Context, actor *db.User, in CreateReadingInput) (*db.MeterReading, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	if err := validLocation(in.Location); err != nil {
		return nil, err
	}

	customerID := uuid.MustParse(in.Customer)
	customer, err := s.customers.FindActiveCustomer(ctx, customerID)
	if err != nil {
		return nil, translate(err, customerNotFound)
	}

	var previous float64
	latest, err := s.readings.LatestReading(ctx, customerID)
	switch {
	case err == nil:
		previous = latest.CurrentReading
	case errors.Is(err, repository.ErrNotFound):
		if in.PreviousReading != nil {
			previous = *in.PreviousReading
		}
	default:
		return nil, err
	}

	consumption, err := Consumption(previous, *in.CurrentReading)
	if err != nil {
		return nil, err
	}

	readingDate := s.now().UTC()
	if in.ReadingDate != nil {
		readingDate = in.ReadingDate.UTC()
	}
	period := billing.PeriodOf(readingDate)

	reader := db.ReaderSummary{ID: actor.ID, Name: actor.Name}
	if in.MeterReader != nil {
		reader = db.ReaderSummary{ID: uuid.MustParse(*in.MeterReader)}
	}

	reading := &db.MeterReading{
		ID:              uuid.New(),
		Customer:        customer.Summary(),
		ReadingDate:     readingDate,
		PreviousReading: previous,
		CurrentReading:  *in.CurrentReading,
		Consumption:     consumption,
		MeterReader:     reader,
		Status:          db.StatusPending,
		Photo:           in.Photo,
		Notes:           in.Notes,
		Location:        db.NewGeoPoint(0, 0),
		BillingMonth:    period.Month,
		BillingYear:     period.Year,
	}
	if in.Location != nil {
		reading.Location = db.NewGeoPoint(in.Location.Lng(), in.Location.Lat())
	}

	created, err := s.readings.InsertReading(ctx, reading)
	if err != nil {
		return nil, translate(err, customerNotFound)
	}

	s.logger.Info("meter reading recorded",
		zap.String("reading_id", created.ID.String()),
		zap.String("customer_id", customerID.String()),
		zap.Float64("consumption", created.Consumption),
		zap.String("billing_period", period.String()),
	)
	s.publish(ctx, mq.ReadingCreated, created)
	return created, nil
}

func (s *ReadingService) Get(ctx context.Context, id uuid.UUID) (*db.MeterReading, error) {
	m, err := s.readings.GetReading(ctx, id)
	return m, translate(err, readingNotFound)
}

func (s *ReadingService) List(ctx context.Context, q query.Query) ([]db.MeterReading, error) {
	return s.readings.FindReadings(ctx, repository.ReadingFilter{}, q)
}

func (s *ReadingService) ByPeriod(ctx context.Context, p billing.Period) ([]db.MeterReading, error) {
	return s.readings.FindReadings(ctx, repository.ReadingFilter{Period: &p}, newestFirst(0))
}

func (s *ReadingService) ByReader(ctx context.Context, readerID uuid.UUID) ([]db.MeterReading, error) {
	return s.readings.FindReadings(ctx, repository.ReadingFilter{ReaderID: &readerID}, newestFirst(0))
}

// Update applies a partial update. A new current reading recomputes consumption
// from the stored previous reading; moving to verified stamps the actor.
func (s *ReadingService) Update(ctx context.Context, actor *db.User, id uuid.UUID, in UpdateReadingInput) (*db.MeterReading, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if in.Customer != nil || in.ReadingDate != nil {
		return nil, apperr.Validation("Customer and reading date cannot be changed")
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	if err := validLocation(in.Location); err != nil {
		return nil, err
	}

	p := repository.ReadingPatch{
		Photo:    in.Photo,
		Notes:    in.Notes,
		Location: in.Location,
	}

	if in.CurrentReading != nil {
		existing, err := s.readings.GetReading(ctx, id)
		if err != nil {
			return nil, translate(err, readingNotFound)
		}
		consumption, err := Consumption(existing.PreviousReading, *in.CurrentReading)
		if err != nil {
			return nil, err
		}
		p.CurrentReading = in.CurrentReading
		p.Consumption = &consumption
	}

	if in.MeterReader != nil {
		readerID := uuid.MustParse(*in.MeterReader)
		p.MeterReaderID = &readerID
	}

	event := mq.ReadingUpdated
	if in.Status != nil {
		status, err := db.ParseReadingStatus(*in.Status)
		if err != nil {
			return nil, apperr.Validation(err.Error())
		}
		p.Status = &status
		if status == db.StatusVerified {
			now := s.now().UTC()
			p.VerifiedBy = &actor.ID
			p.VerifiedAt = &now
			event = mq.ReadingVerified
		}
	}

	updated, err := s.readings.UpdateReading(ctx, id, p)
	if err != nil {
		return nil, translate(err, readingNotFound)
	}

	s.publish(ctx, event, updated)
	return updated, nil
}

// Verify marks a reading verified by actor. Repeating it restamps the verifier.
func (s *ReadingService) Verify(ctx context.Context, actor *db.User, id uuid.UUID) (*db.MeterReading, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	verified, err := s.readings.VerifyReading(ctx, id, actor.ID, s.now().UTC())
	if err != nil {
		return nil, translate(err, readingNotFound)
	}

	s.logger.Info("meter reading verified",
		zap.String("reading_id", id.String()),
		zap.String("verified_by", actor.ID.String()),
	)
	s.publish(ctx, mq.ReadingVerified, verified)
	return verified, nil
}

func (s *ReadingService) Delete(ctx context.Context, id uuid.UUID) error {
	return translate(s.readings.DeleteReading(ctx, id), readingNotFound)
}

// publish sends the event without failing the request.
func (s *ReadingService) publish(ctx context.Context, eventType string, m *db.MeterReading) {
	event := mq.ReadingEvent{
		Type:          eventType,
		ReadingID:     m.ID.String(),
		CustomerID:    m.Customer.ID.String(),
		MeterReaderID: m.MeterReader.ID.String(),
		Status:        string(m.Status),
		Consumption:   m.Consumption,
		BillingMonth:  m.BillingMonth,
		BillingYear:   m.BillingYear,
		ReadingDate:   m.ReadingDate.Format(time.RFC3339),
		OccurredAt:    s.now().UTC(),
	}
	if err := s.events.PublishReadingEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish reading event",
			zap.Error(err),
			zap.String("routing_key", eventType),
			zap.String("reading_id", event.ReadingID),
		)
	}
}

func newestFirst(limit int) query.Query {
	return query.Query{
		Sort:  []query.SortKey{{Column: "r.reading_date", Desc: true}},
		Page:  1,
		Limit: limit,
	}
}

func oldestFirst() query.Query {
	return query.Query{
		Sort: []query.SortKey{{Column: "r.reading_date"}},
		Page: 1,
	}
}

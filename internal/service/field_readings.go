package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/meter-reading-service/internal/apperr"
	"github.com/septivank/meter-reading-service/internal/db"
	"github.com/septivank/meter-reading-service/internal/query"
	"github.com/septivank/meter-reading-service/internal/validator"
)

const fieldReadingNotFound = "Meter reading record not found"

// FieldReadingStore persists field readings.
type FieldReadingStore interface {
	CreateFieldReading(ctx context.Context, f *db.FieldReading) error
	GetFieldReading(ctx context.Context, id uuid.UUID) (*db.FieldReading, error)
	ListFieldReadings(ctx context.Context, q query.Query) ([]db.FieldReading, error)
	SetFieldReadingStatus(ctx context.Context, id uuid.UUID, status db.FieldReadingStatus, notes *string) (*db.FieldReading, error)
}

type CreateFieldReadingInput struct {
	CustomerID      string     `json:"customerId" validate:"required"`
	MeterNumber     string     `json:"meterNumber" validate:"required"`
	PreviousReading *float64   `json:"previousReading" validate:"required"`
	CurrentReading  *float64   `json:"currentReading" validate:"required"`
	ReadingDate     *time.Time `json:"readingDate"`
	Status          string     `json:"status" validate:"omitempty,fieldstatus"`
	Notes           *string    `json:"notes"`
	Photo           *string    `json:"photo"`
}

// FieldReadingStatusInput replaces both status and notes; omitted notes are cleared.
type FieldReadingStatusInput struct {
	Status string  `json:"status" validate:"required,fieldstatus"`
	Notes  *string `json:"notes"`
}

// FieldReadingService serves the simplified readings recorded by field devices.
// They are stored apart from meter readings and take no part in reports.
type FieldReadingService struct {
	readings  FieldReadingStore
	validator *validator.Validator
	now       Clock
}

func NewFieldReadingService(readings FieldReadingStore, v *validator.Validator) *FieldReadingService {
	return &FieldReadingService{readings: readings, validator: v, now: time.Now}
}

func (s *FieldReadingService) Create(ctx context.Context, in CreateFieldReadingInput) (*db.FieldReading, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	status := db.FieldStatusPending
	if in.Status != "" {
		parsed, err := db.ParseFieldReadingStatus(in.Status)
		if err != nil {
			return nil, apperr.Validation(err.Error())
		}
		status = parsed
	}

	f := &db.FieldReading{
		ID:              uuid.New(),
		CustomerID:      in.CustomerID,
		MeterNumber:     in.MeterNumber,
		PreviousReading: *in.PreviousReading,
		CurrentReading:  *in.CurrentReading,
		ReadingDate:     s.now().UTC(),
		Status:          status,
		Notes:           in.Notes,
		Photo:           in.Photo,
	}
	if in.ReadingDate != nil {
		f.ReadingDate = in.ReadingDate.UTC()
	}

	if err := s.readings.CreateFieldReading(ctx, f); err != nil {
		return nil, translate(err, fieldReadingNotFound)
	}
	return f, nil
}

func (s *FieldReadingService) Get(ctx context.Context, id uuid.UUID) (*db.FieldReading, error) {
	f, err := s.readings.GetFieldReading(ctx, id)
	return f, translate(err, fieldReadingNotFound)
}

func (s *FieldReadingService) List(ctx context.Context, q query.Query) ([]db.FieldReading, error) {
	return s.readings.ListFieldReadings(ctx, q)
}

func (s *FieldReadingService) SetStatus(ctx context.Context, id uuid.UUID, in FieldReadingStatusInput) (*db.FieldReading, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	status, err := db.ParseFieldReadingStatus(in.Status)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}

	f, err := s.readings.SetFieldReadingStatus(ctx, id, status, in.Notes)
	return f, translate(err, fieldReadingNotFound)
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/meter-reading-service/internal/db"
	"github.com/septivank/meter-reading-service/internal/logging"
	"github.com/septivank/meter-reading-service/internal/validator"
	"go.uber.org/zap"
)

// SubmissionMessage is a reading submitted by a field device through the queue.
type SubmissionMessage struct {
	RequestID      string    `json:"request_id"`
	CustomerID     string    `json:"customer_id"`
	MeterReaderID  string    `json:"meter_reader_id"`
	CurrentReading float64   `json:"current_reading"`
	ReadingDate    string    `json:"reading_date"`
	Notes          *string   `json:"notes"`
	Photo          *string   `json:"photo"`
	ReceivedAt     time.Time `json:"received_at"`
}

// ErrRejectedSubmission marks submissions that failed validation.
var ErrRejectedSubmission = errors.New("submission rejected")

// ActorFinder resolves the meter reader a submission is recorded for.
type ActorFinder interface {
	FindActiveUser(ctx context.Context, id uuid.UUID) (*db.User, error)
}

// SubmissionProcessor turns queued submissions into meter readings.
type SubmissionProcessor struct {
	readings  *ReadingService
	users     ActorFinder
	validator *validator.Validator
	logger    *zap.Logger
	now       Clock
}

func NewSubmissionProcessor(readings *ReadingService, users ActorFinder, v *validator.Validator, logger *zap.Logger) *SubmissionProcessor {
	return &SubmissionProcessor{
		readings:  readings,
		users:     users,
		validator: v,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessMessage validates a submission and records it as the submitting reader.
// Any returned error dead-letters the message.
func (p *SubmissionProcessor) ProcessMessage(ctx context.Context, body []byte) error {
	var msg SubmissionMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	reqLogger := logging.WithRequestID(p.logger, msg.RequestID)
	reqLogger.Info("processing submission",
		zap.String("customer_id", msg.CustomerID),
		zap.String("meter_reader_id", msg.MeterReaderID),
	)

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = p.now()
	}

	parsed, result := p.validator.ValidateSubmission(validator.SubmissionData{
		CustomerID:     msg.CustomerID,
		MeterReaderID:  msg.MeterReaderID,
		CurrentReading: msg.CurrentReading,
		ReadingDate:    msg.ReadingDate,
	}, receivedAt)
	if !result.IsValid {
		reqLogger.Warn("submission rejected", zap.String("reason", result.Reason))
		return fmt.Errorf("%w: %s", ErrRejectedSubmission, result.Reason)
	}

	reader, err := p.users.FindActiveUser(ctx, parsed.MeterReaderID)
	if err != nil {
		reqLogger.Warn("meter reader not resolvable", zap.Error(err))
		return fmt.Errorf("failed to resolve meter reader: %w", err)
	}

	reading, err := p.readings.Create(ctx, reader, CreateReadingInput{
		Customer:       parsed.CustomerID.String(),
		CurrentReading: &parsed.CurrentReading,
		ReadingDate:    &parsed.ReadingDate,
		Notes:          msg.Notes,
		Photo:          msg.Photo,
	})
	if err != nil {
		reqLogger.Error("failed to record submission", zap.Error(err))
		return fmt.Errorf("failed to record reading: %w", err)
	}

	reqLogger.Info("submission recorded",
		zap.String("reading_id", reading.ID.String()),
		zap.Float64("consumption", reading.Consumption),
	)
	return nil
}

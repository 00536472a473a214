// Package service holds the business rules of the meter reading API. Every
// operation receives the authenticated actor explicitly.
package service

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/septivank/meter-reading-service/internal/apperr"
	"github.com/septivank/meter-reading-service/internal/db"
	"github.com/septivank/meter-reading-service/internal/mq"
	"github.com/septivank/meter-reading-service/internal/repository"
)

// EventPublisher publishes reading lifecycle events.
type EventPublisher interface {
	PublishReadingEvent(ctx context.Context, event mq.ReadingEvent) error
}

// Clock returns the current time.
type Clock func() time.Time

// parseFinite parses a decimal number, refusing NaN and infinities.
func parseFinite(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("not a finite number")
	}
	return v, nil
}

// translate maps repository errors onto the error taxonomy.
func translate(err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(notFound)
	case errors.Is(err, repository.ErrDuplicate):
		return apperr.Wrap(apperr.KindValidation, "duplicate value: "+err.Error(), err)
	}
	return err
}

func requireActor(actor *db.User) error {
	if actor == nil {
		return apperr.Unauthorized("You are not logged in. Please log in to get access.")
	}
	return nil
}

func validLocation(p *db.GeoPoint) error {
	if p == nil {
		return nil
	}
	if p.Type != "" && p.Type != "Point" {
		return apperr.Validation("location type must be Point")
	}
	if p.Lng() < -180 || p.Lng() > 180 || p.Lat() < -90 || p.Lat() > 90 {
		return apperr.Validation("location coordinates must be [longitude, latitude]")
	}
	return nil
}

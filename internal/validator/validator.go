package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	playground "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/septivank/meter-reading-service/internal/apperr"
	"github.com/septivank/meter-reading-service/internal/db"
	"github.com/septivank/meter-reading-service/tools/timeparser"
)

// ValidationResult holds validation outcome
type ValidationResult struct {
	IsValid bool
	Reason  string
}

// Validator checks request payloads and queued reading submissions
type Validator struct {
	validate                    *playground.Validate
	readingDateToleranceMinutes int
}

// NewValidator creates a new validator. readingDateToleranceMinutes bounds how
// far in the future a submitted reading date may lie.
func NewValidator(readingDateToleranceMinutes int) *Validator {
	v := playground.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	register := func(tag string, parse func(string) error) {
		// Registration only fails for empty tags or nil functions.
		_ = v.RegisterValidation(tag, func(fl playground.FieldLevel) bool {
			return parse(fl.Field().String()) == nil
		})
	}
	register("tariff", func(s string) error { _, err := db.ParseTariffCategory(s); return err })
	register("metertype", func(s string) error { _, err := db.ParseMeterType(s); return err })
	register("role", func(s string) error { _, err := db.ParseRole(s); return err })
	register("readingstatus", func(s string) error { _, err := db.ParseReadingStatus(s); return err })
	register("fieldstatus", func(s string) error { _, err := db.ParseFieldReadingStatus(s); return err })

	return &Validator{
		validate:                    v,
		readingDateToleranceMinutes: readingDateToleranceMinutes,
	}
}

// Struct validates s against its `validate` tags and reports the first few
// failures as a single validation error.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs playground.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return apperr.Wrap(apperr.KindValidation, strings.Join(msgs, "; "), err)
}

func describe(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a valid id", fe.Field())
	default:
		return fmt.Sprintf("%s has an invalid value", fe.Field())
	}
}

// SubmissionData is a reading submission as it arrives from a field device
type SubmissionData struct {
	CustomerID     string
	MeterReaderID  string
	CurrentReading float64
	ReadingDate    string
}

// ParsedSubmission holds the typed values of a valid submission
type ParsedSubmission struct {
	CustomerID     uuid.UUID
	MeterReaderID  uuid.UUID
	CurrentReading float64
	ReadingDate    time.Time
}

// ValidateSubmission validates a single queued reading submission. A missing
// reading date falls back to receivedAt.
func (v *Validator) ValidateSubmission(sub SubmissionData, receivedAt time.Time) (ParsedSubmission, ValidationResult) {
	result := ValidationResult{IsValid: true}
	var parsed ParsedSubmission

	customerID, err := uuid.Parse(sub.CustomerID)
	if err != nil {
		result.IsValid = false
		result.Reason = "invalid customer id"
		return parsed, result
	}
	parsed.CustomerID = customerID

	readerID, err := uuid.Parse(sub.MeterReaderID)
	if err != nil {
		result.IsValid = false
		result.Reason = "invalid meter reader id"
		return parsed, result
	}
	parsed.MeterReaderID = readerID

	if sub.CurrentReading < 0 {
		result.IsValid = false
		result.Reason = "negative meter value detected"
		return parsed, result
	}
	parsed.CurrentReading = sub.CurrentReading

	if sub.ReadingDate == "" {
		parsed.ReadingDate = receivedAt.UTC()
		return parsed, result
	}

	readingTime, err := timeparser.ParseReadingDate(sub.ReadingDate)
	if err != nil {
		result.IsValid = false
		result.Reason = fmt.Sprintf("invalid reading date format: %v", err)
		return parsed, result
	}

	if !timeparser.IsWithinFutureTolerance(readingTime, receivedAt, v.readingDateToleranceMinutes) {
		result.IsValid = false
		result.Reason = fmt.Sprintf("reading date lies more than %d minutes in the future", v.readingDateToleranceMinutes)
		return parsed, result
	}
	parsed.ReadingDate = readingTime

	return parsed, result
}

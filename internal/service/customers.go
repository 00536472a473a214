package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/meter-reading-service/internal/apperr"
	"github.com/septivank/meter-reading-service/internal/db"
	"github.com/septivank/meter-reading-service/internal/query"
	"github.com/septivank/meter-reading-service/internal/repository"
	"github.com/septivank/meter-reading-service/internal/validator"
	"go.uber.org/zap"
)

const customerNotFound = "No customer found with that ID"

// CustomerStore persists customers.
type CustomerStore interface {
	CreateCustomer(ctx context.Context, c *db.Customer) error
	FindActiveCustomer(ctx context.Context, id uuid.UUID) (*db.Customer, error)
	ListCustomers(ctx context.Context, q query.Query) ([]db.Customer, error)
	UpdateCustomer(ctx context.Context, id uuid.UUID, p repository.CustomerPatch) (*db.Customer, error)
	DeactivateCustomer(ctx context.Context, id uuid.UUID) error
	SearchCustomers(ctx context.Context, term string) ([]db.Customer, error)
	CustomersWithin(ctx context.Context, lat, lng, radius float64) ([]db.Customer, error)
}

type CreateCustomerInput struct {
	CustomerID       string       `json:"customerId" validate:"required"`
	Name             string       `json:"name" validate:"required"`
	Address          string       `json:"address" validate:"required"`
	PhoneNumber      string       `json:"phoneNumber" validate:"required"`
	Email            *string      `json:"email" validate:"omitempty,email"`
	MeterType        string       `json:"meterType" validate:"omitempty,metertype"`
	TariffCategory   string       `json:"tariffCategory" validate:"required,tariff"`
	PowerCapacity    float64      `json:"powerCapacity" validate:"required,gt=0"`
	MeterNumber      string       `json:"meterNumber" validate:"required"`
	RegistrationDate *time.Time   `json:"registrationDate"`
	Notes            *string      `json:"notes"`
	Location         *db.GeoPoint `json:"location"`
}

type UpdateCustomerInput struct {
	CustomerID     *string      `json:"customerId" validate:"omitempty,min=1"`
	Name           *string      `json:"name" validate:"omitempty,min=1"`
	Address        *string      `json:"address" validate:"omitempty,min=1"`
	PhoneNumber    *string      `json:"phoneNumber" validate:"omitempty,min=1"`
	Email          *string      `json:"email" validate:"omitempty,email"`
	MeterType      *string      `json:"meterType" validate:"omitempty,metertype"`
	TariffCategory *string      `json:"tariffCategory" validate:"omitempty,tariff"`
	PowerCapacity  *float64     `json:"powerCapacity" validate:"omitempty,gt=0"`
	MeterNumber    *string      `json:"meterNumber" validate:"omitempty,min=1"`
	Notes          *string      `json:"notes"`
	Location       *db.GeoPoint `json:"location"`
}

// CustomerService manages the customer register.
type CustomerService struct {
	customers CustomerStore
	readings  ReadingFinder
	validator *validator.Validator
	logger    *zap.Logger
	now       Clock
}

func NewCustomerService(customers CustomerStore, readings ReadingFinder, v *validator.Validator, logger *zap.Logger) *CustomerService {
	return &CustomerService{customers: customers, readings: readings, validator: v, logger: logger, now: time.Now}
}

// NewCustomer builds a customer from validated input.
func NewCustomer(in CreateCustomerInput, now time.Time) (*db.Customer, error) {
	meterType, err := db.ParseMeterType(in.MeterType)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	tariff, err := db.ParseTariffCategory(in.TariffCategory)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if err := validLocation(in.Location); err != nil {
		return nil, err
	}

	c := &db.Customer{
		ID:               uuid.New(),
		CustomerID:       in.CustomerID,
		Name:             in.Name,
		Address:          in.Address,
		PhoneNumber:      in.PhoneNumber,
		Email:            in.Email,
		MeterType:        meterType,
		TariffCategory:   tariff,
		PowerCapacity:    in.PowerCapacity,
		MeterNumber:      in.MeterNumber,
		Active:           true,
		RegistrationDate: now.UTC(),
		Notes:            in.Notes,
		Location:         db.NewGeoPoint(0, 0),
	}
	if in.RegistrationDate != nil {
		c.RegistrationDate = in.RegistrationDate.UTC()
	}
	if in.Location != nil {
		c.Location = db.NewGeoPoint(in.Location.Lng(), in.Location.Lat())
	}
	return c, nil
}

func (s *CustomerService) Create(ctx context.Context, in CreateCustomerInput) (*db.Customer, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	c, err := NewCustomer(in, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.customers.CreateCustomer(ctx, c); err != nil {
		return nil, translate(err, customerNotFound)
	}

	s.logger.Info("customer registered",
		zap.String("customer_id", c.ID.String()),
		zap.String("meter_number", c.MeterNumber),
	)
	return c, nil
}

func (s *CustomerService) Get(ctx context.Context, id uuid.UUID) (*db.Customer, error) {
	c, err := s.customers.FindActiveCustomer(ctx, id)
	return c, translate(err, customerNotFound)
}

func (s *CustomerService) List(ctx context.Context, q query.Query) ([]db.Customer, error) {
	return s.customers.ListCustomers(ctx, q)
}

func (s *CustomerService) Update(ctx context.Context, id uuid.UUID, in UpdateCustomerInput) (*db.Customer, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	if err := validLocation(in.Location); err != nil {
		return nil, err
	}

	p := repository.CustomerPatch{
		CustomerID:    in.CustomerID,
		Name:          in.Name,
		Address:       in.Address,
		PhoneNumber:   in.PhoneNumber,
		Email:         in.Email,
		PowerCapacity: in.PowerCapacity,
		MeterNumber:   in.MeterNumber,
		Notes:         in.Notes,
		Location:      in.Location,
	}
	if in.MeterType != nil {
		mt, err := db.ParseMeterType(*in.MeterType)
		if err != nil {
			return nil, apperr.Validation(err.Error())
		}
		p.MeterType = &mt
	}
	if in.TariffCategory != nil {
		tc, err := db.ParseTariffCategory(*in.TariffCategory)
		if err != nil {
			return nil, apperr.Validation(err.Error())
		}
		p.TariffCategory = &tc
	}

	c, err := s.customers.UpdateCustomer(ctx, id, p)
	return c, translate(err, customerNotFound)
}

// Delete hides the customer from customer queries. Its readings are kept.
func (s *CustomerService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.customers.DeactivateCustomer(ctx, id); err != nil {
		return translate(err, customerNotFound)
	}
	s.logger.Info("customer deactivated", zap.String("customer_id", id.String()))
	return nil
}

func (s *CustomerService) Search(ctx context.Context, term string) ([]db.Customer, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, apperr.Validation("Please provide a search query")
	}
	return s.customers.SearchCustomers(ctx, term)
}

// Within finds customers within distance of center ("lat,lng"). unit is "mi" or "km".
func (s *CustomerService) Within(ctx context.Context, distance, center, unit string) ([]db.Customer, error) {
	d, err := parseFinite(distance)
	if err != nil || d < 0 {
		return nil, apperr.Validation("Please provide a non-negative distance")
	}

	latStr, lngStr, ok := strings.Cut(center, ",")
	lat, latErr := parseFinite(latStr)
	lng, lngErr := parseFinite(lngStr)
	if !ok || latErr != nil || lngErr != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, apperr.Validation("Please provide latitude and longitude in the format lat,lng.")
	}

	var radius float64
	switch unit {
	case "mi":
		radius = d / repository.EarthRadiusMiles
	case "km":
		radius = d / repository.EarthRadiusKilometres
	default:
		return nil, apperr.Validation("unit must be mi or km")
	}

	return s.customers.CustomersWithin(ctx, lat, lng, radius)
}

// Readings returns every reading recorded for the customer, newest first.
func (s *CustomerService) Readings(ctx context.Context, id uuid.UUID) ([]db.MeterReading, error) {
	return s.readings.FindReadings(ctx, repository.ReadingFilter{CustomerID: &id}, newestFirst(0))
}

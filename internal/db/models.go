package db

import (
	"time"

	"github.com/google/uuid"
)

// GeoPoint is a GeoJSON point; Coordinates are [longitude, latitude].
type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// NewGeoPoint builds a point from longitude and latitude.
func NewGeoPoint(lng, lat float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: [2]float64{lng, lat}}
}

func (p GeoPoint) Lng() float64 { return p.Coordinates[0] }
func (p GeoPoint) Lat() float64 { return p.Coordinates[1] }

// User represents an application user in the database
type User struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	Role              Role       `json:"role"`
	Active            bool       `json:"active"`
	PasswordChangedAt *time.Time `json:"passwordChangedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// ChangedPasswordAfter reports whether the password changed after a token issued at iat.
// Comparison is at second precision, the resolution of token timestamps.
func (u *User) ChangedPasswordAfter(iat time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.Unix() > iat.Unix()
}

// Customer represents a metered customer in the database
type Customer struct {
	ID               uuid.UUID      `json:"id"`
	CustomerID       string         `json:"customerId"`
	Name             string         `json:"name"`
	Address          string         `json:"address"`
	PhoneNumber      string         `json:"phoneNumber"`
	Email            *string        `json:"email,omitempty"`
	MeterType        MeterType      `json:"meterType"`
	TariffCategory   TariffCategory `json:"tariffCategory"`
	PowerCapacity    float64        `json:"powerCapacity"`
	MeterNumber      string         `json:"meterNumber"`
	Active           bool           `json:"active"`
	RegistrationDate time.Time      `json:"registrationDate"`
	Notes            *string        `json:"notes,omitempty"`
	Location         GeoPoint       `json:"location"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Summary returns the fields embedded into readings.
func (c *Customer) Summary() CustomerSummary {
	return CustomerSummary{
		ID:             c.ID,
		Name:           c.Name,
		CustomerID:     c.CustomerID,
		MeterNumber:    c.MeterNumber,
		TariffCategory: c.TariffCategory,
		PowerCapacity:  c.PowerCapacity,
	}
}

// CustomerSummary is the customer projection joined into readings
type CustomerSummary struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	CustomerID     string         `json:"customerId"`
	MeterNumber    string         `json:"meterNumber"`
	TariffCategory TariffCategory `json:"tariffCategory"`
	PowerCapacity  float64        `json:"powerCapacity"`
}

// ReaderSummary is the user projection joined into readings
type ReaderSummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// MeterReading represents a recorded meter reading in the database
type MeterReading struct {
	ID              uuid.UUID       `json:"id"`
	Customer        CustomerSummary `json:"customer"`
	ReadingDate     time.Time       `json:"readingDate"`
	PreviousReading float64         `json:"previousReading"`
	CurrentReading  float64         `json:"currentReading"`
	Consumption     float64         `json:"consumption"`
	MeterReader     ReaderSummary   `json:"meterReader"`
	Status          ReadingStatus   `json:"status"`
	Photo           *string         `json:"photo,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	Location        GeoPoint        `json:"location"`
	VerifiedBy      *uuid.UUID      `json:"verifiedBy,omitempty"`
	VerifiedAt      *time.Time      `json:"verifiedAt,omitempty"`
	BillingMonth    string          `json:"billingMonth"`
	BillingYear     int             `json:"billingYear"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// FieldReading represents a simplified reading submitted through the /api/readings routes
type FieldReading struct {
	ID              uuid.UUID          `json:"id"`
	CustomerID      string             `json:"customerId"`
	MeterNumber     string             `json:"meterNumber"`
	PreviousReading float64            `json:"previousReading"`
	CurrentReading  float64            `json:"currentReading"`
	ReadingDate     time.Time          `json:"readingDate"`
	Status          FieldReadingStatus `json:"status"`
	Notes           *string            `json:"notes,omitempty"`
	Photo           *string            `json:"photo,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

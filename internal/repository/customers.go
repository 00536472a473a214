package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/septivank/meter-reading-service/internal/db"
	"github.com/septivank/meter-reading-service/internal/query"
)

const customerColumns = `c.id, c.customer_id, c.name, c.address, c.phone_number, c.email,
	c.meter_type, c.tariff_category, c.power_capacity, c.meter_number, c.active,
	c.registration_date, c.notes, c.longitude, c.latitude, c.created_at, c.updated_at`

// CustomerQuery parses list parameters for customers.
var CustomerQuery = query.NewBuilder(map[string]query.Field{
	"customerId":       {Column: "c.customer_id", Kind: query.Text},
	"name":             {Column: "c.name", Kind: query.Text},
	"address":          {Column: "c.address", Kind: query.Text},
	"phoneNumber":      {Column: "c.phone_number", Kind: query.Text},
	"email":            {Column: "c.email", Kind: query.Text},
	"meterType":        {Column: "c.meter_type", Kind: query.Text},
	"tariffCategory":   {Column: "c.tariff_category", Kind: query.Text},
	"powerCapacity":    {Column: "c.power_capacity", Kind: query.Number},
	"meterNumber":      {Column: "c.meter_number", Kind: query.Text},
	"registrationDate": {Column: "c.registration_date", Kind: query.Time},
	"notes":            {Column: "c.notes", Kind: query.Text},
	"createdAt":        {Column: "c.created_at", Kind: query.Time},
	"updatedAt":        {Column: "c.updated_at", Kind: query.Time},
}, "-createdAt")

// Earth radii used to turn a distance into an angular radius.
const (
	EarthRadiusMiles      = 3963.2
	EarthRadiusKilometres = 6378.1
)

// CustomerPatch lists the customer fields that may change after registration.
type CustomerPatch struct {
	CustomerID     *string
	Name           *string
	Address        *string
	PhoneNumber    *string
	Email          *string
	MeterType      *db.MeterType
	TariffCategory *db.TariffCategory
	PowerCapacity  *float64
	MeterNumber    *string
	Notes          *string
	Location       *db.GeoPoint
}

func scanCustomer(row scanner) (*db.Customer, error) {
	var (
		c        db.Customer
		lng, lat float64
	)
	err := row.Scan(
		&c.ID,
		&c.CustomerID,
		&c.Name,
		&c.Address,
		&c.PhoneNumber,
		&c.Email,
		&c.MeterType,
		&c.TariffCategory,
		&c.PowerCapacity,
		&c.MeterNumber,
		&c.Active,
		&c.RegistrationDate,
		&c.Notes,
		&lng,
		&lat,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Location = db.NewGeoPoint(lng, lat)
	return &c, nil
}

func (r *Repository) queryCustomers(ctx context.Context, sql string, args ...any) ([]db.Customer, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err, "query customers")
	}
	defer rows.Close()

	customers := []db.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return customers, nil
}

// CreateCustomer inserts a customer and fills its timestamps.
func (r *Repository) CreateCustomer(ctx context.Context, c *db.Customer) error {
	query := `
		INSERT INTO customers (
			id, customer_id, name, address, phone_number, email, meter_type,
			tariff_category, power_capacity, meter_number, active, registration_date,
			notes, longitude, latitude
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, $11, $12, $13, $14)
		RETURNING active, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		c.ID,
		c.CustomerID,
		c.Name,
		c.Address,
		c.PhoneNumber,
		c.Email,
		c.MeterType,
		c.TariffCategory,
		c.PowerCapacity,
		c.MeterNumber,
		c.RegistrationDate,
		c.Notes,
		c.Location.Lng(),
		c.Location.Lat(),
	).Scan(&c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return classify(err, "create customer")
	}
	return nil
}

// FindActiveCustomer returns an active customer by id.
func (r *Repository) FindActiveCustomer(ctx context.Context, id uuid.UUID) (*db.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers c WHERE c.id = $1 AND c.active`

	c, err := scanCustomer(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classify(err, "query customer")
	}
	return c, nil
}

// ListCustomers returns active customers matching q.
func (r *Repository) ListCustomers(ctx context.Context, q query.Query) ([]db.Customer, error) {
	sql, args := buildList(`SELECT `+customerColumns+` FROM customers c`, []string{"c.active"}, nil, q)
	return r.queryCustomers(ctx, sql, args...)
}

// UpdateCustomer applies p to an active customer and returns the result.
func (r *Repository) UpdateCustomer(ctx context.Context, id uuid.UUID, p CustomerPatch) (*db.Customer, error) {
	var up patch
	if p.CustomerID != nil {
		up.set("customer_id", *p.CustomerID)
	}
	if p.Name != nil {
		up.set("name", *p.Name)
	}
	if p.Address != nil {
		up.set("address", *p.Address)
	}
	if p.PhoneNumber != nil {
		up.set("phone_number", *p.PhoneNumber)
	}
	if p.Email != nil {
		up.set("email", *p.Email)
	}
	if p.MeterType != nil {
		up.set("meter_type", *p.MeterType)
	}
	if p.TariffCategory != nil {
		up.set("tariff_category", *p.TariffCategory)
	}
	if p.PowerCapacity != nil {
		up.set("power_capacity", *p.PowerCapacity)
	}
	if p.MeterNumber != nil {
		up.set("meter_number", *p.MeterNumber)
	}
	if p.Notes != nil {
		up.set("notes", *p.Notes)
	}
	if p.Location != nil {
		up.set("longitude", p.Location.Lng())
		up.set("latitude", p.Location.Lat())
	}
	if up.empty() {
		return r.FindActiveCustomer(ctx, id)
	}

	sql, args := up.update("customers c", id, "c.active")
	c, err := scanCustomer(r.pool.QueryRow(ctx, sql+` RETURNING `+customerColumns, args...))
	if err != nil {
		return nil, classify(err, "update customer")
	}
	return c, nil
}

// DeactivateCustomer soft-deletes a customer. Existing readings keep referring to it.
func (r *Repository) DeactivateCustomer(ctx context.Context, id uuid.UUID) error {
	return r.deactivate(ctx, "customers", id)
}

// SearchCustomers matches term case-insensitively against name, customer id,
// meter number, address and phone number.
func (r *Repository) SearchCustomers(ctx context.Context, term string) ([]db.Customer, error) {
	query := `
		SELECT ` + customerColumns + `
		FROM customers c
		WHERE c.active AND (
			c.name ILIKE $1 OR c.customer_id ILIKE $1 OR c.meter_number ILIKE $1
			OR c.address ILIKE $1 OR c.phone_number ILIKE $1
		)
		ORDER BY c.name
	`
	return r.queryCustomers(ctx, query, "%"+escapeLike(term)+"%")
}

// CustomersWithin returns active customers whose location lies within
// radius radians of the centre, measured along a great circle.
func (r *Repository) CustomersWithin(ctx context.Context, lat, lng, radius float64) ([]db.Customer, error) {
	query := `
		SELECT ` + customerColumns + `
		FROM customers c
		WHERE c.active AND acos(least(1.0, greatest(-1.0,
			sin(radians($1)) * sin(radians(c.latitude)) +
			cos(radians($1)) * cos(radians(c.latitude)) * cos(radians(c.longitude) - radians($2))
		))) <= $3
	`
	return r.queryCustomers(ctx, query, lat, lng, radius)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

package db

import (
	"fmt"
	"slices"
)

// Role is a user's access level.
type Role string

const (
	RolePetugas    Role = "petugas"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

var roles = []Role{RolePetugas, RoleSupervisor, RoleAdmin}

// ParseRole returns the role named s. An empty string yields the field-agent default.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return RolePetugas, nil
	}
	if r := Role(s); slices.Contains(roles, r) {
		return r, nil
	}
	return "", fmt.Errorf("invalid role %q", s)
}

// ReadingStatus is the verification state of a meter reading.
type ReadingStatus string

const (
	StatusPending   ReadingStatus = "pending"
	StatusVerified  ReadingStatus = "verified"
	StatusDisputed  ReadingStatus = "disputed"
	StatusCorrected ReadingStatus = "corrected"
)

var readingStatuses = []ReadingStatus{StatusPending, StatusVerified, StatusDisputed, StatusCorrected}

func ParseReadingStatus(s string) (ReadingStatus, error) {
	if st := ReadingStatus(s); slices.Contains(readingStatuses, st) {
		return st, nil
	}
	return "", fmt.Errorf("invalid reading status %q", s)
}

// ReportableStatuses are the statuses counted in consumption reports.
var ReportableStatuses = []ReadingStatus{StatusVerified, StatusCorrected}

// FieldReadingStatus is the status of a simplified field reading.
type FieldReadingStatus string

const (
	FieldStatusPending  FieldReadingStatus = "pending"
	FieldStatusVerified FieldReadingStatus = "verified"
	FieldStatusRejected FieldReadingStatus = "rejected"
)

func ParseFieldReadingStatus(s string) (FieldReadingStatus, error) {
	switch st := FieldReadingStatus(s); st {
	case FieldStatusPending, FieldStatusVerified, FieldStatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("invalid field reading status %q", s)
}

// MeterType is the customer's billing arrangement.
type MeterType string

const (
	MeterPostpaid MeterType = "postpaid"
	MeterPrepaid  MeterType = "prepaid"
)

// ParseMeterType returns the meter type named s. An empty string yields postpaid.
func ParseMeterType(s string) (MeterType, error) {
	switch mt := MeterType(s); mt {
	case "":
		return MeterPostpaid, nil
	case MeterPostpaid, MeterPrepaid:
		return mt, nil
	}
	return "", fmt.Errorf("invalid meter type %q", s)
}

// TariffCategory is the customer's rate classification.
type TariffCategory string

// TariffCategories lists every accepted tariff code.
var TariffCategories = []TariffCategory{"R1", "R2", "R3", "B1", "B2", "I1", "I2", "P1"}

func ParseTariffCategory(s string) (TariffCategory, error) {
	if tc := TariffCategory(s); slices.Contains(TariffCategories, tc) {
		return tc, nil
	}
	return "", fmt.Errorf("invalid tariff category %q", s)
}

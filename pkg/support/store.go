package support

import (
	"context"
	"errors"
)

// ErrNotFound means the identified record does not exist. Tool handlers
// translate it into a domain-level "not found" payload for the model.
var ErrNotFound = errors.New("support: not found")

// ErrUnavailable means the backing store could not be reached. Distinct
// from ErrNotFound so an outage is never reported to a customer as a
// missing account.
var ErrUnavailable = errors.New("support: store unavailable")

// Store is the persistence boundary of the support domain. Implemented
// by MemStore for development and PGStore for production.
type Store interface {
	// FindCustomer resolves a customer by id or by phone last-four.
	FindCustomer(ctx context.Context, identifier string) (*Customer, error)

	// BillingHistory returns up to months bills, newest first.
	BillingHistory(ctx context.Context, customerID string, months int) ([]Billing, error)

	// CurrentUsage returns the month-to-date smart meter read.
	CurrentUsage(ctx context.Context, customerID string) (*CurrentUsage, error)

	// AvailablePlans returns all plans currently open for contract.
	AvailablePlans(ctx context.Context) ([]Plan, error)

	// PlanByID returns one plan regardless of availability.
	PlanByID(ctx context.Context, planID string) (*Plan, error)

	// CreatePlanChangeRequest records a submitted change request.
	CreatePlanChangeRequest(ctx context.Context, req *PlanChangeRequest) error
}

// Package customer defines the customer account record, its current-plan
// snapshot and the storage contract for both.
package customer

import (
	"time"

	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/types"
)

// Status is the account standing of a customer.
type Status string

const (
	StatusActive     Status = "active"
	StatusSuspended  Status = "suspended"
	StatusTerminated Status = "terminated"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusTerminated:
		return true
	}
	return false
}

// Customer is a subscriber account.
//
// Balance is the amount owed by the customer: payments lower it, refunds
// raise it. DefaultPaymentMethodID is the single default instrument pointer;
// payment methods derive their IsDefault flag from it.
type Customer struct {
	types.Entity
	ID                     id.CustomerID      `json:"id"`
	FirstName              string             `json:"firstName"`
	LastName               string             `json:"lastName"`
	Email                  string             `json:"email"`
	PhoneNumber            string             `json:"phoneNumber"`
	UserID                 string             `json:"userId,omitempty"`
	Address                *Address           `json:"address,omitempty"`
	CurrentPlan            *CurrentPlan       `json:"currentPlan,omitempty"`
	Balance                types.Money        `json:"balance"`
	Status                 Status             `json:"status"`
	DefaultPaymentMethodID id.PaymentMethodID `json:"defaultPaymentMethodId,omitempty"`
}

// FullName joins first and last name.
func (c *Customer) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Address is a postal address.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// CurrentPlan is the snapshot of the one subscription a customer is
// currently on.
type CurrentPlan struct {
	SubscriptionID id.SubscriptionID `json:"subscriptionId"`
	PlanID         id.PlanID         `json:"planId"`
	StartDate      time.Time         `json:"startDate"`
	EndDate        time.Time         `json:"endDate"`
	AutoRenew      bool              `json:"autoRenew"`
}

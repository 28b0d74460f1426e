// Package crmledger is the billing and subscription ledger of a telecom CRM.
//
// crmledger is a library, not a service. HTTP handlers or a Forge
// application hand it typed requests; it enforces the cross-entity rules
// the CRM depends on and returns typed results or typed errors:
//
//   - Subscription lifecycle (pending, active, canceled, expired) and the
//     customer's single current plan
//   - Invoice issuance, settlement by payment and overdue marking
//   - The single default payment method per customer
//   - Monotonic year-scoped ticket numbers and month-scoped invoice numbers
//   - Dashboard revenue, growth and retention figures
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/crmledger"
//	    "github.com/xraph/crmledger/store/mongo"
//	)
//
//	// db is a *grove.DB opened with the grove mongo driver.
//	l := crmledger.New(mongo.New(db))
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Lifecycle
//
// Enroll creates a subscription that is active when its start date has
// passed and pending otherwise:
//
//	sub, err := l.Enroll(ctx, crmledger.EnrollInput{
//	    CustomerID: customerID,
//	    PlanID:     planID,
//	    AutoRenew:  true,
//	})
//
// Renew extends an active subscription and issues the renewal invoice in one
// atomic store call. Paying the invoice records a completed payment:
//
//	sub, inv, err := l.Renew(ctx, sub.ID, sub.EndDate.AddDate(0, 1, 0))
//	txn, err := l.RecordTransaction(ctx, crmledger.RecordTransactionInput{
//	    CustomerID: sub.CustomerID,
//	    InvoiceID:  inv.ID,
//	    Amount:     inv.Amount,
//	    Type:       transaction.TypePayment,
//	})
//
// # Errors
//
// Every error matches one kind through errors.Is: ErrNotFound,
// ErrInvalidReference, ErrValidation, ErrStateConflict or
// ErrConcurrencyConflict. Operations that lose a concurrent update race are
// retried a bounded number of times before the conflict is returned.
//
// # Background work
//
// Start runs a sweeper that activates due pending subscriptions, expires
// lapsed ones and marks past-due invoices overdue. Each pass is idempotent.
//
// All monetary values are integer minor units (types.Money). Ratios are
// computed with shopspring/decimal and rounded half to even.
package crmledger

// Package postgres is the PostgreSQL crmledger store. Operations that
// touch several rows run as one statement built from data-modifying CTEs,
// or as a transaction that locks the customer row first.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/crmledger"
	"github.com/xraph/crmledger/audit"
	"github.com/xraph/crmledger/customer"
	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/invoice"
	"github.com/xraph/crmledger/network"
	"github.com/xraph/crmledger/paymentmethod"
	"github.com/xraph/crmledger/plan"
	"github.com/xraph/crmledger/settings"
	ledgerstore "github.com/xraph/crmledger/store"
	"github.com/xraph/crmledger/subscription"
	"github.com/xraph/crmledger/ticket"
	"github.com/xraph/crmledger/transaction"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM. Migrate needs the
// grove PostgreSQL migration executor, registered by a blank import of
// github.com/xraph/grove/drivers/pgdriver/pgmigrate.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("crmledger/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("crmledger/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn in a transaction that commits when fn returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *pgdriver.PgTx) error) error {
	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("crmledger/postgres: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if err := fn(tx); err != nil {
		return txErr(err)
	}
	if err := tx.Commit(); err != nil {
		return txErr(fmt.Errorf("crmledger/postgres: commit: %w", err))
	}
	return nil
}

// ==================== Customer Store ====================

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	if _, err := s.pg.NewInsert(toCustomerModel(c)).Exec(ctx); err != nil {
		return insertErr("create customer", err)
	}
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	m := new(customerModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", customerID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("crmledger/postgres: get customer: %w", err)
	}
	return fromCustomerModel(m)
}

func (s *Store) UpdateCustomerStatus(ctx context.Context, customerID id.CustomerID, status customer.Status, at time.Time) error {
	res, err := s.pg.NewUpdate((*customerModel)(nil)).
		Set("status = $1", string(status)).
		Set("updated_at = $2", at.UTC()).
		Where("id = $3", customerID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("crmledger/postgres: update customer status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return crmledger.ErrCustomerNotFound
	}
	return nil
}

func (s *Store) CountCustomersByMonth(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	var raw string
	err := s.pg.NewRaw(`
		SELECT COALESCE(json_object_agg(month, n), '{}')::text FROM (
			SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM') AS month, COUNT(*) AS n
			FROM crmledger_customers
			WHERE created_at >= $1 AND created_at < $2
			GROUP BY 1
		) g
	`, from.UTC(), to.UTC()).Scan(ctx, &raw)
	if err != nil {
		return nil, fmt.Errorf("crmledger/postgres: count customers by month: %w", err)
	}

	out := map[string]int64{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("crmledger/postgres: count customers by month decode: %w", err)
	}
	return out, nil
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	if _, err := s.pg.NewInsert(toPlanModel(p)).Exec(ctx); err != nil {
		return insertErr("create plan", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	m := new(planModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", planID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrPlanNotFound
		}
		return nil, fmt.Errorf("crmledger/postgres: get plan: %w", err)
	}
	return fromPlanModel(m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel
	q := s.pg.NewSelect(&models)

	if opts.Status != "" {
		q = q.Where("status = $1", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/postgres: list plans: %w", err)
	}

	result := make([]*plan.Plan, len(models))
	for i := range models {
		p, err := fromPlanModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) UpdatePlan(ctx context.Context, p *plan.Plan) error {
	res, err := s.pg.NewUpdate(toPlanModel(p)).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("crmledger/postgres: update plan: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return crmledger.ErrPlanNotFound
	}
	return nil
}

// ==================== Subscription Store ====================

// CreateSubscription inserts sub while holding the customer row, so an
// active subscription takes over the current plan in the same transaction.
func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) (subscription.Outcome, error) {
	var out subscription.Outcome
	err := s.inTx(ctx, func(tx *pgdriver.PgTx) error {
		prev, err := lockCurrentPlan(ctx, tx, sub.CustomerID.String())
		if err != nil {
			return err
		}
		if _, err := tx.NewInsert(toSubscriptionModel(sub)).Exec(ctx); err != nil {
			return insertErr("create subscription", err)
		}
		if out.Subscription, err = getSubscription(ctx, tx, sub.ID.String()); err != nil {
			return err
		}
		if subscription.TakesCurrent(sub.Status) {
			out.Superseded, err = takeCurrent(ctx, tx, out.Subscription, prev, sub.UpdatedAt)
		}
		return err
	})
	if err != nil {
		return subscription.Outcome{}, err
	}
	return out, nil
}

// lockCurrentPlan locks the customer row and returns the subscription its
// current plan points at ("" when none).
func lockCurrentPlan(ctx context.Context, tx *pgdriver.PgTx, customerID string) (string, error) {
	var current string
	err := tx.NewRaw(
		"SELECT current_subscription_id FROM crmledger_customers WHERE id = $1 FOR UPDATE", customerID,
	).Scan(ctx, &current)
	if err != nil {
		if isNoRows(err) {
			return "", crmledger.ErrCustomerNotFound
		}
		return "", fmt.Errorf("crmledger/postgres: lock customer: %w", err)
	}
	return current, nil
}

// takeCurrent points the customer's current plan at sub and cancels prevID
// when it is another subscription that is still active.
func takeCurrent(ctx context.Context, tx *pgdriver.PgTx, sub *subscription.Subscription, prevID string, at time.Time) (*subscription.Subscription, error) {
	var superseded *subscription.Subscription
	if prevID != "" && prevID != sub.ID.String() {
		prev, err := id.ParseSubscriptionID(prevID)
		if err != nil {
			return nil, err
		}
		rows, err := guardedTransition(ctx, tx, subscription.Supersede(prev, at))
		if err != nil {
			return nil, err
		}
		if rows > 0 {
			if superseded, err = getSubscription(ctx, tx, prevID); err != nil {
				return nil, err
			}
		}
	}

	cp := sub.CurrentPlan()
	_, err := tx.NewUpdate((*customerModel)(nil)).
		Set("current_subscription_id = $1", cp.SubscriptionID.String()).
		Set("current_plan_id = $2", cp.PlanID.String()).
		Set("current_start = $3", cp.StartDate.UTC()).
		Set("current_end = $4", cp.EndDate.UTC()).
		Set("current_auto_renew = $5", cp.AutoRenew).
		Set("updated_at = $6", at.UTC()).
		Where("id = $7", sub.CustomerID.String()).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("crmledger/postgres: take current plan: %w", err)
	}
	return superseded, nil
}

// releaseCurrent clears the customer's current plan when it points at sub.
func releaseCurrent(ctx context.Context, tx *pgdriver.PgTx, sub *subscription.Subscription, at time.Time) error {
	_, err := tx.NewUpdate((*customerModel)(nil)).
		Set("current_subscription_id = ''").
		Set("current_plan_id = ''").
		Set("current_start = NULL").
		Set("current_end = NULL").
		Set("current_auto_renew = FALSE").
		Set("updated_at = $1", at.UTC()).
		Where("id = $2", sub.CustomerID.String()).
		Where("current_subscription_id = $3", sub.ID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("crmledger/postgres: release current plan: %w", err)
	}
	return nil
}

func getSubscription(ctx context.Context, tx *pgdriver.PgTx, subID string) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	if err := tx.NewSelect(m).Where("id = $1", subID).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("crmledger/postgres: get subscription: %w", err)
	}
	return fromSubscriptionModel(m)
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("crmledger/postgres: get subscription: %w", err)
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListSubscriptions(ctx context.Context, customerID id.CustomerID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.pg.NewSelect(&models).Where("customer_id = $1", customerID.String())

	if opts.Status != "" {
		q = q.Where("status = $2", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/postgres: list subscriptions: %w", err)
	}
	return fromSubscriptionModels(models)
}

func fromSubscriptionModels(models []subscriptionModel) ([]*subscription.Subscription, error) {
	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

// TransitionSubscription locks the owning customer first, then applies the
// guarded status change and its current-plan effect in one transaction.
func (s *Store) TransitionSubscription(ctx context.Context, t subscription.Transition) (subscription.Outcome, error) {
	var out subscription.Outcome
	err := s.inTx(ctx, func(tx *pgdriver.PgTx) error {
		var customerID string
		err := tx.NewRaw(
			"SELECT customer_id FROM crmledger_subscriptions WHERE id = $1", t.SubscriptionID.String(),
		).Scan(ctx, &customerID)
		if err != nil {
			if isNoRows(err) {
				return crmledger.ErrSubscriptionNotFound
			}
			return fmt.Errorf("crmledger/postgres: transition subscription: %w", err)
		}
		prev, err := lockCurrentPlan(ctx, tx, customerID)
		if err != nil {
			return err
		}

		rows, err := guardedTransition(ctx, tx, t)
		if err != nil {
			return err
		}
		if rows == 0 {
			return transitionFailure(ctx, tx, t)
		}
		if out.Subscription, err = getSubscription(ctx, tx, t.SubscriptionID.String()); err != nil {
			return err
		}

		switch {
		case subscription.TakesCurrent(t.To):
			out.Superseded, err = takeCurrent(ctx, tx, out.Subscription, prev, t.At)
		case subscription.ReleasesCurrent(t.To):
			err = releaseCurrent(ctx, tx, out.Subscription, t.At)
		}
		return err
	})
	if err != nil {
		return subscription.Outcome{}, err
	}
	return out, nil
}

// guardedTransition applies t only while the row satisfies its guard and
// reports how many rows changed.
func guardedTransition(ctx context.Context, tx *pgdriver.PgTx, t subscription.Transition) (int64, error) {
	at := t.At.UTC()
	q := tx.NewUpdate((*subscriptionModel)(nil)).
		Set("status = $1", string(t.To)).
		Set("updated_at = $2", at)

	argIdx := 2
	switch t.To {
	case subscription.StatusActive:
		argIdx++
		q = q.Set(fmt.Sprintf("activated_at = $%d", argIdx), at)
	case subscription.StatusCanceled:
		argIdx++
		q = q.Set(fmt.Sprintf("canceled_at = $%d", argIdx), at)
		argIdx++
		q = q.Set(fmt.Sprintf("cancel_reason = $%d", argIdx), t.Reason)
	case subscription.StatusExpired:
		argIdx++
		q = q.Set(fmt.Sprintf("expired_at = $%d", argIdx), at)
	}

	argIdx++
	q = q.Where(fmt.Sprintf("id = $%d", argIdx), t.SubscriptionID.String())

	in, args := placeholders(&argIdx, statusStrings(t.From))
	q = q.Where("status IN ("+in+")", args...)

	if !t.LapsedBefore.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("NOT auto_renew AND end_date < $%d", argIdx), t.LapsedBefore.UTC())
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("crmledger/postgres: transition subscription: %w", err)
	}
	return res.RowsAffected()
}

// transitionFailure explains why the guarded update of t matched nothing.
func transitionFailure(ctx context.Context, tx *pgdriver.PgTx, t subscription.Transition) error {
	sub, err := getSubscription(ctx, tx, t.SubscriptionID.String())
	if err != nil {
		return err
	}
	switch {
	case !t.AllowsStatus(sub.Status):
		return crmledger.ErrInvalidTransition
	case !t.Allows(sub):
		return crmledger.ErrSubscriptionNotExpirable
	}
	return crmledger.ErrConcurrencyConflict
}

const renewSubscriptionSQL = `
WITH sub AS (
    UPDATE crmledger_subscriptions
    SET end_date = $3::timestamptz, updated_at = $4::timestamptz
    WHERE id = $1::text AND status = 'active' AND end_date = $2::timestamptz
    RETURNING id, customer_id
), inv AS (
    INSERT INTO crmledger_invoices (
        id, number, customer_id, subscription_id, amount_cents, currency, status,
        issue_date, due_date, items, payment_method, created_at, updated_at
    )
    SELECT $5::text, $6::text, sub.customer_id, sub.id, $7::bigint, $8::text, $9::text,
        $10::timestamptz, $11::timestamptz, $12::jsonb, $13::jsonb, $4::timestamptz, $4::timestamptz
    FROM sub
    RETURNING id
), cust AS (
    UPDATE crmledger_customers c
    SET current_end = $3::timestamptz, updated_at = $4::timestamptz
    FROM sub
    WHERE c.id = sub.customer_id AND c.current_subscription_id = sub.id
    RETURNING c.id
)
SELECT CASE WHEN EXISTS (SELECT 1 FROM inv) THEN 'ok' ELSE 'guard' END`

func (s *Store) RenewSubscription(ctx context.Context, r subscription.Renewal) (*subscription.Subscription, error) {
	m := toInvoiceModel(r.Invoice)
	var pm any
	if len(m.PaymentMethod) > 0 {
		pm = string(m.PaymentMethod)
	}

	var result string
	err := s.pg.NewRaw(renewSubscriptionSQL,
		r.SubscriptionID.String(), r.PreviousEnd.UTC(), r.NewEnd.UTC(), r.At.UTC(),
		m.ID, m.Number, m.AmountCents, m.Currency, m.Status,
		m.IssueDate, m.DueDate, string(m.Items), pm,
	).Scan(ctx, &result)
	if err != nil {
		return nil, insertErr("renew subscription", err)
	}

	if result != "ok" {
		sub, err := s.GetSubscription(ctx, r.SubscriptionID)
		switch {
		case err != nil:
			return nil, err
		case sub.Status != subscription.StatusActive:
			return nil, crmledger.ErrInvalidTransition
		}
		return nil, crmledger.ErrConcurrencyConflict
	}
	return s.GetSubscription(ctx, r.SubscriptionID)
}

func (s *Store) ListDueForActivation(ctx context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.pg.NewSelect(&models).
		Where("status = $1", string(subscription.StatusPending)).
		Where("start_date <= $2", asOf.UTC()).
		OrderExpr("start_date ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/postgres: list due for activation: %w", err)
	}
	return fromSubscriptionModels(models)
}

func (s *Store) ListDueForExpiry(ctx context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.pg.NewSelect(&models).
		Where("status = $1", string(subscription.StatusActive)).
		Where("NOT auto_renew").
		Where("end_date < $2", asOf.UTC()).
		OrderExpr("end_date ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/postgres: list due for expiry: %w", err)
	}
	return fromSubscriptionModels(models)
}

func (s *Store) CountActiveSubscriptions(ctx context.Context, asOf time.Time) (int64, error) {
	var n int64
	err := s.pg.NewRaw(`
		SELECT COUNT(*) FROM crmledger_subscriptions
		WHERE status = $1 AND start_date <= $2
	`, string(subscription.StatusActive), asOf.UTC()).Scan(ctx, &n)
	if err != nil {
		return 0, fmt.Errorf("crmledger/postgres: count active subscriptions: %w", err)
	}
	return n, nil
}

func (s *Store) RenewalStats(ctx context.Context) (subscription.RenewalStats, error) {
	var stats subscription.RenewalStats
	err := s.pg.NewRaw(`SELECT COUNT(*) FROM crmledger_subscriptions`).Scan(ctx, &stats.Total)
	if err != nil {
		return stats, fmt.Errorf("crmledger/postgres: renewal stats: %w", err)
	}
	err = s.pg.NewRaw(`SELECT COUNT(*) FROM crmledger_subscriptions WHERE auto_renew`).Scan(ctx, &stats.AutoRenew)
	if err != nil {
		return stats, fmt.Errorf("crmledger/postgres: renewal stats: %w", err)
	}
	return stats, nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	if _, err := s.pg.NewInsert(toInvoiceModel(inv)).Exec(ctx); err != nil {
		return insertErr("create invoice", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", invID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("crmledger/postgres: get invoice: %w", err)
	}
	return fromInvoiceModel(m)
}

func (s *Store) ListInvoices(ctx context.Context, customerID id.CustomerID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	q := s.pg.NewSelect(&models).Where("customer_id = $1", customerID.String())

	if opts.Status != "" {
		q = q.Where("status = $2", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("issue_date DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/postgres: list invoices: %w", err)
	}

	result := make([]*invoice.Invoice, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = inv
	}
	return result, nil
}

func (s *Store) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	res, err := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("status = $1", string(invoice.StatusOverdue)).
		Set("updated_at = $2", asOf.UTC()).
		Where("status = $3", string(invoice.StatusUnpaid)).
		Where("due_date < $4", asOf.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("crmledger/postgres: mark overdue: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) CancelInvoice(ctx context.Context, invID id.InvoiceID, at time.Time) (*invoice.Invoice, error) {
	at = at.UTC()
	res, err := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("status = $1", string(invoice.StatusCanceled)).
		Set("canceled_at = $2", at).
		Set("updated_at = $3", at).
		Where("id = $4", invID.String()).
		Where("status IN ($5, $6)", string(invoice.StatusUnpaid), string(invoice.StatusOverdue)).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("crmledger/postgres: cancel invoice: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	inv, err := s.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	if rows > 0 {
		return inv, nil
	}
	switch inv.Status {
	case invoice.StatusPaid:
		return nil, crmledger.ErrInvoiceAlreadyPaid
	case invoice.StatusCanceled:
		return nil, crmledger.ErrInvoiceAlreadyCanceled
	}
	return nil, crmledger.ErrConcurrencyConflict
}

func (s *Store) NextUnpaidInvoice(ctx context.Context, customerID id.CustomerID) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.pg.NewSelect(m).
		Where("customer_id = $1", customerID.String()).
		Where("status IN ($2, $3)", string(invoice.StatusUnpaid), string(invoice.StatusOverdue)).
		OrderExpr("due_date ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("crmledger/postgres: next unpaid invoice: %w", err)
	}
	return fromInvoiceModel(m)
}

func (s *Store) SumPaidRevenue(ctx context.Context, currency string, r invoice.Range) (int64, error) {
	query := `SELECT COALESCE(SUM(amount_cents), 0)::bigint FROM crmledger_invoices WHERE status = $1 AND currency = $2`
	args := []any{string(invoice.StatusPaid), currency}

	argIdx := 2
	if !r.From.IsZero() {
		argIdx++
		query += fmt.Sprintf(" AND paid_date >= $%d", argIdx)
		args = append(args, r.From.UTC())
	}
	argIdx++
	if r.ToInclusive {
		query += fmt.Sprintf(" AND paid_date <= $%d", argIdx)
	} else {
		query += fmt.Sprintf(" AND paid_date < $%d", argIdx)
	}
	args = append(args, r.To.UTC())

	var total int64
	if err := s.pg.NewRaw(query, args...).Scan(ctx, &total); err != nil {
		return 0, fmt.Errorf("crmledger/postgres: sum paid revenue: %w", err)
	}
	return total, nil
}

// ==================== Transaction Store ====================

const recordTransactionSQL = `
WITH c AS (
    SELECT id FROM crmledger_customers WHERE id = $2::text FOR UPDATE
), inv AS (
    UPDATE crmledger_invoices
    SET status = 'paid', paid_date = $12::timestamptz, updated_at = $10::timestamptz
    WHERE $11::boolean AND id = $3::text AND status IN ('unpaid', 'overdue')
        AND EXISTS (SELECT 1 FROM c)
    RETURNING id
), ok AS (
    SELECT 1 AS one
    WHERE EXISTS (SELECT 1 FROM c) AND (NOT $11::boolean OR EXISTS (SELECT 1 FROM inv))
), ins AS (
    INSERT INTO crmledger_transactions (
        id, customer_id, invoice_id, amount_cents, currency, type, status, instrument, reference, date
    )
    SELECT $1::text, $2::text, $3::text, $4::bigint, $5::text, $6::text, $7::text, $8::jsonb, $9::text, $10::timestamptz
    FROM ok
    RETURNING id
), bal AS (
    UPDATE crmledger_customers
    SET balance_amount = balance_amount + $13::bigint, updated_at = $10::timestamptz
    WHERE id = $2::text AND $13::bigint <> 0 AND EXISTS (SELECT 1 FROM ins)
    RETURNING id
)
SELECT CASE
    WHEN NOT EXISTS (SELECT 1 FROM c) THEN 'customer_not_found'
    WHEN EXISTS (SELECT 1 FROM ins) THEN 'ok'
    WHEN EXISTS (SELECT 1 FROM crmledger_invoices WHERE id = $3::text) THEN 'invoice_not_payable'
    ELSE 'invoice_not_found'
END`

func (s *Store) RecordTransaction(ctx context.Context, t *transaction.Transaction, e transaction.Effect) error {
	instrument, err := json.Marshal(t.Instrument)
	if err != nil {
		return err
	}

	var result string
	err = s.pg.NewRaw(recordTransactionSQL,
		t.ID.String(), t.CustomerID.String(), t.InvoiceID.String(),
		t.Amount.Amount, t.Amount.Currency, string(t.Type), string(t.Status),
		string(instrument), t.Reference, t.Date.UTC(),
		e.SettleInvoice, e.PaidAt.UTC(), e.BalanceDelta,
	).Scan(ctx, &result)
	if err != nil {
		return insertErr("record transaction", err)
	}

	switch result {
	case "ok":
		return nil
	case "customer_not_found":
		return crmledger.ErrCustomerNotFound
	case "invoice_not_payable":
		return crmledger.ErrInvoiceNotPayable
	case "invoice_not_found":
		return crmledger.ErrInvoiceNotFound
	}
	return fmt.Errorf("crmledger/postgres: record transaction: unexpected result %q", result)
}

func (s *Store) ListTransactions(ctx context.Context, customerID id.CustomerID, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	var models []transactionModel
	q := s.pg.NewSelect(&models).Where("customer_id = $1", customerID.String())

	argIdx := 1
	if opts.Type != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("type = $%d", argIdx), string(opts.Type))
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("date DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/postgres: list transactions: %w", err)
	}

	result := make([]*transaction.Transaction, len(models))
	for i := range models {
		t, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

// ==================== Payment Method Store ====================

const createPaymentMethodSQL = `
WITH c AS (
    SELECT id FROM crmledger_customers WHERE id = $2::text FOR UPDATE
), ins AS (
    INSERT INTO crmledger_payment_methods (
        id, customer_id, type, card_brand, last_four, expiry_date, created_at, updated_at
    )
    SELECT $1::text, c.id, $3::text, $4::text, $5::text, $6::text, $7::timestamptz, $7::timestamptz
    FROM c
    RETURNING id
), def AS (
    UPDATE crmledger_customers
    SET default_payment_method_id = $1::text, updated_at = $7::timestamptz
    WHERE id = $2::text AND $8::boolean AND EXISTS (SELECT 1 FROM ins)
    RETURNING id
)
SELECT CASE WHEN EXISTS (SELECT 1 FROM ins) THEN 'ok' ELSE 'customer_not_found' END`

func (s *Store) CreatePaymentMethod(ctx context.Context, pm *paymentmethod.PaymentMethod, makeDefault bool) error {
	var result string
	err := s.pg.NewRaw(createPaymentMethodSQL,
		pm.ID.String(), pm.CustomerID.String(), string(pm.Type),
		pm.CardBrand, pm.LastFour, pm.ExpiryDate, pm.CreatedAt.UTC(), makeDefault,
	).Scan(ctx, &result)
	if err != nil {
		return insertErr("create payment method", err)
	}
	if result != "ok" {
		return crmledger.ErrCustomerNotFound
	}
	return nil
}

// defaultPointer returns the customer's default payment method id, or "".
func (s *Store) defaultPointer(ctx context.Context, customerID string) (string, error) {
	var def string
	err := s.pg.NewRaw(
		`SELECT default_payment_method_id FROM crmledger_customers WHERE id = $1`, customerID,
	).Scan(ctx, &def)
	if err != nil {
		if isNoRows(err) {
			return "", crmledger.ErrCustomerNotFound
		}
		return "", err
	}
	return def, nil
}

func (s *Store) GetPaymentMethod(ctx context.Context, pmID id.PaymentMethodID) (*paymentmethod.PaymentMethod, error) {
	m := new(paymentMethodModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", pmID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrPaymentMethodNotFound
		}
		return nil, fmt.Errorf("crmledger/postgres: get payment method: %w", err)
	}

	def, err := s.defaultPointer(ctx, m.CustomerID)
	if err != nil && !errors.Is(err, crmledger.ErrCustomerNotFound) {
		return nil, fmt.Errorf("crmledger/postgres: get payment method: %w", err)
	}
	return fromPaymentMethodModel(m, def)
}

func (s *Store) ListPaymentMethods(ctx context.Context, customerID id.CustomerID) ([]*paymentmethod.PaymentMethod, error) {
	var models []paymentMethodModel
	err := s.pg.NewSelect(&models).
		Where("customer_id = $1", customerID.String()).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("crmledger/postgres: list payment methods: %w", err)
	}

	def, err := s.defaultPointer(ctx, customerID.String())
	if err != nil && !errors.Is(err, crmledger.ErrCustomerNotFound) {
		return nil, fmt.Errorf("crmledger/postgres: list payment methods: %w", err)
	}

	result := make([]*paymentmethod.PaymentMethod, len(models))
	for i := range models {
		pm, err := fromPaymentMethodModel(&models[i], def)
		if err != nil {
			return nil, err
		}
		result[i] = pm
	}
	paymentmethod.SortDefaultFirst(result)
	return result, nil
}

const deletePaymentMethodSQL = `
WITH del AS (
    DELETE FROM crmledger_payment_methods WHERE id = $1::text RETURNING id, customer_id
), clr AS (
    UPDATE crmledger_customers c
    SET default_payment_method_id = '', updated_at = $2::timestamptz
    FROM del
    WHERE c.id = del.customer_id AND c.default_payment_method_id = del.id
    RETURNING c.id
)
SELECT CASE
    WHEN NOT EXISTS (SELECT 1 FROM del) THEN 'not_found'
    WHEN EXISTS (SELECT 1 FROM clr) THEN 'default'
    ELSE 'ok'
END`

func (s *Store) DeletePaymentMethod(ctx context.Context, pmID id.PaymentMethodID, at time.Time) (bool, error) {
	var result string
	err := s.pg.NewRaw(deletePaymentMethodSQL, pmID.String(), at.UTC()).Scan(ctx, &result)
	if err != nil {
		return false, fmt.Errorf("crmledger/postgres: delete payment method: %w", err)
	}
	if result == "not_found" {
		return false, crmledger.ErrPaymentMethodNotFound
	}
	return result == "default", nil
}

// The FOR SHARE lock holds back a concurrent delete of the method until the
// pointer is committed, so the delete then clears it.
const setDefaultPaymentMethodSQL = `
WITH pm AS (
    SELECT id, customer_id FROM crmledger_payment_methods WHERE id = $2::text FOR SHARE
), upd AS (
    UPDATE crmledger_customers
    SET default_payment_method_id = $2::text, updated_at = $3::timestamptz
    WHERE id = $1::text AND EXISTS (SELECT 1 FROM pm WHERE customer_id = $1::text)
    RETURNING id
)
SELECT CASE
    WHEN EXISTS (SELECT 1 FROM upd) THEN 'ok'
    WHEN NOT EXISTS (SELECT 1 FROM crmledger_customers WHERE id = $1::text) THEN 'customer_not_found'
    WHEN NOT EXISTS (SELECT 1 FROM pm) THEN 'not_found'
    ELSE 'foreign'
END`

func (s *Store) SetDefaultPaymentMethod(ctx context.Context, customerID id.CustomerID, pmID id.PaymentMethodID, at time.Time) error {
	var result string
	err := s.pg.NewRaw(setDefaultPaymentMethodSQL,
		customerID.String(), pmID.String(), at.UTC(),
	).Scan(ctx, &result)
	if err != nil {
		return fmt.Errorf("crmledger/postgres: set default payment method: %w", err)
	}

	switch result {
	case "ok":
		return nil
	case "customer_not_found":
		return crmledger.ErrCustomerNotFound
	case "not_found":
		return crmledger.ErrPaymentMethodNotFound
	}
	return crmledger.ReferenceError{Entity: "payment method", ID: pmID.String(), Reason: "belongs to another customer"}
}

func (s *Store) GetDefaultPaymentMethod(ctx context.Context, customerID id.CustomerID) (*paymentmethod.PaymentMethod, error) {
	def, err := s.defaultPointer(ctx, customerID.String())
	if err != nil {
		if errors.Is(err, crmledger.ErrCustomerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("crmledger/postgres: get default payment method: %w", err)
	}
	if def == "" {
		return nil, crmledger.ErrNoDefaultPaymentMethod
	}

	m := new(paymentMethodModel)
	err = s.pg.NewSelect(m).
		Where("id = $1", def).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrNoDefaultPaymentMethod
		}
		return nil, fmt.Errorf("crmledger/postgres: get default payment method: %w", err)
	}
	return fromPaymentMethodModel(m, def)
}

// ==================== Ticket Store ====================

func (s *Store) CreateTicket(ctx context.Context, t *ticket.Ticket) error {
	if _, err := s.pg.NewInsert(toTicketModel(t)).Exec(ctx); err != nil {
		return insertErr("create ticket", err)
	}
	return nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID id.TicketID) (*ticket.Ticket, error) {
	return s.findTicket(ctx, "get ticket", "id = $1", ticketID.String())
}

func (s *Store) GetTicketByNumber(ctx context.Context, number string) (*ticket.Ticket, error) {
	return s.findTicket(ctx, "get ticket by number", "number = $1", number)
}

func (s *Store) findTicket(ctx context.Context, op, where string, arg any) (*ticket.Ticket, error) {
	m := new(ticketModel)
	err := s.pg.NewSelect(m).
		Where(where, arg).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrTicketNotFound
		}
		return nil, fmt.Errorf("crmledger/postgres: %s: %w", op, err)
	}
	return fromTicketModel(m)
}

func (s *Store) AppendTicketMessage(ctx context.Context, ticketID id.TicketID, msg ticket.Message) error {
	msg.Timestamp = msg.Timestamp.UTC()
	appended, err := json.Marshal([]ticket.Message{msg})
	if err != nil {
		return err
	}

	res, err := s.pg.NewUpdate((*ticketModel)(nil)).
		Set("messages = messages || $1::jsonb", string(appended)).
		Set("updated_at = $2", msg.Timestamp).
		Where("id = $3", ticketID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("crmledger/postgres: append ticket message: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return crmledger.ErrTicketNotFound
	}
	return nil
}

func (s *Store) SetTicketStatus(ctx context.Context, ticketID id.TicketID, status ticket.Status, at time.Time) (*ticket.Ticket, error) {
	at = at.UTC()
	q := s.pg.NewUpdate((*ticketModel)(nil)).
		Set("status = $1", string(status)).
		Set("updated_at = $2", at)
	if status == ticket.StatusResolved {
		q = q.Set("resolved_at = COALESCE(resolved_at, $3)", at).
			Where("id = $4", ticketID.String())
	} else {
		q = q.Where("id = $3", ticketID.String())
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("crmledger/postgres: set ticket status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, crmledger.ErrTicketNotFound
	}
	return s.GetTicket(ctx, ticketID)
}

func (s *Store) AssignTicket(ctx context.Context, ticketID id.TicketID, agentID string, at time.Time) error {
	res, err := s.pg.NewUpdate((*ticketModel)(nil)).
		Set("assigned_to = $1", agentID).
		Set("updated_at = $2", at.UTC()).
		Where("id = $3", ticketID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("crmledger/postgres: assign ticket: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return crmledger.ErrTicketNotFound
	}
	return nil
}

func (s *Store) LatestResolvedTicket(ctx context.Context, customerID id.CustomerID) (*ticket.Ticket, error) {
	m := new(ticketModel)
	err := s.pg.NewSelect(m).
		Where("customer_id = $1", customerID.String()).
		Where("resolved_at IS NOT NULL").
		OrderExpr("resolved_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrTicketNotFound
		}
		return nil, fmt.Errorf("crmledger/postgres: latest resolved ticket: %w", err)
	}
	return fromTicketModel(m)
}

// ==================== Sequence Store ====================

func (s *Store) NextSequence(ctx context.Context, scope string) (int64, error) {
	var value int64
	err := s.pg.NewRaw(`
		INSERT INTO crmledger_sequences (scope, value, updated_at) VALUES ($1, 1, $2)
		ON CONFLICT (scope) DO UPDATE
		SET value = crmledger_sequences.value + 1, updated_at = EXCLUDED.updated_at
		RETURNING value
	`, scope, time.Now().UTC()).Scan(ctx, &value)
	if err != nil {
		return 0, fmt.Errorf("crmledger/postgres: next sequence: %w", err)
	}
	return value, nil
}

// ==================== Audit Store ====================

func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) error {
	if _, err := s.pg.NewInsert(toAuditModel(e)).Exec(ctx); err != nil {
		return insertErr("append audit", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, opts audit.ListOpts) ([]*audit.Entry, error) {
	var models []auditModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.ResourceType != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("resource_type = $%d", argIdx), opts.ResourceType)
	}
	if opts.ResourceID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("resource_id = $%d", argIdx), opts.ResourceID)
	}
	if opts.Severity != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("severity = $%d", argIdx), string(opts.Severity))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("timestamp DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/postgres: list audit: %w", err)
	}

	result := make([]*audit.Entry, len(models))
	for i := range models {
		e, err := fromAuditModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) CountAudit(ctx context.Context, q audit.CountQuery) (int64, error) {
	query := `SELECT COUNT(*) FROM crmledger_audit WHERE timestamp >= $1`
	args := []any{q.Since.UTC()}

	argIdx := 1
	if !q.Until.IsZero() {
		argIdx++
		query += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, q.Until.UTC())
	}
	if len(q.Severities) > 0 {
		in, sevArgs := placeholders(&argIdx, statusStrings(q.Severities))
		query += " AND severity IN (" + in + ")"
		args = append(args, sevArgs...)
	}

	var n int64
	if err := s.pg.NewRaw(query, args...).Scan(ctx, &n); err != nil {
		return 0, fmt.Errorf("crmledger/postgres: count audit: %w", err)
	}
	return n, nil
}

// ==================== Network Store ====================

func (s *Store) UpsertNetworkStatus(ctx context.Context, st *network.Status) error {
	m := toNetworkStatusModel(st)
	var storedID string
	err := s.pg.NewRaw(`
		INSERT INTO crmledger_network_status (id, service_type, region, status, details, affected_users, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (service_type, region) DO UPDATE
		SET status = EXCLUDED.status,
		    details = EXCLUDED.details,
		    affected_users = EXCLUDED.affected_users,
		    last_updated = EXCLUDED.last_updated
		RETURNING id
	`, m.ID, m.ServiceType, m.Region, m.Status, m.Details, m.AffectedUsers, m.LastUpdated).Scan(ctx, &storedID)
	if err != nil {
		return fmt.Errorf("crmledger/postgres: upsert network status: %w", err)
	}

	stored, err := id.Parse(storedID)
	if err != nil {
		return err
	}
	st.ID = stored
	return nil
}

func (s *Store) ListNetworkStatus(ctx context.Context) ([]*network.Status, error) {
	var models []networkStatusModel
	err := s.pg.NewSelect(&models).
		OrderExpr("service_type ASC, region ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("crmledger/postgres: list network status: %w", err)
	}

	result := make([]*network.Status, len(models))
	for i := range models {
		st, err := fromNetworkStatusModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = st
	}
	return result, nil
}

func (s *Store) CountNetworkStatus(ctx context.Context, condition network.Condition) (int64, error) {
	var n int64
	err := s.pg.NewRaw(
		`SELECT COUNT(*) FROM crmledger_network_status WHERE status = $1`, string(condition),
	).Scan(ctx, &n)
	if err != nil {
		return 0, fmt.Errorf("crmledger/postgres: count network status: %w", err)
	}
	return n, nil
}

// ==================== Settings Store ====================

func (s *Store) PutSettings(ctx context.Context, r *settings.Record) error {
	m := &settingsModel{
		Category:  string(r.Category),
		Data:      r.Data,
		UpdatedBy: r.UpdatedBy,
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	_, err := s.pg.NewInsert(m).
		OnConflict("(category) DO UPDATE").
		Set("data = EXCLUDED.data").
		Set("updated_by = EXCLUDED.updated_by").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("crmledger/postgres: put settings: %w", err)
	}
	return nil
}

func (s *Store) GetSettings(ctx context.Context, c settings.Category) (*settings.Record, error) {
	m := new(settingsModel)
	err := s.pg.NewSelect(m).
		Where("category = $1", string(c)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("crmledger/postgres: get settings: %w", err)
	}
	return fromSettingsModel(m), nil
}

// ==================== Helpers ====================

// isNoRows checks if an error is a "no rows in result set" error.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

// txErr maps serialization failures (40001) and deadlocks (40P01) to
// ErrConcurrencyConflict so the caller retries the whole unit.
func txErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return crmledger.ErrConcurrencyConflict
	}
	return err
}

// isUniqueViolation reports a unique_violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func insertErr(op string, err error) error {
	if isUniqueViolation(err) {
		return crmledger.ErrAlreadyExists
	}
	return fmt.Errorf("crmledger/postgres: %s: %w", op, err)
}

func statusStrings[S ~string](statuses []S) []string {
	return lo.Map(statuses, func(st S, _ int) string { return string(st) })
}

// placeholders numbers one parameter per value, continuing from *argIdx.
func placeholders(argIdx *int, values []string) (string, []any) {
	ph := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		*argIdx++
		ph[i] = fmt.Sprintf("$%d", *argIdx)
		args[i] = v
	}
	return strings.Join(ph, ", "), args
}

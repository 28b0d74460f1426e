// Package sqlite is the SQLite crmledger store. Writes that span rows are
// single statements whose triggers apply the remaining effects, except the
// subscription lifecycle, which runs in a transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
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

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM. Migrate needs the
// grove SQLite migration executor, registered by a blank import of
// github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables, indexes and triggers using the grove
// orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("crmledger/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("crmledger/sqlite: migration failed: %w", err)
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

func (s *Store) exists(ctx context.Context, table, rowID string) (bool, error) {
	var n int64
	err := s.sdb.NewRaw(
		fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = ?)", table), rowID,
	).Scan(ctx, &n)
	return n == 1, err
}

// inTx runs fn in a transaction that commits when fn returns nil. fn should
// write before it reads so the connection takes the write lock up front.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlitedriver.SqliteTx) error) error {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return writeErr("begin", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return writeErr("commit", err)
	}
	return nil
}

// ==================== Customer Store ====================

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	if _, err := s.sdb.NewInsert(toCustomerModel(c)).Exec(ctx); err != nil {
		return writeErr("create customer", err)
	}
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	m := new(customerModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", customerID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("crmledger/sqlite: get customer: %w", err)
	}
	return fromCustomerModel(m)
}

func (s *Store) UpdateCustomerStatus(ctx context.Context, customerID id.CustomerID, status customer.Status, at time.Time) error {
	res, err := s.sdb.NewUpdate((*customerModel)(nil)).
		Set("status = ?", string(status)).
		Set("updated_at = ?", ms(at)).
		Where("id = ?", customerID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("crmledger/sqlite: update customer status: %w", err)
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
	err := s.sdb.NewRaw(`
		SELECT COALESCE(json_group_object(month, n), '{}') FROM (
			SELECT strftime('%Y-%m', created_at / 1000, 'unixepoch') AS month, COUNT(*) AS n
			FROM crmledger_customers
			WHERE created_at >= ? AND created_at < ?
			GROUP BY 1
		)
	`, ms(from), ms(to)).Scan(ctx, &raw)
	if err != nil {
		return nil, fmt.Errorf("crmledger/sqlite: count customers by month: %w", err)
	}

	out := map[string]int64{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("crmledger/sqlite: count customers by month decode: %w", err)
	}
	return out, nil
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	if _, err := s.sdb.NewInsert(toPlanModel(p)).Exec(ctx); err != nil {
		return writeErr("create plan", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	m := new(planModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", planID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrPlanNotFound
		}
		return nil, fmt.Errorf("crmledger/sqlite: get plan: %w", err)
	}
	return fromPlanModel(m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel
	q := s.sdb.NewSelect(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/sqlite: list plans: %w", err)
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
	res, err := s.sdb.NewUpdate(toPlanModel(p)).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("crmledger/sqlite: update plan: %w", err)
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

// CreateSubscription inserts sub and, when it is active, moves the
// customer's current plan to it in the same transaction.
func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) (subscription.Outcome, error) {
	var out subscription.Outcome
	err := s.inTx(ctx, func(tx *sqlitedriver.SqliteTx) error {
		if _, err := tx.NewInsert(toSubscriptionModel(sub)).Exec(ctx); err != nil {
			if isForeignKeyViolation(err) {
				if _, cerr := currentSubscriptionID(ctx, tx, sub.CustomerID.String()); cerr != nil {
					return cerr
				}
			}
			return writeErr("create subscription", err)
		}
		prev, err := currentSubscriptionID(ctx, tx, sub.CustomerID.String())
		if err != nil {
			return err
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

func currentSubscriptionID(ctx context.Context, tx *sqlitedriver.SqliteTx, customerID string) (string, error) {
	var current string
	err := tx.NewRaw(
		"SELECT current_subscription_id FROM crmledger_customers WHERE id = ?", customerID,
	).Scan(ctx, &current)
	if err != nil {
		if isNoRows(err) {
			return "", crmledger.ErrCustomerNotFound
		}
		return "", writeErr("read current plan", err)
	}
	return current, nil
}

// takeCurrent points the customer's current plan at sub and cancels prevID
// when it is another subscription that is still active.
func takeCurrent(ctx context.Context, tx *sqlitedriver.SqliteTx, sub *subscription.Subscription, prevID string, at time.Time) (*subscription.Subscription, error) {
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
		Set("current_subscription_id = ?", cp.SubscriptionID.String()).
		Set("current_plan_id = ?", cp.PlanID.String()).
		Set("current_start = ?", ms(cp.StartDate)).
		Set("current_end = ?", ms(cp.EndDate)).
		Set("current_auto_renew = ?", cp.AutoRenew).
		Set("updated_at = ?", ms(at)).
		Where("id = ?", sub.CustomerID.String()).
		Exec(ctx)
	if err != nil {
		return nil, writeErr("take current plan", err)
	}
	return superseded, nil
}

// releaseCurrent clears the customer's current plan when it points at sub.
func releaseCurrent(ctx context.Context, tx *sqlitedriver.SqliteTx, sub *subscription.Subscription, at time.Time) error {
	_, err := tx.NewUpdate((*customerModel)(nil)).
		Set("current_subscription_id = ''").
		Set("current_plan_id = ''").
		Set("current_start = NULL").
		Set("current_end = NULL").
		Set("current_auto_renew = 0").
		Set("updated_at = ?", ms(at)).
		Where("id = ?", sub.CustomerID.String()).
		Where("current_subscription_id = ?", sub.ID.String()).
		Exec(ctx)
	if err != nil {
		return writeErr("release current plan", err)
	}
	return nil
}

func getSubscription(ctx context.Context, tx *sqlitedriver.SqliteTx, subID string) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	if err := tx.NewSelect(m).Where("id = ?", subID).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrSubscriptionNotFound
		}
		return nil, writeErr("get subscription", err)
	}
	return fromSubscriptionModel(m)
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("crmledger/sqlite: get subscription: %w", err)
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListSubscriptions(ctx context.Context, customerID id.CustomerID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.sdb.NewSelect(&models).Where("customer_id = ?", customerID.String())

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/sqlite: list subscriptions: %w", err)
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

// TransitionSubscription applies the guarded status change first, then its
// current-plan effect, in one transaction.
func (s *Store) TransitionSubscription(ctx context.Context, t subscription.Transition) (subscription.Outcome, error) {
	var out subscription.Outcome
	err := s.inTx(ctx, func(tx *sqlitedriver.SqliteTx) error {
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
			prev, err := currentSubscriptionID(ctx, tx, out.Subscription.CustomerID.String())
			if err != nil {
				return err
			}
			out.Superseded, err = takeCurrent(ctx, tx, out.Subscription, prev, t.At)
			return err
		case subscription.ReleasesCurrent(t.To):
			return releaseCurrent(ctx, tx, out.Subscription, t.At)
		}
		return nil
	})
	if err != nil {
		return subscription.Outcome{}, err
	}
	return out, nil
}

// guardedTransition applies t only while the row satisfies its guard and
// reports how many rows changed.
func guardedTransition(ctx context.Context, tx *sqlitedriver.SqliteTx, t subscription.Transition) (int64, error) {
	at := ms(t.At)
	q := tx.NewUpdate((*subscriptionModel)(nil)).
		Set("status = ?", string(t.To)).
		Set("updated_at = ?", at)

	switch t.To {
	case subscription.StatusActive:
		q = q.Set("activated_at = ?", at)
	case subscription.StatusCanceled:
		q = q.Set("canceled_at = ?", at).
			Set("cancel_reason = ?", t.Reason)
	case subscription.StatusExpired:
		q = q.Set("expired_at = ?", at)
	}

	in, args := placeholders(statusStrings(t.From))
	q = q.Where("id = ?", t.SubscriptionID.String()).
		Where("status IN ("+in+")", args...)
	if !t.LapsedBefore.IsZero() {
		q = q.Where("auto_renew = 0 AND end_date < ?", ms(t.LapsedBefore))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, writeErr("transition subscription", err)
	}
	return res.RowsAffected()
}

// transitionFailure explains why the guarded update of t matched nothing.
func transitionFailure(ctx context.Context, tx *sqlitedriver.SqliteTx, t subscription.Transition) error {
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

// RenewSubscription inserts the renewal invoice; the renewal triggers check
// the subscription is still active at PreviousEnd and move both end dates.
func (s *Store) RenewSubscription(ctx context.Context, r subscription.Renewal) (*subscription.Subscription, error) {
	m := toInvoiceModel(r.Invoice)
	m.SubscriptionID = r.SubscriptionID.String()
	m.CreatedAt = ms(r.At)
	m.UpdatedAt = m.CreatedAt
	m.RenewalPreviousEnd = msPtr(&r.PreviousEnd)
	m.RenewalNewEnd = msPtr(&r.NewEnd)

	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return nil, writeErr("renew subscription", err)
	}
	return s.GetSubscription(ctx, r.SubscriptionID)
}

func (s *Store) ListDueForActivation(ctx context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.sdb.NewSelect(&models).
		Where("status = ?", string(subscription.StatusPending)).
		Where("start_date <= ?", ms(asOf)).
		OrderExpr("start_date ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/sqlite: list due for activation: %w", err)
	}
	return fromSubscriptionModels(models)
}

func (s *Store) ListDueForExpiry(ctx context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.sdb.NewSelect(&models).
		Where("status = ?", string(subscription.StatusActive)).
		Where("auto_renew = 0").
		Where("end_date < ?", ms(asOf)).
		OrderExpr("end_date ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/sqlite: list due for expiry: %w", err)
	}
	return fromSubscriptionModels(models)
}

func (s *Store) CountActiveSubscriptions(ctx context.Context, asOf time.Time) (int64, error) {
	var n int64
	err := s.sdb.NewRaw(`
		SELECT COUNT(*) FROM crmledger_subscriptions
		WHERE status = ? AND start_date <= ?
	`, string(subscription.StatusActive), ms(asOf)).Scan(ctx, &n)
	if err != nil {
		return 0, fmt.Errorf("crmledger/sqlite: count active subscriptions: %w", err)
	}
	return n, nil
}

func (s *Store) RenewalStats(ctx context.Context) (subscription.RenewalStats, error) {
	var stats subscription.RenewalStats
	err := s.sdb.NewRaw(`SELECT COUNT(*) FROM crmledger_subscriptions`).Scan(ctx, &stats.Total)
	if err != nil {
		return stats, fmt.Errorf("crmledger/sqlite: renewal stats: %w", err)
	}
	err = s.sdb.NewRaw(`SELECT COUNT(*) FROM crmledger_subscriptions WHERE auto_renew = 1`).Scan(ctx, &stats.AutoRenew)
	if err != nil {
		return stats, fmt.Errorf("crmledger/sqlite: renewal stats: %w", err)
	}
	return stats, nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	if _, err := s.sdb.NewInsert(toInvoiceModel(inv)).Exec(ctx); err != nil {
		return writeErr("create invoice", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", invID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("crmledger/sqlite: get invoice: %w", err)
	}
	return fromInvoiceModel(m)
}

func (s *Store) ListInvoices(ctx context.Context, customerID id.CustomerID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	q := s.sdb.NewSelect(&models).Where("customer_id = ?", customerID.String())

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("issue_date DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/sqlite: list invoices: %w", err)
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
	res, err := s.sdb.NewUpdate((*invoiceModel)(nil)).
		Set("status = ?", string(invoice.StatusOverdue)).
		Set("updated_at = ?", ms(asOf)).
		Where("status = ?", string(invoice.StatusUnpaid)).
		Where("due_date < ?", ms(asOf)).
		Exec(ctx)
	if err != nil {
		return 0, writeErr("mark overdue", err)
	}
	return res.RowsAffected()
}

func (s *Store) CancelInvoice(ctx context.Context, invID id.InvoiceID, at time.Time) (*invoice.Invoice, error) {
	in, args := placeholders(statusStrings(invoice.Payable))
	res, err := s.sdb.NewUpdate((*invoiceModel)(nil)).
		Set("status = ?", string(invoice.StatusCanceled)).
		Set("canceled_at = ?", ms(at)).
		Set("updated_at = ?", ms(at)).
		Where("id = ?", invID.String()).
		Where("status IN ("+in+")", args...).
		Exec(ctx)
	if err != nil {
		return nil, writeErr("cancel invoice", err)
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
	in, args := placeholders(statusStrings(invoice.Payable))
	m := new(invoiceModel)
	err := s.sdb.NewSelect(m).
		Where("customer_id = ?", customerID.String()).
		Where("status IN ("+in+")", args...).
		OrderExpr("due_date ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("crmledger/sqlite: next unpaid invoice: %w", err)
	}
	return fromInvoiceModel(m)
}

func (s *Store) SumPaidRevenue(ctx context.Context, currency string, r invoice.Range) (int64, error) {
	query := `SELECT COALESCE(SUM(amount_cents), 0) FROM crmledger_invoices WHERE status = ? AND currency = ?`
	args := []any{string(invoice.StatusPaid), currency}

	if !r.From.IsZero() {
		query += " AND paid_date >= ?"
		args = append(args, ms(r.From))
	}
	if r.ToInclusive {
		query += " AND paid_date <= ?"
	} else {
		query += " AND paid_date < ?"
	}
	args = append(args, ms(r.To))

	var total int64
	if err := s.sdb.NewRaw(query, args...).Scan(ctx, &total); err != nil {
		return 0, fmt.Errorf("crmledger/sqlite: sum paid revenue: %w", err)
	}
	return total, nil
}

// ==================== Transaction Store ====================

// RecordTransaction inserts t with its effect columns; the transaction
// triggers validate the references, settle the invoice and move the
// balance in the same statement.
func (s *Store) RecordTransaction(ctx context.Context, t *transaction.Transaction, e transaction.Effect) error {
	if _, err := s.sdb.NewInsert(toTransactionModel(t, e)).Exec(ctx); err != nil {
		return writeErr("record transaction", err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, customerID id.CustomerID, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	var models []transactionModel
	q := s.sdb.NewSelect(&models).Where("customer_id = ?", customerID.String())

	if opts.Type != "" {
		q = q.Where("type = ?", string(opts.Type))
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("date DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/sqlite: list transactions: %w", err)
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

func (s *Store) CreatePaymentMethod(ctx context.Context, pm *paymentmethod.PaymentMethod, makeDefault bool) error {
	if _, err := s.sdb.NewInsert(toPaymentMethodModel(pm, makeDefault)).Exec(ctx); err != nil {
		return writeErr("create payment method", err)
	}
	return nil
}

// defaultPointer returns the customer's default payment method id, or "".
func (s *Store) defaultPointer(ctx context.Context, customerID string) (string, error) {
	var def string
	err := s.sdb.NewRaw(
		`SELECT default_payment_method_id FROM crmledger_customers WHERE id = ?`, customerID,
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
	m, err := s.paymentMethodRow(ctx, pmID.String())
	if err != nil {
		return nil, err
	}
	def, err := s.defaultPointer(ctx, m.CustomerID)
	if err != nil && !errors.Is(err, crmledger.ErrCustomerNotFound) {
		return nil, fmt.Errorf("crmledger/sqlite: get payment method: %w", err)
	}
	return fromPaymentMethodModel(m, def)
}

func (s *Store) paymentMethodRow(ctx context.Context, pmID string) (*paymentMethodModel, error) {
	m := new(paymentMethodModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", pmID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrPaymentMethodNotFound
		}
		return nil, fmt.Errorf("crmledger/sqlite: get payment method: %w", err)
	}
	return m, nil
}

func (s *Store) ListPaymentMethods(ctx context.Context, customerID id.CustomerID) ([]*paymentmethod.PaymentMethod, error) {
	var models []paymentMethodModel
	err := s.sdb.NewSelect(&models).
		Where("customer_id = ?", customerID.String()).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("crmledger/sqlite: list payment methods: %w", err)
	}

	def, err := s.defaultPointer(ctx, customerID.String())
	if err != nil && !errors.Is(err, crmledger.ErrCustomerNotFound) {
		return nil, fmt.Errorf("crmledger/sqlite: list payment methods: %w", err)
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

// DeletePaymentMethod removes the method; the release trigger clears the
// owner's default pointer when it named the method.
func (s *Store) DeletePaymentMethod(ctx context.Context, pmID id.PaymentMethodID, at time.Time) (bool, error) {
	m, err := s.paymentMethodRow(ctx, pmID.String())
	if err != nil {
		return false, err
	}
	def, err := s.defaultPointer(ctx, m.CustomerID)
	if err != nil && !errors.Is(err, crmledger.ErrCustomerNotFound) {
		return false, fmt.Errorf("crmledger/sqlite: delete payment method: %w", err)
	}

	// The release trigger stamps the customer with the row's updated_at.
	_, err = s.sdb.NewUpdate((*paymentMethodModel)(nil)).
		Set("updated_at = ?", ms(at)).
		Where("id = ?", m.ID).
		Exec(ctx)
	if err != nil {
		return false, writeErr("delete payment method", err)
	}

	res, err := s.sdb.NewDelete((*paymentMethodModel)(nil)).
		Where("id = ?", m.ID).
		Exec(ctx)
	if err != nil {
		return false, writeErr("delete payment method", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, crmledger.ErrPaymentMethodNotFound
	}
	return def == m.ID, nil
}

func (s *Store) SetDefaultPaymentMethod(ctx context.Context, customerID id.CustomerID, pmID id.PaymentMethodID, at time.Time) error {
	res, err := s.sdb.NewUpdate((*customerModel)(nil)).
		Set("default_payment_method_id = ?", pmID.String()).
		Set("updated_at = ?", ms(at)).
		Where("id = ?", customerID.String()).
		Where("EXISTS (SELECT 1 FROM crmledger_payment_methods WHERE id = ? AND customer_id = ?)",
			pmID.String(), customerID.String()).
		Exec(ctx)
	if err != nil {
		return writeErr("set default payment method", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	ok, err := s.exists(ctx, "crmledger_customers", customerID.String())
	if err != nil {
		return fmt.Errorf("crmledger/sqlite: set default payment method: %w", err)
	}
	if !ok {
		return crmledger.ErrCustomerNotFound
	}
	if _, err := s.paymentMethodRow(ctx, pmID.String()); err != nil {
		return err
	}
	return crmledger.ReferenceError{Entity: "payment method", ID: pmID.String(), Reason: "belongs to another customer"}
}

func (s *Store) GetDefaultPaymentMethod(ctx context.Context, customerID id.CustomerID) (*paymentmethod.PaymentMethod, error) {
	def, err := s.defaultPointer(ctx, customerID.String())
	if err != nil {
		if errors.Is(err, crmledger.ErrCustomerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("crmledger/sqlite: get default payment method: %w", err)
	}
	if def == "" {
		return nil, crmledger.ErrNoDefaultPaymentMethod
	}

	m, err := s.paymentMethodRow(ctx, def)
	if err != nil {
		if errors.Is(err, crmledger.ErrPaymentMethodNotFound) {
			return nil, crmledger.ErrNoDefaultPaymentMethod
		}
		return nil, err
	}
	return fromPaymentMethodModel(m, def)
}

// ==================== Ticket Store ====================

func (s *Store) CreateTicket(ctx context.Context, t *ticket.Ticket) error {
	if _, err := s.sdb.NewInsert(toTicketModel(t)).Exec(ctx); err != nil {
		return writeErr("create ticket", err)
	}
	return nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID id.TicketID) (*ticket.Ticket, error) {
	return s.findTicket(ctx, "get ticket", "id = ?", ticketID.String())
}

func (s *Store) GetTicketByNumber(ctx context.Context, number string) (*ticket.Ticket, error) {
	return s.findTicket(ctx, "get ticket by number", "number = ?", number)
}

func (s *Store) findTicket(ctx context.Context, op, where string, arg any) (*ticket.Ticket, error) {
	m := new(ticketModel)
	err := s.sdb.NewSelect(m).
		Where(where, arg).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrTicketNotFound
		}
		return nil, fmt.Errorf("crmledger/sqlite: %s: %w", op, err)
	}
	return fromTicketModel(m)
}

func (s *Store) AppendTicketMessage(ctx context.Context, ticketID id.TicketID, msg ticket.Message) error {
	msg.Timestamp = msg.Timestamp.UTC()
	res, err := s.sdb.NewUpdate((*ticketModel)(nil)).
		Set("messages = json_insert(messages, '$[#]', json(?))", marshalText(msg)).
		Set("updated_at = ?", ms(msg.Timestamp)).
		Where("id = ?", ticketID.String()).
		Exec(ctx)
	if err != nil {
		return writeErr("append ticket message", err)
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
	q := s.sdb.NewUpdate((*ticketModel)(nil)).
		Set("status = ?", string(status)).
		Set("updated_at = ?", ms(at))
	if status == ticket.StatusResolved {
		q = q.Set("resolved_at = COALESCE(resolved_at, ?)", ms(at))
	}

	res, err := q.Where("id = ?", ticketID.String()).Exec(ctx)
	if err != nil {
		return nil, writeErr("set ticket status", err)
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
	res, err := s.sdb.NewUpdate((*ticketModel)(nil)).
		Set("assigned_to = ?", agentID).
		Set("updated_at = ?", ms(at)).
		Where("id = ?", ticketID.String()).
		Exec(ctx)
	if err != nil {
		return writeErr("assign ticket", err)
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
	err := s.sdb.NewSelect(m).
		Where("customer_id = ?", customerID.String()).
		Where("resolved_at IS NOT NULL").
		OrderExpr("resolved_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrTicketNotFound
		}
		return nil, fmt.Errorf("crmledger/sqlite: latest resolved ticket: %w", err)
	}
	return fromTicketModel(m)
}

// ==================== Sequence Store ====================

func (s *Store) NextSequence(ctx context.Context, scope string) (int64, error) {
	var value int64
	err := s.sdb.NewRaw(`
		INSERT INTO crmledger_sequences (scope, value, updated_at) VALUES (?, 1, ?)
		ON CONFLICT (scope) DO UPDATE
		SET value = value + 1, updated_at = excluded.updated_at
		RETURNING value
	`, scope, ms(time.Now())).Scan(ctx, &value)
	if err != nil {
		return 0, writeErr("next sequence", err)
	}
	return value, nil
}

// ==================== Audit Store ====================

func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) error {
	if _, err := s.sdb.NewInsert(toAuditModel(e)).Exec(ctx); err != nil {
		return writeErr("append audit", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, opts audit.ListOpts) ([]*audit.Entry, error) {
	var models []auditModel
	q := s.sdb.NewSelect(&models)

	if opts.ResourceType != "" {
		q = q.Where("resource_type = ?", opts.ResourceType)
	}
	if opts.ResourceID != "" {
		q = q.Where("resource_id = ?", opts.ResourceID)
	}
	if opts.Severity != "" {
		q = q.Where("severity = ?", string(opts.Severity))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("timestamp DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/sqlite: list audit: %w", err)
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
	query := `SELECT COUNT(*) FROM crmledger_audit WHERE timestamp >= ?`
	args := []any{ms(q.Since)}

	if !q.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, ms(q.Until))
	}
	if len(q.Severities) > 0 {
		in, sevArgs := placeholders(statusStrings(q.Severities))
		query += " AND severity IN (" + in + ")"
		args = append(args, sevArgs...)
	}

	var n int64
	if err := s.sdb.NewRaw(query, args...).Scan(ctx, &n); err != nil {
		return 0, fmt.Errorf("crmledger/sqlite: count audit: %w", err)
	}
	return n, nil
}

// ==================== Network Store ====================

func (s *Store) UpsertNetworkStatus(ctx context.Context, st *network.Status) error {
	var storedID string
	err := s.sdb.NewRaw(`
		INSERT INTO crmledger_network_status (id, service_type, region, status, details, affected_users, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (service_type, region) DO UPDATE
		SET status = excluded.status,
		    details = excluded.details,
		    affected_users = excluded.affected_users,
		    last_updated = excluded.last_updated
		RETURNING id
	`, st.ID.String(), string(st.ServiceType), st.Region, string(st.Status),
		st.Details, st.AffectedUsers, ms(st.LastUpdated),
	).Scan(ctx, &storedID)
	if err != nil {
		return writeErr("upsert network status", err)
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
	err := s.sdb.NewSelect(&models).
		OrderExpr("service_type ASC, region ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("crmledger/sqlite: list network status: %w", err)
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
	err := s.sdb.NewRaw(
		`SELECT COUNT(*) FROM crmledger_network_status WHERE status = ?`, string(condition),
	).Scan(ctx, &n)
	if err != nil {
		return 0, fmt.Errorf("crmledger/sqlite: count network status: %w", err)
	}
	return n, nil
}

// ==================== Settings Store ====================

func (s *Store) PutSettings(ctx context.Context, r *settings.Record) error {
	m := &settingsModel{
		Category:  string(r.Category),
		Data:      string(r.Data),
		UpdatedBy: r.UpdatedBy,
		UpdatedAt: ms(r.UpdatedAt),
	}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(category) DO UPDATE").
		Set("data = EXCLUDED.data").
		Set("updated_by = EXCLUDED.updated_by").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return writeErr("put settings", err)
	}
	return nil
}

func (s *Store) GetSettings(ctx context.Context, c settings.Category) (*settings.Record, error) {
	m := new(settingsModel)
	err := s.sdb.NewSelect(m).
		Where("category = ?", string(c)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, crmledger.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("crmledger/sqlite: get settings: %w", err)
	}
	return fromSettingsModel(m), nil
}

// ==================== Helpers ====================

// triggerErrors maps the RAISE markers of the migration triggers.
var triggerErrors = map[string]error{
	"crmledger:customer_not_found":     crmledger.ErrCustomerNotFound,
	"crmledger:subscription_not_found": crmledger.ErrSubscriptionNotFound,
	"crmledger:invoice_not_found":      crmledger.ErrInvoiceNotFound,
	"crmledger:invoice_not_payable":    crmledger.ErrInvoiceNotPayable,
	"crmledger:invalid_transition":     crmledger.ErrInvalidTransition,
	"crmledger:concurrency_conflict":   crmledger.ErrConcurrencyConflict,
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func sqliteCode(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}

func isUniqueViolation(err error) bool {
	if code, ok := sqliteCode(err); ok &&
		(code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

// isBusy reports a write that lost the database lock to another connection.
func isBusy(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code&0xff == sqlite3.SQLITE_BUSY || code&0xff == sqlite3.SQLITE_LOCKED)
}

// writeErr maps trigger markers and constraint failures to crmledger
// errors and wraps anything else.
func writeErr(op string, err error) error {
	msg := err.Error()
	for marker, sentinel := range triggerErrors {
		if strings.Contains(msg, marker) {
			return sentinel
		}
	}
	switch {
	case isUniqueViolation(err):
		return crmledger.ErrAlreadyExists
	case isBusy(err):
		return crmledger.ErrConcurrencyConflict
	}
	return fmt.Errorf("crmledger/sqlite: %s: %w", op, err)
}

func statusStrings[S ~string](statuses []S) []string {
	return lo.Map(statuses, func(st S, _ int) string { return string(st) })
}

// placeholders returns one "?" per value.
func placeholders(values []string) (string, []any) {
	ph := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		ph[i] = "?"
		args[i] = v
	}
	return strings.Join(ph, ", "), args
}

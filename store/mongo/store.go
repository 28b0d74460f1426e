// Package mongo is the MongoDB crmledger store. Multi-document operations
// run in client sessions, so the server must be a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

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

// Collection name constants.
const (
	colCustomers      = "crmledger_customers"
	colPlans          = "crmledger_plans"
	colSubscriptions  = "crmledger_subscriptions"
	colInvoices       = "crmledger_invoices"
	colTransactions   = "crmledger_transactions"
	colPaymentMethods = "crmledger_payment_methods"
	colTickets        = "crmledger_tickets"
	colSequences      = "crmledger_sequences"
	colAudit          = "crmledger_audit"
	colNetworkStatus  = "crmledger_network_status"
	colSettings       = "crmledger_settings"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all crmledger collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("crmledger/mongo: migrate %s indexes: %w", col, err)
		}
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

// inTx runs fn in a session transaction. Transient write conflicts are
// retried by the driver.
func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := s.mdb.Collection(colCustomers).Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("crmledger/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// exists reports whether a document matching filter is in col.
func (s *Store) exists(ctx context.Context, col string, filter bson.M) (bool, error) {
	n, err := s.mdb.Collection(col).CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ==================== Customer Store ====================

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	if _, err := s.mdb.NewInsert(toCustomerModel(c)).Exec(ctx); err != nil {
		return insertErr("create customer", err)
	}
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	var m customerModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": customerID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, crmledger.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("crmledger/mongo: get customer: %w", err)
	}
	return fromCustomerModel(&m)
}

func (s *Store) UpdateCustomerStatus(ctx context.Context, customerID id.CustomerID, status customer.Status, at time.Time) error {
	res, err := s.mdb.NewUpdate((*customerModel)(nil)).
		Filter(bson.M{"_id": customerID.String()}).
		Set("status", string(status)).
		Set("updated_at", at.UTC()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("crmledger/mongo: update customer status: %w", err)
	}
	if res.MatchedCount() == 0 {
		return crmledger.ErrCustomerNotFound
	}
	return nil
}

func (s *Store) CountCustomersByMonth(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	pipeline := bson.A{
		bson.M{"$match": bson.M{"created_at": bson.M{"$gte": from.UTC(), "$lt": to.UTC()}}},
		bson.M{"$group": bson.M{
			"_id": bson.M{"$dateToString": bson.M{"format": "%Y-%m", "date": "$created_at"}},
			"n":   bson.M{"$sum": 1},
		}},
	}

	cursor, err := s.mdb.Collection(colCustomers).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("crmledger/mongo: count customers by month: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Month string `bson:"_id"`
		N     int64  `bson:"n"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("crmledger/mongo: count customers by month decode: %w", err)
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Month] = r.N
	}
	return out, nil
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	if _, err := s.mdb.NewInsert(toPlanModel(p)).Exec(ctx); err != nil {
		return insertErr("create plan", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	var m planModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": planID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, crmledger.ErrPlanNotFound
		}
		return nil, fmt.Errorf("crmledger/mongo: get plan: %w", err)
	}
	return fromPlanModel(&m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel

	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/mongo: list plans: %w", err)
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
	m := toPlanModel(p)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("crmledger/mongo: update plan: %w", err)
	}
	if res.MatchedCount() == 0 {
		return crmledger.ErrPlanNotFound
	}
	return nil
}

// ==================== Subscription Store ====================

// CreateSubscription inserts sub and, when it is active, moves the
// customer's current plan to it in the same transaction.
func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) (subscription.Outcome, error) {
	var out subscription.Outcome
	err := s.inTx(ctx, func(ctx context.Context) error {
		prev, err := s.holdCustomer(ctx, sub.CustomerID.String(), sub.UpdatedAt)
		if err != nil {
			return err
		}
		m := toSubscriptionModel(sub)
		if _, err := s.mdb.Collection(colSubscriptions).InsertOne(ctx, m); err != nil {
			return insertErr("create subscription", err)
		}
		if out.Subscription, err = fromSubscriptionModel(m); err != nil {
			return err
		}
		if subscription.TakesCurrent(sub.Status) {
			out.Superseded, err = s.takeCurrent(ctx, out.Subscription, prev, sub.UpdatedAt)
		}
		return err
	})
	if err != nil {
		return subscription.Outcome{}, wrapTx("create subscription", err)
	}
	return out, nil
}

// holdCustomer writes the customer document so concurrent lifecycle
// transactions on it conflict, and returns the subscription its current
// plan pointed at ("" when none).
func (s *Store) holdCustomer(ctx context.Context, customerID string, at time.Time) (string, error) {
	var m customerModel
	err := s.mdb.Collection(colCustomers).FindOneAndUpdate(ctx,
		bson.M{"_id": customerID},
		bson.M{"$set": bson.M{"updated_at": at.UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return "", crmledger.ErrCustomerNotFound
		}
		return "", err
	}
	if m.CurrentPlan == nil {
		return "", nil
	}
	return m.CurrentPlan.SubscriptionID, nil
}

// takeCurrent points the customer's current plan at sub and cancels prevID
// when it is another subscription that is still active.
func (s *Store) takeCurrent(ctx context.Context, sub *subscription.Subscription, prevID string, at time.Time) (*subscription.Subscription, error) {
	var superseded *subscription.Subscription
	if prevID != "" && prevID != sub.ID.String() {
		prev, err := id.ParseSubscriptionID(prevID)
		if err != nil {
			return nil, err
		}
		m, err := s.guardedTransition(ctx, subscription.Supersede(prev, at))
		switch {
		case err == nil:
			if superseded, err = fromSubscriptionModel(m); err != nil {
				return nil, err
			}
		case !isNoDocuments(err):
			return nil, err
		}
	}

	_, err := s.mdb.Collection(colCustomers).UpdateOne(ctx,
		bson.M{"_id": sub.CustomerID.String()},
		bson.M{"$set": bson.M{"current_plan": toCurrentPlanModel(sub.CurrentPlan()), "updated_at": at.UTC()}},
	)
	if err != nil {
		return nil, err
	}
	return superseded, nil
}

// releaseCurrent clears the customer's current plan when it points at sub.
func (s *Store) releaseCurrent(ctx context.Context, sub *subscription.Subscription, at time.Time) error {
	_, err := s.mdb.Collection(colCustomers).UpdateOne(ctx,
		bson.M{"_id": sub.CustomerID.String(), "current_plan.subscription_id": sub.ID.String()},
		bson.M{"$set": bson.M{"current_plan": nil, "updated_at": at.UTC()}},
	)
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, crmledger.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("crmledger/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) ListSubscriptions(ctx context.Context, customerID id.CustomerID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	filter := bson.M{"customer_id": customerID.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	return s.findSubscriptions(ctx, "list subscriptions", filter,
		bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}, opts.Offset, opts.Limit)
}

func (s *Store) findSubscriptions(ctx context.Context, op string, filter bson.M, sort bson.D, offset, limit int) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	q := s.mdb.NewFind(&models).Filter(filter).Sort(sort)
	if limit > 0 {
		q = q.Limit(int64(limit))
	}
	if offset > 0 {
		q = q.Skip(int64(offset))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/mongo: %s: %w", op, err)
	}

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

// TransitionSubscription applies the guarded status change and its
// current-plan effect in one transaction.
func (s *Store) TransitionSubscription(ctx context.Context, t subscription.Transition) (subscription.Outcome, error) {
	var out subscription.Outcome
	err := s.inTx(ctx, func(ctx context.Context) error {
		current, err := s.GetSubscription(ctx, t.SubscriptionID)
		if err != nil {
			return err
		}
		prev, err := s.holdCustomer(ctx, current.CustomerID.String(), t.At)
		if err != nil {
			return err
		}

		m, err := s.guardedTransition(ctx, t)
		if err != nil {
			if isNoDocuments(err) {
				return s.transitionFailure(ctx, t)
			}
			return err
		}
		if out.Subscription, err = fromSubscriptionModel(m); err != nil {
			return err
		}

		switch {
		case subscription.TakesCurrent(t.To):
			out.Superseded, err = s.takeCurrent(ctx, out.Subscription, prev, t.At)
		case subscription.ReleasesCurrent(t.To):
			err = s.releaseCurrent(ctx, out.Subscription, t.At)
		}
		return err
	})
	if err != nil {
		return subscription.Outcome{}, wrapTx("transition subscription", err)
	}
	return out, nil
}

// guardedTransition applies t only while the document satisfies its guard.
// A miss is mongo.ErrNoDocuments.
func (s *Store) guardedTransition(ctx context.Context, t subscription.Transition) (*subscriptionModel, error) {
	filter := bson.M{
		"_id":    t.SubscriptionID.String(),
		"status": bson.M{"$in": statusStrings(t.From)},
	}
	if !t.LapsedBefore.IsZero() {
		filter["auto_renew"] = false
		filter["end_date"] = bson.M{"$lt": t.LapsedBefore.UTC()}
	}

	m := new(subscriptionModel)
	err := s.mdb.Collection(colSubscriptions).FindOneAndUpdate(ctx,
		filter,
		bson.M{"$set": transitionSet(t)},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(m)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// transitionFailure explains why the guarded update of t matched nothing.
func (s *Store) transitionFailure(ctx context.Context, t subscription.Transition) error {
	sub, err := s.GetSubscription(ctx, t.SubscriptionID)
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

func transitionSet(t subscription.Transition) bson.M {
	at := t.At.UTC()
	set := bson.M{"status": string(t.To), "updated_at": at}
	switch t.To {
	case subscription.StatusActive:
		set["activated_at"] = at
	case subscription.StatusCanceled:
		set["canceled_at"] = at
		set["cancel_reason"] = t.Reason
	case subscription.StatusExpired:
		set["expired_at"] = at
	}
	return set
}

func statusStrings[S ~string](statuses []S) []string {
	return lo.Map(statuses, func(st S, _ int) string { return string(st) })
}

func (s *Store) RenewSubscription(ctx context.Context, r subscription.Renewal) (*subscription.Subscription, error) {
	var renewed *subscription.Subscription
	err := s.inTx(ctx, func(ctx context.Context) error {
		var m subscriptionModel
		err := s.mdb.Collection(colSubscriptions).FindOneAndUpdate(ctx,
			bson.M{
				"_id":      r.SubscriptionID.String(),
				"status":   string(subscription.StatusActive),
				"end_date": r.PreviousEnd.UTC(),
			},
			bson.M{"$set": bson.M{"end_date": r.NewEnd.UTC(), "updated_at": r.At.UTC()}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&m)
		if isNoDocuments(err) {
			sub, gerr := s.GetSubscription(ctx, r.SubscriptionID)
			switch {
			case gerr != nil:
				return gerr
			case sub.Status != subscription.StatusActive:
				return crmledger.ErrInvalidTransition
			}
			return crmledger.ErrConcurrencyConflict
		}
		if err != nil {
			return err
		}

		if _, err := s.mdb.Collection(colInvoices).InsertOne(ctx, toInvoiceModel(r.Invoice)); err != nil {
			return insertErr("insert renewal invoice", err)
		}

		_, err = s.mdb.Collection(colCustomers).UpdateOne(ctx,
			bson.M{"_id": m.CustomerID, "current_plan.subscription_id": m.ID},
			bson.M{"$set": bson.M{"current_plan.end_date": r.NewEnd.UTC(), "updated_at": r.At.UTC()}},
		)
		if err != nil {
			return err
		}

		renewed, err = fromSubscriptionModel(&m)
		return err
	})
	if err != nil {
		return nil, wrapTx("renew subscription", err)
	}
	return renewed, nil
}

func (s *Store) ListDueForActivation(ctx context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error) {
	return s.findSubscriptions(ctx, "list due for activation", bson.M{
		"status":     string(subscription.StatusPending),
		"start_date": bson.M{"$lte": asOf.UTC()},
	}, bson.D{{Key: "start_date", Value: 1}}, 0, limit)
}

func (s *Store) ListDueForExpiry(ctx context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error) {
	return s.findSubscriptions(ctx, "list due for expiry", bson.M{
		"status":     string(subscription.StatusActive),
		"auto_renew": false,
		"end_date":   bson.M{"$lt": asOf.UTC()},
	}, bson.D{{Key: "end_date", Value: 1}}, 0, limit)
}

func (s *Store) CountActiveSubscriptions(ctx context.Context, asOf time.Time) (int64, error) {
	n, err := s.mdb.Collection(colSubscriptions).CountDocuments(ctx, bson.M{
		"status":     string(subscription.StatusActive),
		"start_date": bson.M{"$lte": asOf.UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("crmledger/mongo: count active subscriptions: %w", err)
	}
	return n, nil
}

func (s *Store) RenewalStats(ctx context.Context) (subscription.RenewalStats, error) {
	col := s.mdb.Collection(colSubscriptions)
	total, err := col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return subscription.RenewalStats{}, fmt.Errorf("crmledger/mongo: renewal stats: %w", err)
	}
	auto, err := col.CountDocuments(ctx, bson.M{"auto_renew": true})
	if err != nil {
		return subscription.RenewalStats{}, fmt.Errorf("crmledger/mongo: renewal stats: %w", err)
	}
	return subscription.RenewalStats{Total: total, AutoRenew: auto}, nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	if _, err := s.mdb.NewInsert(toInvoiceModel(inv)).Exec(ctx); err != nil {
		return insertErr("create invoice", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": invID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, crmledger.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("crmledger/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListInvoices(ctx context.Context, customerID id.CustomerID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel

	filter := bson.M{"customer_id": customerID.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "issue_date", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/mongo: list invoices: %w", err)
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
	res, err := s.mdb.Collection(colInvoices).UpdateMany(ctx,
		bson.M{"status": string(invoice.StatusUnpaid), "due_date": bson.M{"$lt": asOf.UTC()}},
		bson.M{"$set": bson.M{"status": string(invoice.StatusOverdue), "updated_at": asOf.UTC()}},
	)
	if err != nil {
		return 0, fmt.Errorf("crmledger/mongo: mark overdue: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *Store) CancelInvoice(ctx context.Context, invID id.InvoiceID, at time.Time) (*invoice.Invoice, error) {
	at = at.UTC()
	var m invoiceModel
	err := s.mdb.Collection(colInvoices).FindOneAndUpdate(ctx,
		bson.M{"_id": invID.String(), "status": bson.M{"$in": statusStrings(invoice.Payable)}},
		bson.M{"$set": bson.M{"status": string(invoice.StatusCanceled), "canceled_at": at, "updated_at": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err == nil {
		return fromInvoiceModel(&m)
	}
	if !isNoDocuments(err) {
		return nil, fmt.Errorf("crmledger/mongo: cancel invoice: %w", err)
	}

	inv, err := s.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
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
	var models []invoiceModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"customer_id": customerID.String(),
			"status":      bson.M{"$in": statusStrings(invoice.Payable)},
		}).
		Sort(bson.D{{Key: "due_date", Value: 1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("crmledger/mongo: next unpaid invoice: %w", err)
	}
	if len(models) == 0 {
		return nil, crmledger.ErrInvoiceNotFound
	}
	return fromInvoiceModel(&models[0])
}

func (s *Store) SumPaidRevenue(ctx context.Context, currency string, r invoice.Range) (int64, error) {
	paid := bson.M{}
	if !r.From.IsZero() {
		paid["$gte"] = r.From.UTC()
	}
	if r.ToInclusive {
		paid["$lte"] = r.To.UTC()
	} else {
		paid["$lt"] = r.To.UTC()
	}

	pipeline := bson.A{
		bson.M{"$match": bson.M{
			"status":    string(invoice.StatusPaid),
			"currency":  currency,
			"paid_date": paid,
		}},
		bson.M{"$group": bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$amount_cents"},
		}},
	}

	cursor, err := s.mdb.Collection(colInvoices).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("crmledger/mongo: sum paid revenue: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("crmledger/mongo: sum paid revenue decode: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}

// ==================== Transaction Store ====================

func (s *Store) RecordTransaction(ctx context.Context, t *transaction.Transaction, e transaction.Effect) error {
	err := s.inTx(ctx, func(ctx context.Context) error {
		custFilter := bson.M{"_id": t.CustomerID.String()}
		if e.BalanceDelta != 0 {
			res, err := s.mdb.Collection(colCustomers).UpdateOne(ctx, custFilter, bson.M{
				"$inc": bson.M{"balance_amount": e.BalanceDelta},
				"$set": bson.M{"updated_at": t.Date.UTC()},
			})
			if err != nil {
				return err
			}
			if res.MatchedCount == 0 {
				return crmledger.ErrCustomerNotFound
			}
		} else {
			ok, err := s.exists(ctx, colCustomers, custFilter)
			if err != nil {
				return err
			}
			if !ok {
				return crmledger.ErrCustomerNotFound
			}
		}

		if e.SettleInvoice {
			res, err := s.mdb.Collection(colInvoices).UpdateOne(ctx,
				bson.M{"_id": t.InvoiceID.String(), "status": bson.M{"$in": statusStrings(invoice.Payable)}},
				bson.M{"$set": bson.M{
					"status":     string(invoice.StatusPaid),
					"paid_date":  e.PaidAt.UTC(),
					"updated_at": t.Date.UTC(),
				}},
			)
			if err != nil {
				return err
			}
			if res.MatchedCount == 0 {
				ok, err := s.exists(ctx, colInvoices, bson.M{"_id": t.InvoiceID.String()})
				if err != nil {
					return err
				}
				if !ok {
					return crmledger.ErrInvoiceNotFound
				}
				return crmledger.ErrInvoiceNotPayable
			}
		}

		if _, err := s.mdb.Collection(colTransactions).InsertOne(ctx, toTransactionModel(t)); err != nil {
			return insertErr("insert transaction", err)
		}
		return nil
	})
	if err != nil {
		return wrapTx("record transaction", err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, customerID id.CustomerID, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	var models []transactionModel

	filter := bson.M{"customer_id": customerID.String()}
	if opts.Type != "" {
		filter["type"] = string(opts.Type)
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/mongo: list transactions: %w", err)
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
	err := s.inTx(ctx, func(ctx context.Context) error {
		custFilter := bson.M{"_id": pm.CustomerID.String()}
		if makeDefault {
			res, err := s.mdb.Collection(colCustomers).UpdateOne(ctx, custFilter, bson.M{"$set": bson.M{
				"default_payment_method_id": pm.ID.String(),
				"updated_at":                pm.CreatedAt.UTC(),
			}})
			if err != nil {
				return err
			}
			if res.MatchedCount == 0 {
				return crmledger.ErrCustomerNotFound
			}
		} else {
			ok, err := s.exists(ctx, colCustomers, custFilter)
			if err != nil {
				return err
			}
			if !ok {
				return crmledger.ErrCustomerNotFound
			}
		}

		if _, err := s.mdb.Collection(colPaymentMethods).InsertOne(ctx, toPaymentMethodModel(pm)); err != nil {
			return insertErr("insert payment method", err)
		}
		return nil
	})
	if err != nil {
		return wrapTx("create payment method", err)
	}
	return nil
}

// defaultPointer returns the customer's default payment method id, or "".
func (s *Store) defaultPointer(ctx context.Context, customerID string) (string, error) {
	var m customerModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": customerID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return "", crmledger.ErrCustomerNotFound
		}
		return "", err
	}
	return m.DefaultPaymentMethodID, nil
}

func (s *Store) GetPaymentMethod(ctx context.Context, pmID id.PaymentMethodID) (*paymentmethod.PaymentMethod, error) {
	var m paymentMethodModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": pmID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, crmledger.ErrPaymentMethodNotFound
		}
		return nil, fmt.Errorf("crmledger/mongo: get payment method: %w", err)
	}

	def, err := s.defaultPointer(ctx, m.CustomerID)
	if err != nil && !errors.Is(err, crmledger.ErrCustomerNotFound) {
		return nil, fmt.Errorf("crmledger/mongo: get payment method: %w", err)
	}
	return fromPaymentMethodModel(&m, def)
}

func (s *Store) ListPaymentMethods(ctx context.Context, customerID id.CustomerID) ([]*paymentmethod.PaymentMethod, error) {
	var models []paymentMethodModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"customer_id": customerID.String()}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("crmledger/mongo: list payment methods: %w", err)
	}

	def, err := s.defaultPointer(ctx, customerID.String())
	if err != nil && !errors.Is(err, crmledger.ErrCustomerNotFound) {
		return nil, fmt.Errorf("crmledger/mongo: list payment methods: %w", err)
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

func (s *Store) DeletePaymentMethod(ctx context.Context, pmID id.PaymentMethodID, at time.Time) (bool, error) {
	var wasDefault bool
	err := s.inTx(ctx, func(ctx context.Context) error {
		var m paymentMethodModel
		err := s.mdb.Collection(colPaymentMethods).FindOneAndDelete(ctx, bson.M{"_id": pmID.String()}).Decode(&m)
		if isNoDocuments(err) {
			return crmledger.ErrPaymentMethodNotFound
		}
		if err != nil {
			return err
		}

		res, err := s.mdb.Collection(colCustomers).UpdateOne(ctx,
			bson.M{"_id": m.CustomerID, "default_payment_method_id": m.ID},
			bson.M{"$set": bson.M{"default_payment_method_id": "", "updated_at": at.UTC()}},
		)
		if err != nil {
			return err
		}
		wasDefault = res.MatchedCount > 0
		return nil
	})
	if err != nil {
		return false, wrapTx("delete payment method", err)
	}
	return wasDefault, nil
}

func (s *Store) SetDefaultPaymentMethod(ctx context.Context, customerID id.CustomerID, pmID id.PaymentMethodID, at time.Time) error {
	err := s.inTx(ctx, func(ctx context.Context) error {
		custFilter := bson.M{"_id": customerID.String()}
		ok, err := s.exists(ctx, colCustomers, custFilter)
		if err != nil {
			return err
		}
		if !ok {
			return crmledger.ErrCustomerNotFound
		}

		// Writing the method makes a concurrent delete conflict with this
		// transaction.
		res, err := s.mdb.Collection(colPaymentMethods).UpdateOne(ctx,
			bson.M{"_id": pmID.String(), "customer_id": customerID.String()},
			bson.M{"$set": bson.M{"updated_at": at.UTC()}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			found, err := s.exists(ctx, colPaymentMethods, bson.M{"_id": pmID.String()})
			if err != nil {
				return err
			}
			if !found {
				return crmledger.ErrPaymentMethodNotFound
			}
			return crmledger.ReferenceError{Entity: "payment method", ID: pmID.String(), Reason: "belongs to another customer"}
		}

		_, err = s.mdb.Collection(colCustomers).UpdateOne(ctx, custFilter, bson.M{"$set": bson.M{
			"default_payment_method_id": pmID.String(),
			"updated_at":                at.UTC(),
		}})
		return err
	})
	if err != nil {
		return wrapTx("set default payment method", err)
	}
	return nil
}

func (s *Store) GetDefaultPaymentMethod(ctx context.Context, customerID id.CustomerID) (*paymentmethod.PaymentMethod, error) {
	def, err := s.defaultPointer(ctx, customerID.String())
	if err != nil {
		if errors.Is(err, crmledger.ErrCustomerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("crmledger/mongo: get default payment method: %w", err)
	}
	if def == "" {
		return nil, crmledger.ErrNoDefaultPaymentMethod
	}

	var m paymentMethodModel
	err = s.mdb.NewFind(&m).
		Filter(bson.M{"_id": def}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, crmledger.ErrNoDefaultPaymentMethod
		}
		return nil, fmt.Errorf("crmledger/mongo: get default payment method: %w", err)
	}
	return fromPaymentMethodModel(&m, def)
}

// ==================== Ticket Store ====================

func (s *Store) CreateTicket(ctx context.Context, t *ticket.Ticket) error {
	if _, err := s.mdb.NewInsert(toTicketModel(t)).Exec(ctx); err != nil {
		return insertErr("create ticket", err)
	}
	return nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID id.TicketID) (*ticket.Ticket, error) {
	return s.findTicket(ctx, "get ticket", bson.M{"_id": ticketID.String()})
}

func (s *Store) GetTicketByNumber(ctx context.Context, number string) (*ticket.Ticket, error) {
	return s.findTicket(ctx, "get ticket by number", bson.M{"number": number})
}

func (s *Store) findTicket(ctx context.Context, op string, filter bson.M) (*ticket.Ticket, error) {
	var m ticketModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, crmledger.ErrTicketNotFound
		}
		return nil, fmt.Errorf("crmledger/mongo: %s: %w", op, err)
	}
	return fromTicketModel(&m)
}

func (s *Store) AppendTicketMessage(ctx context.Context, ticketID id.TicketID, msg ticket.Message) error {
	res, err := s.mdb.Collection(colTickets).UpdateOne(ctx,
		bson.M{"_id": ticketID.String()},
		bson.M{
			"$push": bson.M{"messages": toMessageModel(msg)},
			"$set":  bson.M{"updated_at": msg.Timestamp.UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("crmledger/mongo: append ticket message: %w", err)
	}
	if res.MatchedCount == 0 {
		return crmledger.ErrTicketNotFound
	}
	return nil
}

func (s *Store) SetTicketStatus(ctx context.Context, ticketID id.TicketID, status ticket.Status, at time.Time) (*ticket.Ticket, error) {
	at = at.UTC()
	set := bson.M{"status": string(status), "updated_at": at}
	if status == ticket.StatusResolved {
		set["resolved_at"] = bson.M{"$ifNull": bson.A{"$resolved_at", at}}
	}

	var m ticketModel
	err := s.mdb.Collection(colTickets).FindOneAndUpdate(ctx,
		bson.M{"_id": ticketID.String()},
		bson.A{bson.M{"$set": set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, crmledger.ErrTicketNotFound
		}
		return nil, fmt.Errorf("crmledger/mongo: set ticket status: %w", err)
	}
	return fromTicketModel(&m)
}

func (s *Store) AssignTicket(ctx context.Context, ticketID id.TicketID, agentID string, at time.Time) error {
	res, err := s.mdb.NewUpdate((*ticketModel)(nil)).
		Filter(bson.M{"_id": ticketID.String()}).
		Set("assigned_to", agentID).
		Set("updated_at", at.UTC()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("crmledger/mongo: assign ticket: %w", err)
	}
	if res.MatchedCount() == 0 {
		return crmledger.ErrTicketNotFound
	}
	return nil
}

func (s *Store) LatestResolvedTicket(ctx context.Context, customerID id.CustomerID) (*ticket.Ticket, error) {
	var models []ticketModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"customer_id": customerID.String(), "resolved_at": bson.M{"$ne": nil}}).
		Sort(bson.D{{Key: "resolved_at", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("crmledger/mongo: latest resolved ticket: %w", err)
	}
	if len(models) == 0 {
		return nil, crmledger.ErrTicketNotFound
	}
	return fromTicketModel(&models[0])
}

// ==================== Sequence Store ====================

func (s *Store) NextSequence(ctx context.Context, scope string) (int64, error) {
	var m sequenceModel
	err := s.mdb.Collection(colSequences).FindOneAndUpdate(ctx,
		bson.M{"_id": scope},
		bson.M{
			"$inc": bson.M{"value": int64(1)},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		// Two first increments raced on the upsert; the loser retries.
		if mongo.IsDuplicateKeyError(err) {
			return 0, crmledger.ErrConcurrencyConflict
		}
		return 0, fmt.Errorf("crmledger/mongo: next sequence: %w", err)
	}
	return m.Value, nil
}

// ==================== Audit Store ====================

func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) error {
	if _, err := s.mdb.NewInsert(toAuditModel(e)).Exec(ctx); err != nil {
		return insertErr("append audit", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, opts audit.ListOpts) ([]*audit.Entry, error) {
	var models []auditModel

	filter := bson.M{}
	if opts.ResourceType != "" {
		filter["resource_type"] = opts.ResourceType
	}
	if opts.ResourceID != "" {
		filter["resource_id"] = opts.ResourceID
	}
	if opts.Severity != "" {
		filter["severity"] = string(opts.Severity)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("crmledger/mongo: list audit: %w", err)
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
	ts := bson.M{"$gte": q.Since.UTC()}
	if !q.Until.IsZero() {
		ts["$lte"] = q.Until.UTC()
	}
	filter := bson.M{"timestamp": ts}
	if len(q.Severities) > 0 {
		filter["severity"] = bson.M{"$in": statusStrings(q.Severities)}
	}

	n, err := s.mdb.Collection(colAudit).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("crmledger/mongo: count audit: %w", err)
	}
	return n, nil
}

// ==================== Network Store ====================

func (s *Store) UpsertNetworkStatus(ctx context.Context, st *network.Status) error {
	filter := bson.M{"service_type": string(st.ServiceType), "region": st.Region}
	update := bson.M{
		"$set": bson.M{
			"status":         string(st.Status),
			"details":        st.Details,
			"affected_users": st.AffectedUsers,
			"last_updated":   st.LastUpdated.UTC(),
		},
		"$setOnInsert": bson.M{"_id": st.ID.String()},
	}

	var m networkStatusModel
	var err error
	// A lost insert race on the unique (service_type, region) index finds
	// the winner's document on the second attempt.
	for range 2 {
		err = s.mdb.Collection(colNetworkStatus).FindOneAndUpdate(ctx, filter, update,
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&m)
		if !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("crmledger/mongo: upsert network status: %w", err)
	}

	stored, err := id.Parse(m.ID)
	if err != nil {
		return err
	}
	st.ID = stored
	return nil
}

func (s *Store) ListNetworkStatus(ctx context.Context) ([]*network.Status, error) {
	var models []networkStatusModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "service_type", Value: 1}, {Key: "region", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("crmledger/mongo: list network status: %w", err)
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
	n, err := s.mdb.Collection(colNetworkStatus).CountDocuments(ctx, bson.M{"status": string(condition)})
	if err != nil {
		return 0, fmt.Errorf("crmledger/mongo: count network status: %w", err)
	}
	return n, nil
}

// ==================== Settings Store ====================

func (s *Store) PutSettings(ctx context.Context, r *settings.Record) error {
	_, err := s.mdb.Collection(colSettings).UpdateOne(ctx,
		bson.M{"_id": string(r.Category)},
		bson.M{"$set": bson.M{
			"data":       string(r.Data),
			"updated_by": r.UpdatedBy,
			"updated_at": r.UpdatedAt.UTC(),
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("crmledger/mongo: put settings: %w", err)
	}
	return nil
}

func (s *Store) GetSettings(ctx context.Context, c settings.Category) (*settings.Record, error) {
	var m settingsModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": string(c)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, crmledger.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("crmledger/mongo: get settings: %w", err)
	}
	return fromSettingsModel(&m), nil
}

// ==================== Helpers ====================

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// insertErr maps duplicate keys to ErrAlreadyExists.
func insertErr(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return crmledger.ErrAlreadyExists
	}
	return fmt.Errorf("crmledger/mongo: %s: %w", op, err)
}

// wrapTx passes crmledger errors through and wraps driver errors.
func wrapTx(op string, err error) error {
	if crmledger.IsNotFound(err) || crmledger.IsStateConflict(err) ||
		crmledger.IsRetryable(err) || crmledger.IsInvalidReference(err) {
		return err
	}
	return fmt.Errorf("crmledger/mongo: %s: %w", op, err)
}

// migrationIndexes returns the index definitions for all crmledger
// collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colCustomers: {
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "current_plan.subscription_id", Value: 1}}},
		},
		colPlans: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "start_date", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "auto_renew", Value: 1}, {Key: "end_date", Value: 1}}},
		},
		colInvoices: {
			{
				Keys:    bson.D{{Key: "number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "issue_date", Value: -1}}},
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "status", Value: 1}, {Key: "due_date", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "due_date", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "currency", Value: 1}, {Key: "paid_date", Value: 1}}},
		},
		colTransactions: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "date", Value: -1}}},
			{Keys: bson.D{{Key: "invoice_id", Value: 1}}},
		},
		colPaymentMethods: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colTickets: {
			{
				Keys:    bson.D{{Key: "number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "resolved_at", Value: -1}}},
		},
		colAudit: {
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "severity", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "resource_type", Value: 1}, {Key: "resource_id", Value: 1}}},
		},
		colNetworkStatus: {
			{
				Keys:    bson.D{{Key: "service_type", Value: 1}, {Key: "region", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
	}
}

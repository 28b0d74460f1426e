// Package memory is an in-process crmledger store. A single mutex makes
// every multi-record operation atomic; records are copied in and out so
// callers never share state with the store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

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

// Store implements store.Store in memory.
type Store struct {
	mu sync.RWMutex

	customers      map[string]*customer.Customer
	plans          map[string]*plan.Plan
	subscriptions  map[string]*subscription.Subscription
	invoices       map[string]*invoice.Invoice
	transactions   []*transaction.Transaction
	paymentMethods map[string]*paymentmethod.PaymentMethod
	tickets        map[string]*ticket.Ticket
	sequences      map[string]int64
	auditLog       []*audit.Entry
	network        map[string]*network.Status
	settings       map[settings.Category]*settings.Record
}

// New returns an empty store.
func New() *Store {
	return &Store{
		customers:      make(map[string]*customer.Customer),
		plans:          make(map[string]*plan.Plan),
		subscriptions:  make(map[string]*subscription.Subscription),
		invoices:       make(map[string]*invoice.Invoice),
		paymentMethods: make(map[string]*paymentmethod.PaymentMethod),
		tickets:        make(map[string]*ticket.Ticket),
		sequences:      make(map[string]int64),
		network:        make(map[string]*network.Status),
		settings:       make(map[settings.Category]*settings.Record),
	}
}

// Migrate is a no-op.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// page applies offset and limit to items.
func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// ==================== Customer Store ====================

func cloneCustomer(c *customer.Customer) *customer.Customer {
	out := *c
	if c.Address != nil {
		a := *c.Address
		out.Address = &a
	}
	if c.CurrentPlan != nil {
		cp := *c.CurrentPlan
		out.CurrentPlan = &cp
	}
	return &out
}

func (s *Store) CreateCustomer(_ context.Context, c *customer.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[c.ID.String()]; exists {
		return crmledger.ErrAlreadyExists
	}
	s.customers[c.ID.String()] = cloneCustomer(c)
	return nil
}

func (s *Store) GetCustomer(_ context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.customers[customerID.String()]; ok {
		return cloneCustomer(c), nil
	}
	return nil, crmledger.ErrCustomerNotFound
}

func (s *Store) UpdateCustomerStatus(_ context.Context, customerID id.CustomerID, status customer.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[customerID.String()]
	if !ok {
		return crmledger.ErrCustomerNotFound
	}
	c.Status = status
	c.Touch(at)
	return nil
}

func (s *Store) CountCustomersByMonth(_ context.Context, from, to time.Time) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64)
	for _, c := range s.customers {
		if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
			continue
		}
		out[c.CreatedAt.UTC().Format("2006-01")]++
	}
	return out, nil
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[p.ID.String()]; exists {
		return crmledger.ErrAlreadyExists
	}
	cp := *p
	s.plans[p.ID.String()] = &cp
	return nil
}

func (s *Store) GetPlan(_ context.Context, planID id.PlanID) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.plans[planID.String()]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, crmledger.ErrPlanNotFound
}

func (s *Store) ListPlans(_ context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*plan.Plan
	for _, p := range s.plans {
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[p.ID.String()]; !ok {
		return crmledger.ErrPlanNotFound
	}
	cp := *p
	s.plans[p.ID.String()] = &cp
	return nil
}

// ==================== Subscription Store ====================

func cloneSubscription(sub *subscription.Subscription) *subscription.Subscription {
	out := *sub
	return &out
}

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) (subscription.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return subscription.Outcome{}, crmledger.ErrAlreadyExists
	}
	c, ok := s.customers[sub.CustomerID.String()]
	if !ok {
		return subscription.Outcome{}, crmledger.ErrCustomerNotFound
	}

	stored := cloneSubscription(sub)
	s.subscriptions[sub.ID.String()] = stored
	out := subscription.Outcome{Subscription: cloneSubscription(stored)}
	if subscription.TakesCurrent(stored.Status) {
		out.Superseded = s.takeCurrent(c, stored, stored.UpdatedAt)
	}
	return out, nil
}

// takeCurrent points c's current plan at sub and cancels the subscription
// it replaced when that one is still active. The caller holds s.mu.
func (s *Store) takeCurrent(c *customer.Customer, sub *subscription.Subscription, at time.Time) *subscription.Subscription {
	var superseded *subscription.Subscription
	if prev := c.CurrentPlan; prev != nil && !prev.SubscriptionID.Equal(sub.ID) {
		if old, ok := s.subscriptions[prev.SubscriptionID.String()]; ok {
			if t := subscription.Supersede(old.ID, at); t.Allows(old) {
				old.Apply(t)
				superseded = cloneSubscription(old)
			}
		}
	}
	c.CurrentPlan = sub.CurrentPlan()
	c.Touch(at)
	return superseded
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		return cloneSubscription(sub), nil
	}
	return nil, crmledger.ErrSubscriptionNotFound
}

func (s *Store) ListSubscriptions(_ context.Context, customerID id.CustomerID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*subscription.Subscription
	for _, sub := range s.subscriptions {
		if !sub.CustomerID.Equal(customerID) {
			continue
		}
		if opts.Status != "" && sub.Status != opts.Status {
			continue
		}
		result = append(result, cloneSubscription(sub))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID.String() > result[j].ID.String()
	})
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) TransitionSubscription(_ context.Context, t subscription.Transition) (subscription.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[t.SubscriptionID.String()]
	if !ok {
		return subscription.Outcome{}, crmledger.ErrSubscriptionNotFound
	}
	if !t.AllowsStatus(sub.Status) {
		return subscription.Outcome{}, crmledger.ErrInvalidTransition
	}
	if !t.Allows(sub) {
		return subscription.Outcome{}, crmledger.ErrSubscriptionNotExpirable
	}
	c, ok := s.customers[sub.CustomerID.String()]
	if !ok {
		return subscription.Outcome{}, crmledger.ErrCustomerNotFound
	}

	sub.Apply(t)
	out := subscription.Outcome{Subscription: cloneSubscription(sub)}
	switch {
	case subscription.TakesCurrent(t.To):
		out.Superseded = s.takeCurrent(c, sub, t.At)
	case subscription.ReleasesCurrent(t.To):
		if c.CurrentPlan != nil && c.CurrentPlan.SubscriptionID.Equal(sub.ID) {
			c.CurrentPlan = nil
			c.Touch(t.At)
		}
	}
	return out, nil
}

func (s *Store) RenewSubscription(_ context.Context, r subscription.Renewal) (*subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[r.SubscriptionID.String()]
	if !ok {
		return nil, crmledger.ErrSubscriptionNotFound
	}
	if sub.Status != subscription.StatusActive {
		return nil, crmledger.ErrInvalidTransition
	}
	if !sub.EndDate.Equal(r.PreviousEnd) {
		return nil, crmledger.ErrConcurrencyConflict
	}
	if _, exists := s.invoices[r.Invoice.ID.String()]; exists {
		return nil, crmledger.ErrAlreadyExists
	}

	sub.EndDate = r.NewEnd
	sub.Touch(r.At)
	s.invoices[r.Invoice.ID.String()] = cloneInvoice(r.Invoice)

	if c, ok := s.customers[sub.CustomerID.String()]; ok && c.CurrentPlan != nil && c.CurrentPlan.SubscriptionID.Equal(sub.ID) {
		c.CurrentPlan.EndDate = r.NewEnd
		c.Touch(r.At)
	}
	return cloneSubscription(sub), nil
}

func (s *Store) ListDueForActivation(_ context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error) {
	return s.listDue(func(sub *subscription.Subscription) bool {
		return sub.Status == subscription.StatusPending && !sub.StartDate.After(asOf)
	}, func(sub *subscription.Subscription) time.Time { return sub.StartDate }, limit), nil
}

func (s *Store) ListDueForExpiry(_ context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error) {
	return s.listDue(func(sub *subscription.Subscription) bool {
		return sub.Expirable(asOf)
	}, func(sub *subscription.Subscription) time.Time { return sub.EndDate }, limit), nil
}

func (s *Store) listDue(match func(*subscription.Subscription) bool, key func(*subscription.Subscription) time.Time, limit int) []*subscription.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*subscription.Subscription
	for _, sub := range s.subscriptions {
		if match(sub) {
			result = append(result, cloneSubscription(sub))
		}
	}
	sort.Slice(result, func(i, j int) bool { return key(result[i]).Before(key(result[j])) })
	return page(result, 0, limit)
}

func (s *Store) CountActiveSubscriptions(_ context.Context, asOf time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(lo.CountBy(lo.Values(s.subscriptions), func(sub *subscription.Subscription) bool {
		return sub.Status == subscription.StatusActive && !sub.StartDate.After(asOf)
	})), nil
}

func (s *Store) RenewalStats(_ context.Context) (subscription.RenewalStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return subscription.RenewalStats{
		Total: int64(len(s.subscriptions)),
		AutoRenew: int64(lo.CountBy(lo.Values(s.subscriptions), func(sub *subscription.Subscription) bool {
			return sub.AutoRenew
		})),
	}, nil
}

// ==================== Invoice Store ====================

func cloneInvoice(inv *invoice.Invoice) *invoice.Invoice {
	out := *inv
	out.Items = append([]invoice.LineItem(nil), inv.Items...)
	if inv.PaymentMethod != nil {
		pm := *inv.PaymentMethod
		out.PaymentMethod = &pm
	}
	return &out
}

func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[inv.ID.String()]; exists {
		return crmledger.ErrAlreadyExists
	}
	s.invoices[inv.ID.String()] = cloneInvoice(inv)
	return nil
}

func (s *Store) GetInvoice(_ context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invoices[invID.String()]; ok {
		return cloneInvoice(inv), nil
	}
	return nil, crmledger.ErrInvoiceNotFound
}

func (s *Store) ListInvoices(_ context.Context, customerID id.CustomerID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*invoice.Invoice
	for _, inv := range s.invoices {
		if !inv.CustomerID.Equal(customerID) {
			continue
		}
		if opts.Status != "" && inv.Status != opts.Status {
			continue
		}
		result = append(result, cloneInvoice(inv))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].IssueDate.Equal(result[j].IssueDate) {
			return result[i].IssueDate.After(result[j].IssueDate)
		}
		return result[i].ID.String() > result[j].ID.String()
	})
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) MarkOverdue(_ context.Context, asOf time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, inv := range s.invoices {
		if inv.IsOverdueAt(asOf) {
			inv.Status = invoice.StatusOverdue
			inv.Touch(asOf)
			n++
		}
	}
	return n, nil
}

func (s *Store) CancelInvoice(_ context.Context, invID id.InvoiceID, at time.Time) (*invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invID.String()]
	if !ok {
		return nil, crmledger.ErrInvoiceNotFound
	}
	switch inv.Status {
	case invoice.StatusPaid:
		return nil, crmledger.ErrInvoiceAlreadyPaid
	case invoice.StatusCanceled:
		return nil, crmledger.ErrInvoiceAlreadyCanceled
	}
	at = at.UTC()
	inv.Status = invoice.StatusCanceled
	inv.CanceledAt = &at
	inv.Touch(at)
	return cloneInvoice(inv), nil
}

func (s *Store) NextUnpaidInvoice(_ context.Context, customerID id.CustomerID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next *invoice.Invoice
	for _, inv := range s.invoices {
		if !inv.CustomerID.Equal(customerID) || !inv.Status.IsPayable() {
			continue
		}
		if next == nil || inv.DueDate.Before(next.DueDate) {
			next = inv
		}
	}
	if next == nil {
		return nil, crmledger.ErrInvoiceNotFound
	}
	return cloneInvoice(next), nil
}

func (s *Store) SumPaidRevenue(_ context.Context, currency string, r invoice.Range) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.SumBy(lo.Values(s.invoices), func(inv *invoice.Invoice) int64 {
		if inv.Status != invoice.StatusPaid || inv.PaidDate == nil || inv.Amount.Currency != currency {
			return 0
		}
		if !r.Contains(*inv.PaidDate) {
			return 0
		}
		return inv.Amount.Amount
	}), nil
}

// ==================== Transaction Store ====================

func (s *Store) RecordTransaction(_ context.Context, t *transaction.Transaction, e transaction.Effect) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[t.CustomerID.String()]
	if !ok {
		return crmledger.ErrCustomerNotFound
	}

	var inv *invoice.Invoice
	if e.SettleInvoice {
		if inv, ok = s.invoices[t.InvoiceID.String()]; !ok {
			return crmledger.ErrInvoiceNotFound
		}
		if !inv.Status.IsPayable() {
			return crmledger.ErrInvoiceNotPayable
		}
	}

	if inv != nil {
		paidAt := e.PaidAt.UTC()
		inv.Status = invoice.StatusPaid
		inv.PaidDate = &paidAt
		inv.Touch(t.Date)
	}
	if e.BalanceDelta != 0 {
		c.Balance.Amount += e.BalanceDelta
		c.Touch(t.Date)
	}

	cp := *t
	s.transactions = append(s.transactions, &cp)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, customerID id.CustomerID, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*transaction.Transaction
	for _, t := range s.transactions {
		if !t.CustomerID.Equal(customerID) {
			continue
		}
		if opts.Type != "" && t.Type != opts.Type {
			continue
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Date.After(result[j].Date) })
	return page(result, opts.Offset, opts.Limit), nil
}

// ==================== Payment Method Store ====================

// withDefault copies pm and derives IsDefault from the owner's pointer.
func (s *Store) withDefault(pm *paymentmethod.PaymentMethod) *paymentmethod.PaymentMethod {
	out := *pm
	out.IsDefault = false
	if c, ok := s.customers[pm.CustomerID.String()]; ok {
		out.IsDefault = c.DefaultPaymentMethodID.Equal(pm.ID)
	}
	return &out
}

func (s *Store) CreatePaymentMethod(_ context.Context, pm *paymentmethod.PaymentMethod, makeDefault bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[pm.CustomerID.String()]
	if !ok {
		return crmledger.ErrCustomerNotFound
	}
	if _, exists := s.paymentMethods[pm.ID.String()]; exists {
		return crmledger.ErrAlreadyExists
	}

	cp := *pm
	cp.IsDefault = false
	s.paymentMethods[pm.ID.String()] = &cp
	if makeDefault {
		c.DefaultPaymentMethodID = pm.ID
		c.Touch(pm.CreatedAt)
	}
	return nil
}

func (s *Store) GetPaymentMethod(_ context.Context, pmID id.PaymentMethodID) (*paymentmethod.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pm, ok := s.paymentMethods[pmID.String()]; ok {
		return s.withDefault(pm), nil
	}
	return nil, crmledger.ErrPaymentMethodNotFound
}

func (s *Store) ListPaymentMethods(_ context.Context, customerID id.CustomerID) ([]*paymentmethod.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*paymentmethod.PaymentMethod
	for _, pm := range s.paymentMethods {
		if pm.CustomerID.Equal(customerID) {
			result = append(result, s.withDefault(pm))
		}
	}
	paymentmethod.SortDefaultFirst(result)
	return result, nil
}

func (s *Store) DeletePaymentMethod(_ context.Context, pmID id.PaymentMethodID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pm, ok := s.paymentMethods[pmID.String()]
	if !ok {
		return false, crmledger.ErrPaymentMethodNotFound
	}
	delete(s.paymentMethods, pmID.String())

	c, ok := s.customers[pm.CustomerID.String()]
	if !ok || !c.DefaultPaymentMethodID.Equal(pmID) {
		return false, nil
	}
	c.DefaultPaymentMethodID = id.Nil
	c.Touch(at)
	return true, nil
}

func (s *Store) SetDefaultPaymentMethod(_ context.Context, customerID id.CustomerID, pmID id.PaymentMethodID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[customerID.String()]
	if !ok {
		return crmledger.ErrCustomerNotFound
	}
	pm, ok := s.paymentMethods[pmID.String()]
	if !ok {
		return crmledger.ErrPaymentMethodNotFound
	}
	if !pm.CustomerID.Equal(customerID) {
		return crmledger.ReferenceError{Entity: "payment method", ID: pmID.String(), Reason: "belongs to another customer"}
	}
	c.DefaultPaymentMethodID = pmID
	c.Touch(at)
	return nil
}

func (s *Store) GetDefaultPaymentMethod(_ context.Context, customerID id.CustomerID) (*paymentmethod.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[customerID.String()]
	if !ok {
		return nil, crmledger.ErrCustomerNotFound
	}
	if c.DefaultPaymentMethodID.IsNil() {
		return nil, crmledger.ErrNoDefaultPaymentMethod
	}
	pm, ok := s.paymentMethods[c.DefaultPaymentMethodID.String()]
	if !ok {
		return nil, crmledger.ErrNoDefaultPaymentMethod
	}
	return s.withDefault(pm), nil
}

// ==================== Ticket Store ====================

func cloneTicket(t *ticket.Ticket) *ticket.Ticket {
	out := *t
	out.Messages = append([]ticket.Message(nil), t.Messages...)
	return &out
}

func (s *Store) CreateTicket(_ context.Context, t *ticket.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tickets[t.ID.String()]; exists {
		return crmledger.ErrAlreadyExists
	}
	for _, existing := range s.tickets {
		if existing.Number == t.Number {
			return crmledger.ErrAlreadyExists
		}
	}
	s.tickets[t.ID.String()] = cloneTicket(t)
	return nil
}

func (s *Store) GetTicket(_ context.Context, ticketID id.TicketID) (*ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tickets[ticketID.String()]; ok {
		return cloneTicket(t), nil
	}
	return nil, crmledger.ErrTicketNotFound
}

func (s *Store) GetTicketByNumber(_ context.Context, number string) (*ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tickets {
		if t.Number == number {
			return cloneTicket(t), nil
		}
	}
	return nil, crmledger.ErrTicketNotFound
}

func (s *Store) AppendTicketMessage(_ context.Context, ticketID id.TicketID, m ticket.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID.String()]
	if !ok {
		return crmledger.ErrTicketNotFound
	}
	t.Messages = append(t.Messages, m)
	t.Touch(m.Timestamp)
	return nil
}

func (s *Store) SetTicketStatus(_ context.Context, ticketID id.TicketID, status ticket.Status, at time.Time) (*ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID.String()]
	if !ok {
		return nil, crmledger.ErrTicketNotFound
	}
	at = at.UTC()
	t.Status = status
	if status == ticket.StatusResolved && t.ResolvedAt == nil {
		t.ResolvedAt = &at
	}
	t.Touch(at)
	return cloneTicket(t), nil
}

func (s *Store) AssignTicket(_ context.Context, ticketID id.TicketID, agentID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID.String()]
	if !ok {
		return crmledger.ErrTicketNotFound
	}
	t.AssignedTo = agentID
	t.Touch(at)
	return nil
}

func (s *Store) LatestResolvedTicket(_ context.Context, customerID id.CustomerID) (*ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *ticket.Ticket
	for _, t := range s.tickets {
		if !t.CustomerID.Equal(customerID) || t.ResolvedAt == nil {
			continue
		}
		if latest == nil || t.ResolvedAt.After(*latest.ResolvedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, crmledger.ErrTicketNotFound
	}
	return cloneTicket(latest), nil
}

// ==================== Sequence Store ====================

func (s *Store) NextSequence(_ context.Context, scope string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequences[scope]++
	return s.sequences[scope], nil
}

// ==================== Audit Store ====================

func (s *Store) AppendAudit(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lo.ContainsBy(s.auditLog, func(x *audit.Entry) bool { return x.ID.Equal(e.ID) }) {
		return crmledger.ErrAlreadyExists
	}
	cp := *e
	s.auditLog = append(s.auditLog, &cp)
	return nil
}

func (s *Store) ListAudit(_ context.Context, opts audit.ListOpts) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*audit.Entry
	for _, e := range s.auditLog {
		if opts.ResourceType != "" && e.ResourceType != opts.ResourceType {
			continue
		}
		if opts.ResourceID != "" && e.ResourceID != opts.ResourceID {
			continue
		}
		if opts.Severity != "" && e.Severity != opts.Severity {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Timestamp.After(result[j].Timestamp) })
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) CountAudit(_ context.Context, q audit.CountQuery) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(lo.CountBy(s.auditLog, func(e *audit.Entry) bool {
		if e.Timestamp.Before(q.Since) {
			return false
		}
		if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
			return false
		}
		return len(q.Severities) == 0 || lo.Contains(q.Severities, e.Severity)
	})), nil
}

// ==================== Network Store ====================

func networkKey(t network.ServiceType, region string) string {
	return string(t) + "|" + region
}

func (s *Store) UpsertNetworkStatus(_ context.Context, st *network.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := networkKey(st.ServiceType, st.Region)
	if existing, ok := s.network[key]; ok {
		st.ID = existing.ID
	}
	cp := *st
	s.network[key] = &cp
	return nil
}

func (s *Store) ListNetworkStatus(_ context.Context) ([]*network.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*network.Status, 0, len(s.network))
	for _, st := range s.network {
		cp := *st
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return networkKey(result[i].ServiceType, result[i].Region) < networkKey(result[j].ServiceType, result[j].Region)
	})
	return result, nil
}

func (s *Store) CountNetworkStatus(_ context.Context, condition network.Condition) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(lo.CountBy(lo.Values(s.network), func(st *network.Status) bool {
		return st.Status == condition
	})), nil
}

// ==================== Settings Store ====================

func (s *Store) PutSettings(_ context.Context, r *settings.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	cp.Data = append([]byte(nil), r.Data...)
	s.settings[r.Category] = &cp
	return nil
}

func (s *Store) GetSettings(_ context.Context, c settings.Category) (*settings.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.settings[c]
	if !ok {
		return nil, crmledger.ErrSettingsNotFound
	}
	cp := *r
	cp.Data = append([]byte(nil), r.Data...)
	return &cp, nil
}

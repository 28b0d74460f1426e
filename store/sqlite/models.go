package sqlite

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/crmledger/audit"
	"github.com/xraph/crmledger/customer"
	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/invoice"
	"github.com/xraph/crmledger/network"
	"github.com/xraph/crmledger/paymentmethod"
	"github.com/xraph/crmledger/plan"
	"github.com/xraph/crmledger/settings"
	"github.com/xraph/crmledger/subscription"
	"github.com/xraph/crmledger/ticket"
	"github.com/xraph/crmledger/transaction"
	"github.com/xraph/crmledger/types"
)

// Times are stored as INTEGER unix milliseconds (UTC).

func ms(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMS(v int64) time.Time { return time.UnixMilli(v).UTC() }

func msPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := ms(*t)
	return &v
}

func fromMSPtr(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := fromMS(*v)
	return &t
}

func parseOptional(s string, parse func(string) (id.ID, error)) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return parse(s)
}

func marshalText(v any) string {
	b, _ := json.Marshal(v) //nolint:errcheck // plain structs
	return string(b)
}

func unmarshalText(s string, v any) error {
	if s == "" || s == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

// ==================== Customer models ====================

type customerModel struct {
	grove.BaseModel `grove:"table:crmledger_customers"`

	ID                     string  `grove:"id,pk"`
	FirstName              string  `grove:"first_name"`
	LastName               string  `grove:"last_name"`
	Email                  string  `grove:"email"`
	PhoneNumber            string  `grove:"phone_number"`
	UserID                 string  `grove:"user_id"`
	Address                string  `grove:"address"`
	CurrentSubscriptionID  string  `grove:"current_subscription_id"`
	CurrentPlanID          string  `grove:"current_plan_id"`
	CurrentStart           *int64  `grove:"current_start"`
	CurrentEnd             *int64  `grove:"current_end"`
	CurrentAutoRenew       bool    `grove:"current_auto_renew"`
	BalanceAmount          int64   `grove:"balance_amount"`
	BalanceCurrency        string  `grove:"balance_currency"`
	Status                 string  `grove:"status"`
	DefaultPaymentMethodID string  `grove:"default_payment_method_id"`
	CreatedAt              int64   `grove:"created_at"`
	UpdatedAt              int64   `grove:"updated_at"`
}

func (m *customerModel) currentPlan() (*customer.CurrentPlan, error) {
	if m.CurrentSubscriptionID == "" {
		return nil, nil //nolint:nilnil // no current plan
	}
	subID, err := id.ParseSubscriptionID(m.CurrentSubscriptionID)
	if err != nil {
		return nil, err
	}
	planID, err := id.ParsePlanID(m.CurrentPlanID)
	if err != nil {
		return nil, err
	}
	cp := &customer.CurrentPlan{SubscriptionID: subID, PlanID: planID, AutoRenew: m.CurrentAutoRenew}
	if m.CurrentStart != nil {
		cp.StartDate = fromMS(*m.CurrentStart)
	}
	if m.CurrentEnd != nil {
		cp.EndDate = fromMS(*m.CurrentEnd)
	}
	return cp, nil
}

func toCustomerModel(c *customer.Customer) *customerModel {
	m := &customerModel{
		ID:                     c.ID.String(),
		FirstName:              c.FirstName,
		LastName:               c.LastName,
		Email:                  c.Email,
		PhoneNumber:            c.PhoneNumber,
		UserID:                 c.UserID,
		BalanceAmount:          c.Balance.Amount,
		BalanceCurrency:        c.Balance.Currency,
		Status:                 string(c.Status),
		DefaultPaymentMethodID: c.DefaultPaymentMethodID.String(),
		CreatedAt:              ms(c.CreatedAt),
		UpdatedAt:              ms(c.UpdatedAt),
	}
	if c.Address != nil {
		m.Address = marshalText(c.Address)
	}
	if cp := c.CurrentPlan; cp != nil {
		m.CurrentSubscriptionID = cp.SubscriptionID.String()
		m.CurrentPlanID = cp.PlanID.String()
		m.CurrentStart = msPtr(&cp.StartDate)
		m.CurrentEnd = msPtr(&cp.EndDate)
		m.CurrentAutoRenew = cp.AutoRenew
	}
	return m
}

func fromCustomerModel(m *customerModel) (*customer.Customer, error) {
	custID, err := id.ParseCustomerID(m.ID)
	if err != nil {
		return nil, err
	}
	pmID, err := parseOptional(m.DefaultPaymentMethodID, id.ParsePaymentMethodID)
	if err != nil {
		return nil, err
	}
	cp, err := m.currentPlan()
	if err != nil {
		return nil, err
	}

	c := &customer.Customer{
		Entity: types.Entity{
			CreatedAt: fromMS(m.CreatedAt),
			UpdatedAt: fromMS(m.UpdatedAt),
		},
		ID:                     custID,
		FirstName:              m.FirstName,
		LastName:               m.LastName,
		Email:                  m.Email,
		PhoneNumber:            m.PhoneNumber,
		UserID:                 m.UserID,
		CurrentPlan:            cp,
		Balance:                types.New(m.BalanceAmount, m.BalanceCurrency),
		Status:                 customer.Status(m.Status),
		DefaultPaymentMethodID: pmID,
	}
	if m.Address != "" {
		c.Address = new(customer.Address)
		if err := unmarshalText(m.Address, c.Address); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ==================== Plan models ====================

type planModel struct {
	grove.BaseModel `grove:"table:crmledger_plans"`

	ID            string `grove:"id,pk"`
	Name          string `grove:"name"`
	Description   string `grove:"description"`
	PriceAmount   int64  `grove:"price_amount"`
	PriceCurrency string `grove:"price_currency"`
	BillingCycle  string `grove:"billing_cycle"`
	Features      string `grove:"features"`
	Status        string `grove:"status"`
	CreatedAt     int64  `grove:"created_at"`
	UpdatedAt     int64  `grove:"updated_at"`
}

func toPlanModel(p *plan.Plan) *planModel {
	return &planModel{
		ID:            p.ID.String(),
		Name:          p.Name,
		Description:   p.Description,
		PriceAmount:   p.Price.Amount,
		PriceCurrency: p.Price.Currency,
		BillingCycle:  string(p.BillingCycle),
		Features:      marshalText(p.Features),
		Status:        string(p.Status),
		CreatedAt:     ms(p.CreatedAt),
		UpdatedAt:     ms(p.UpdatedAt),
	}
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	planID, err := id.ParsePlanID(m.ID)
	if err != nil {
		return nil, err
	}
	var features plan.Features
	if err := unmarshalText(m.Features, &features); err != nil {
		return nil, err
	}
	return &plan.Plan{
		Entity: types.Entity{
			CreatedAt: fromMS(m.CreatedAt),
			UpdatedAt: fromMS(m.UpdatedAt),
		},
		ID:           planID,
		Name:         m.Name,
		Description:  m.Description,
		Price:        types.New(m.PriceAmount, m.PriceCurrency),
		BillingCycle: plan.BillingCycle(m.BillingCycle),
		Features:     features,
		Status:       plan.Status(m.Status),
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:crmledger_subscriptions"`

	ID           string `grove:"id,pk"`
	CustomerID   string `grove:"customer_id"`
	PlanID       string `grove:"plan_id"`
	Status       string `grove:"status"`
	StartDate    int64  `grove:"start_date"`
	EndDate      int64  `grove:"end_date"`
	AutoRenew    bool   `grove:"auto_renew"`
	ActivatedAt  *int64 `grove:"activated_at"`
	CanceledAt   *int64 `grove:"canceled_at"`
	ExpiredAt    *int64 `grove:"expired_at"`
	CancelReason string `grove:"cancel_reason"`
	CreatedAt    int64  `grove:"created_at"`
	UpdatedAt    int64  `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:           s.ID.String(),
		CustomerID:   s.CustomerID.String(),
		PlanID:       s.PlanID.String(),
		Status:       string(s.Status),
		StartDate:    ms(s.StartDate),
		EndDate:      ms(s.EndDate),
		AutoRenew:    s.AutoRenew,
		ActivatedAt:  msPtr(s.ActivatedAt),
		CanceledAt:   msPtr(s.CanceledAt),
		ExpiredAt:    msPtr(s.ExpiredAt),
		CancelReason: s.CancelReason,
		CreatedAt:    ms(s.CreatedAt),
		UpdatedAt:    ms(s.UpdatedAt),
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}
	custID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	planID, err := id.ParsePlanID(m.PlanID)
	if err != nil {
		return nil, err
	}
	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: fromMS(m.CreatedAt),
			UpdatedAt: fromMS(m.UpdatedAt),
		},
		ID:           subID,
		CustomerID:   custID,
		PlanID:       planID,
		Status:       subscription.Status(m.Status),
		StartDate:    fromMS(m.StartDate),
		EndDate:      fromMS(m.EndDate),
		AutoRenew:    m.AutoRenew,
		ActivatedAt:  fromMSPtr(m.ActivatedAt),
		CanceledAt:   fromMSPtr(m.CanceledAt),
		ExpiredAt:    fromMSPtr(m.ExpiredAt),
		CancelReason: m.CancelReason,
	}, nil
}

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:crmledger_invoices"`

	ID             string `grove:"id,pk"`
	Number         string `grove:"number"`
	CustomerID     string `grove:"customer_id"`
	SubscriptionID string `grove:"subscription_id"`
	AmountCents    int64  `grove:"amount_cents"`
	Currency       string `grove:"currency"`
	Status         string `grove:"status"`
	IssueDate      int64  `grove:"issue_date"`
	DueDate        int64  `grove:"due_date"`
	PaidDate       *int64 `grove:"paid_date"`
	CanceledAt     *int64 `grove:"canceled_at"`
	Items          string `grove:"items"`
	PaymentMethod  string `grove:"payment_method"`
	CreatedAt      int64  `grove:"created_at"`
	UpdatedAt      int64  `grove:"updated_at"`

	// Set only on renewal inserts; the renewal triggers read them.
	RenewalPreviousEnd *int64 `grove:"renewal_previous_end"`
	RenewalNewEnd      *int64 `grove:"renewal_new_end"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	items := inv.Items
	if items == nil {
		items = []invoice.LineItem{}
	}
	m := &invoiceModel{
		ID:             inv.ID.String(),
		Number:         inv.Number,
		CustomerID:     inv.CustomerID.String(),
		SubscriptionID: inv.SubscriptionID.String(),
		AmountCents:    inv.Amount.Amount,
		Currency:       inv.Amount.Currency,
		Status:         string(inv.Status),
		IssueDate:      ms(inv.IssueDate),
		DueDate:        ms(inv.DueDate),
		PaidDate:       msPtr(inv.PaidDate),
		CanceledAt:     msPtr(inv.CanceledAt),
		Items:          marshalText(items),
		CreatedAt:      ms(inv.CreatedAt),
		UpdatedAt:      ms(inv.UpdatedAt),
	}
	if inv.PaymentMethod != nil {
		m.PaymentMethod = marshalText(inv.PaymentMethod)
	}
	return m
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}
	custID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	subID, err := parseOptional(m.SubscriptionID, id.ParseSubscriptionID)
	if err != nil {
		return nil, err
	}

	items := []invoice.LineItem{}
	if err := unmarshalText(m.Items, &items); err != nil {
		return nil, err
	}

	inv := &invoice.Invoice{
		Entity: types.Entity{
			CreatedAt: fromMS(m.CreatedAt),
			UpdatedAt: fromMS(m.UpdatedAt),
		},
		ID:             invID,
		Number:         m.Number,
		CustomerID:     custID,
		SubscriptionID: subID,
		Amount:         types.New(m.AmountCents, m.Currency),
		Status:         invoice.Status(m.Status),
		IssueDate:      fromMS(m.IssueDate),
		DueDate:        fromMS(m.DueDate),
		PaidDate:       fromMSPtr(m.PaidDate),
		CanceledAt:     fromMSPtr(m.CanceledAt),
		Items:          items,
	}
	if m.PaymentMethod != "" {
		inv.PaymentMethod = new(paymentmethod.Instrument)
		if err := unmarshalText(m.PaymentMethod, inv.PaymentMethod); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

// ==================== Transaction models ====================

type transactionModel struct {
	grove.BaseModel `grove:"table:crmledger_transactions"`

	ID          string `grove:"id,pk"`
	CustomerID  string `grove:"customer_id"`
	InvoiceID   string `grove:"invoice_id"`
	AmountCents int64  `grove:"amount_cents"`
	Currency    string `grove:"currency"`
	Type        string `grove:"type"`
	Status      string `grove:"status"`
	Instrument  string `grove:"instrument"`
	Reference   string `grove:"reference"`
	Date        int64  `grove:"date"`

	// Effect columns, applied by the transaction triggers.
	SettleInvoice bool   `grove:"settle_invoice"`
	PaidAt        *int64 `grove:"paid_at"`
	BalanceDelta  int64  `grove:"balance_delta"`
}

func toTransactionModel(t *transaction.Transaction, e transaction.Effect) *transactionModel {
	m := &transactionModel{
		ID:            t.ID.String(),
		CustomerID:    t.CustomerID.String(),
		InvoiceID:     t.InvoiceID.String(),
		AmountCents:   t.Amount.Amount,
		Currency:      t.Amount.Currency,
		Type:          string(t.Type),
		Status:        string(t.Status),
		Instrument:    marshalText(t.Instrument),
		Reference:     t.Reference,
		Date:          ms(t.Date),
		SettleInvoice: e.SettleInvoice,
		BalanceDelta:  e.BalanceDelta,
	}
	if e.SettleInvoice {
		m.PaidAt = msPtr(&e.PaidAt)
	}
	return m
}

func fromTransactionModel(m *transactionModel) (*transaction.Transaction, error) {
	txnID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}
	custID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	invID, err := parseOptional(m.InvoiceID, id.ParseInvoiceID)
	if err != nil {
		return nil, err
	}
	var instrument paymentmethod.Instrument
	if err := unmarshalText(m.Instrument, &instrument); err != nil {
		return nil, err
	}
	return &transaction.Transaction{
		ID:         txnID,
		CustomerID: custID,
		InvoiceID:  invID,
		Amount:     types.New(m.AmountCents, m.Currency),
		Type:       transaction.Type(m.Type),
		Status:     transaction.Status(m.Status),
		Instrument: instrument,
		Reference:  m.Reference,
		Date:       fromMS(m.Date),
	}, nil
}

// ==================== Payment method models ====================

type paymentMethodModel struct {
	grove.BaseModel `grove:"table:crmledger_payment_methods"`

	ID         string `grove:"id,pk"`
	CustomerID string `grove:"customer_id"`
	Type       string `grove:"type"`
	CardBrand  string `grove:"card_brand"`
	LastFour   string `grove:"last_four"`
	ExpiryDate string `grove:"expiry_date"`
	CreatedAt  int64  `grove:"created_at"`
	UpdatedAt  int64  `grove:"updated_at"`

	// ClaimedDefault makes the insert trigger point the owner's default at
	// the new row.
	ClaimedDefault bool `grove:"claimed_default"`
}

func toPaymentMethodModel(pm *paymentmethod.PaymentMethod, makeDefault bool) *paymentMethodModel {
	return &paymentMethodModel{
		ID:             pm.ID.String(),
		CustomerID:     pm.CustomerID.String(),
		Type:           string(pm.Type),
		CardBrand:      pm.CardBrand,
		LastFour:       pm.LastFour,
		ExpiryDate:     pm.ExpiryDate,
		CreatedAt:      ms(pm.CreatedAt),
		UpdatedAt:      ms(pm.UpdatedAt),
		ClaimedDefault: makeDefault,
	}
}

func fromPaymentMethodModel(m *paymentMethodModel, defaultID string) (*paymentmethod.PaymentMethod, error) {
	pmID, err := id.ParsePaymentMethodID(m.ID)
	if err != nil {
		return nil, err
	}
	custID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	return &paymentmethod.PaymentMethod{
		Entity: types.Entity{
			CreatedAt: fromMS(m.CreatedAt),
			UpdatedAt: fromMS(m.UpdatedAt),
		},
		ID:         pmID,
		CustomerID: custID,
		Type:       paymentmethod.Type(m.Type),
		CardBrand:  m.CardBrand,
		LastFour:   m.LastFour,
		ExpiryDate: m.ExpiryDate,
		IsDefault:  defaultID != "" && defaultID == m.ID,
	}, nil
}

// ==================== Ticket models ====================

type ticketModel struct {
	grove.BaseModel `grove:"table:crmledger_tickets"`

	ID          string `grove:"id,pk"`
	Number      string `grove:"number"`
	CustomerID  string `grove:"customer_id"`
	Subject     string `grove:"subject"`
	Description string `grove:"description"`
	Status      string `grove:"status"`
	Priority    string `grove:"priority"`
	Category    string `grove:"category"`
	AssignedTo  string `grove:"assigned_to"`
	Messages    string `grove:"messages"`
	ResolvedAt  *int64 `grove:"resolved_at"`
	CreatedAt   int64  `grove:"created_at"`
	UpdatedAt   int64  `grove:"updated_at"`
}

func toTicketModel(t *ticket.Ticket) *ticketModel {
	msgs := t.Messages
	if msgs == nil {
		msgs = []ticket.Message{}
	}
	return &ticketModel{
		ID:          t.ID.String(),
		Number:      t.Number,
		CustomerID:  t.CustomerID.String(),
		Subject:     t.Subject,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		Category:    t.Category,
		AssignedTo:  t.AssignedTo,
		Messages:    marshalText(msgs),
		ResolvedAt:  msPtr(t.ResolvedAt),
		CreatedAt:   ms(t.CreatedAt),
		UpdatedAt:   ms(t.UpdatedAt),
	}
}

func fromTicketModel(m *ticketModel) (*ticket.Ticket, error) {
	tktID, err := id.ParseTicketID(m.ID)
	if err != nil {
		return nil, err
	}
	custID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	msgs := []ticket.Message{}
	if err := unmarshalText(m.Messages, &msgs); err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i].Timestamp = msgs[i].Timestamp.UTC()
	}
	return &ticket.Ticket{
		Entity: types.Entity{
			CreatedAt: fromMS(m.CreatedAt),
			UpdatedAt: fromMS(m.UpdatedAt),
		},
		ID:          tktID,
		Number:      m.Number,
		CustomerID:  custID,
		Subject:     m.Subject,
		Description: m.Description,
		Status:      ticket.Status(m.Status),
		Priority:    ticket.Priority(m.Priority),
		Category:    m.Category,
		AssignedTo:  m.AssignedTo,
		Messages:    msgs,
		ResolvedAt:  fromMSPtr(m.ResolvedAt),
	}, nil
}

// ==================== Audit models ====================

type auditModel struct {
	grove.BaseModel `grove:"table:crmledger_audit"`

	ID           string `grove:"id,pk"`
	ActorUserID  string `grove:"actor_user_id"`
	ActorIP      string `grove:"actor_ip"`
	Action       string `grove:"action"`
	ResourceType string `grove:"resource_type"`
	ResourceID   string `grove:"resource_id"`
	Details      string `grove:"details"`
	Severity     string `grove:"severity"`
	Timestamp    int64  `grove:"timestamp"`
}

func toAuditModel(e *audit.Entry) *auditModel {
	details := "{}"
	if len(e.Details) > 0 {
		details = marshalText(e.Details)
	}
	return &auditModel{
		ID:           e.ID.String(),
		ActorUserID:  e.Actor.UserID,
		ActorIP:      e.Actor.IPAddress,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Details:      details,
		Severity:     string(e.Severity),
		Timestamp:    ms(e.Timestamp),
	}
}

func fromAuditModel(m *auditModel) (*audit.Entry, error) {
	audID, err := id.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	var details map[string]any
	if m.Details != "{}" {
		if err := unmarshalText(m.Details, &details); err != nil {
			return nil, err
		}
	}
	return &audit.Entry{
		ID:           audID,
		Actor:        audit.Actor{UserID: m.ActorUserID, IPAddress: m.ActorIP},
		Action:       m.Action,
		ResourceType: m.ResourceType,
		ResourceID:   m.ResourceID,
		Details:      details,
		Severity:     audit.Severity(m.Severity),
		Timestamp:    fromMS(m.Timestamp),
	}, nil
}

// ==================== Network models ====================

type networkStatusModel struct {
	grove.BaseModel `grove:"table:crmledger_network_status"`

	ID            string `grove:"id,pk"`
	ServiceType   string `grove:"service_type"`
	Region        string `grove:"region"`
	Status        string `grove:"status"`
	Details       string `grove:"details"`
	AffectedUsers int64  `grove:"affected_users"`
	LastUpdated   int64  `grove:"last_updated"`
}

func fromNetworkStatusModel(m *networkStatusModel) (*network.Status, error) {
	netID, err := id.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	return &network.Status{
		ID:            netID,
		ServiceType:   network.ServiceType(m.ServiceType),
		Region:        m.Region,
		Status:        network.Condition(m.Status),
		Details:       m.Details,
		AffectedUsers: m.AffectedUsers,
		LastUpdated:   fromMS(m.LastUpdated),
	}, nil
}

// ==================== Settings models ====================

type settingsModel struct {
	grove.BaseModel `grove:"table:crmledger_settings"`

	Category  string `grove:"category,pk"`
	Data      string `grove:"data"`
	UpdatedBy string `grove:"updated_by"`
	UpdatedAt int64  `grove:"updated_at"`
}

func fromSettingsModel(m *settingsModel) *settings.Record {
	return &settings.Record{
		Category:  settings.Category(m.Category),
		Data:      json.RawMessage(m.Data),
		UpdatedBy: m.UpdatedBy,
		UpdatedAt: fromMS(m.UpdatedAt),
	}
}

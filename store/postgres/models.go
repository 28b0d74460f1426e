package postgres

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

func parseOptional(s string, parse func(string) (id.ID, error)) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return parse(s)
}

func timePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// ==================== Customer models ====================

type customerModel struct {
	grove.BaseModel `grove:"table:crmledger_customers"`

	ID                     string          `grove:"id,pk"`
	FirstName              string          `grove:"first_name"`
	LastName               string          `grove:"last_name"`
	Email                  string          `grove:"email"`
	PhoneNumber            string          `grove:"phone_number"`
	UserID                 string          `grove:"user_id"`
	Address                json.RawMessage `grove:"address,type:jsonb"`
	CurrentSubscriptionID  string          `grove:"current_subscription_id"`
	CurrentPlanID          string          `grove:"current_plan_id"`
	CurrentStart           *time.Time      `grove:"current_start"`
	CurrentEnd             *time.Time      `grove:"current_end"`
	CurrentAutoRenew       bool            `grove:"current_auto_renew"`
	BalanceAmount          int64           `grove:"balance_amount"`
	BalanceCurrency        string          `grove:"balance_currency"`
	Status                 string          `grove:"status"`
	DefaultPaymentMethodID string          `grove:"default_payment_method_id"`
	CreatedAt              time.Time       `grove:"created_at"`
	UpdatedAt              time.Time       `grove:"updated_at"`
}

// currentPlanRow is the current plan column group of a customer row.
type currentPlanRow struct {
	SubscriptionID string
	PlanID         string
	Start          *time.Time
	End            *time.Time
	AutoRenew      bool
}

func (r currentPlanRow) toCurrentPlan() (*customer.CurrentPlan, error) {
	if r.SubscriptionID == "" {
		return nil, nil //nolint:nilnil // no current plan
	}
	subID, err := id.ParseSubscriptionID(r.SubscriptionID)
	if err != nil {
		return nil, err
	}
	planID, err := id.ParsePlanID(r.PlanID)
	if err != nil {
		return nil, err
	}
	cp := &customer.CurrentPlan{
		SubscriptionID: subID,
		PlanID:         planID,
		AutoRenew:      r.AutoRenew,
	}
	if r.Start != nil {
		cp.StartDate = r.Start.UTC()
	}
	if r.End != nil {
		cp.EndDate = r.End.UTC()
	}
	return cp, nil
}

func toCustomerModel(c *customer.Customer) *customerModel {
	var address json.RawMessage
	if c.Address != nil {
		address, _ = json.Marshal(c.Address) //nolint:errcheck // plain struct
	}

	m := &customerModel{
		ID:                     c.ID.String(),
		FirstName:              c.FirstName,
		LastName:               c.LastName,
		Email:                  c.Email,
		PhoneNumber:            c.PhoneNumber,
		UserID:                 c.UserID,
		Address:                address,
		BalanceAmount:          c.Balance.Amount,
		BalanceCurrency:        c.Balance.Currency,
		Status:                 string(c.Status),
		DefaultPaymentMethodID: c.DefaultPaymentMethodID.String(),
		CreatedAt:              c.CreatedAt,
		UpdatedAt:              c.UpdatedAt,
	}
	if cp := c.CurrentPlan; cp != nil {
		start, end := cp.StartDate.UTC(), cp.EndDate.UTC()
		m.CurrentSubscriptionID = cp.SubscriptionID.String()
		m.CurrentPlanID = cp.PlanID.String()
		m.CurrentStart = &start
		m.CurrentEnd = &end
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
	cp, err := currentPlanRow{
		SubscriptionID: m.CurrentSubscriptionID,
		PlanID:         m.CurrentPlanID,
		Start:          m.CurrentStart,
		End:            m.CurrentEnd,
		AutoRenew:      m.CurrentAutoRenew,
	}.toCurrentPlan()
	if err != nil {
		return nil, err
	}

	var address *customer.Address
	if len(m.Address) > 0 && string(m.Address) != "null" {
		address = new(customer.Address)
		if err := json.Unmarshal(m.Address, address); err != nil {
			return nil, err
		}
	}

	return &customer.Customer{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:                     custID,
		FirstName:              m.FirstName,
		LastName:               m.LastName,
		Email:                  m.Email,
		PhoneNumber:            m.PhoneNumber,
		UserID:                 m.UserID,
		Address:                address,
		CurrentPlan:            cp,
		Balance:                types.New(m.BalanceAmount, m.BalanceCurrency),
		Status:                 customer.Status(m.Status),
		DefaultPaymentMethodID: pmID,
	}, nil
}

// ==================== Plan models ====================

type planModel struct {
	grove.BaseModel `grove:"table:crmledger_plans"`

	ID            string          `grove:"id,pk"`
	Name          string          `grove:"name"`
	Description   string          `grove:"description"`
	PriceAmount   int64           `grove:"price_amount"`
	PriceCurrency string          `grove:"price_currency"`
	BillingCycle  string          `grove:"billing_cycle"`
	Features      json.RawMessage `grove:"features,type:jsonb"`
	Status        string          `grove:"status"`
	CreatedAt     time.Time       `grove:"created_at"`
	UpdatedAt     time.Time       `grove:"updated_at"`
}

func toPlanModel(p *plan.Plan) *planModel {
	features, _ := json.Marshal(p.Features) //nolint:errcheck // plain struct

	return &planModel{
		ID:            p.ID.String(),
		Name:          p.Name,
		Description:   p.Description,
		PriceAmount:   p.Price.Amount,
		PriceCurrency: p.Price.Currency,
		BillingCycle:  string(p.BillingCycle),
		Features:      features,
		Status:        string(p.Status),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	planID, err := id.ParsePlanID(m.ID)
	if err != nil {
		return nil, err
	}

	var features plan.Features
	if len(m.Features) > 0 {
		if err := json.Unmarshal(m.Features, &features); err != nil {
			return nil, err
		}
	}

	return &plan.Plan{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
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

	ID           string     `grove:"id,pk"`
	CustomerID   string     `grove:"customer_id"`
	PlanID       string     `grove:"plan_id"`
	Status       string     `grove:"status"`
	StartDate    time.Time  `grove:"start_date"`
	EndDate      time.Time  `grove:"end_date"`
	AutoRenew    bool       `grove:"auto_renew"`
	ActivatedAt  *time.Time `grove:"activated_at"`
	CanceledAt   *time.Time `grove:"canceled_at"`
	ExpiredAt    *time.Time `grove:"expired_at"`
	CancelReason string     `grove:"cancel_reason"`
	CreatedAt    time.Time  `grove:"created_at"`
	UpdatedAt    time.Time  `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:           s.ID.String(),
		CustomerID:   s.CustomerID.String(),
		PlanID:       s.PlanID.String(),
		Status:       string(s.Status),
		StartDate:    s.StartDate.UTC(),
		EndDate:      s.EndDate.UTC(),
		AutoRenew:    s.AutoRenew,
		ActivatedAt:  timePtr(s.ActivatedAt),
		CanceledAt:   timePtr(s.CanceledAt),
		ExpiredAt:    timePtr(s.ExpiredAt),
		CancelReason: s.CancelReason,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
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
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:           subID,
		CustomerID:   custID,
		PlanID:       planID,
		Status:       subscription.Status(m.Status),
		StartDate:    m.StartDate.UTC(),
		EndDate:      m.EndDate.UTC(),
		AutoRenew:    m.AutoRenew,
		ActivatedAt:  timePtr(m.ActivatedAt),
		CanceledAt:   timePtr(m.CanceledAt),
		ExpiredAt:    timePtr(m.ExpiredAt),
		CancelReason: m.CancelReason,
	}, nil
}

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:crmledger_invoices"`

	ID             string          `grove:"id,pk"`
	Number         string          `grove:"number"`
	CustomerID     string          `grove:"customer_id"`
	SubscriptionID string          `grove:"subscription_id"`
	AmountCents    int64           `grove:"amount_cents"`
	Currency       string          `grove:"currency"`
	Status         string          `grove:"status"`
	IssueDate      time.Time       `grove:"issue_date"`
	DueDate        time.Time       `grove:"due_date"`
	PaidDate       *time.Time      `grove:"paid_date"`
	CanceledAt     *time.Time      `grove:"canceled_at"`
	Items          json.RawMessage `grove:"items,type:jsonb"`
	PaymentMethod  json.RawMessage `grove:"payment_method,type:jsonb"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	items, _ := json.Marshal(inv.Items) //nolint:errcheck // plain struct
	var pm json.RawMessage
	if inv.PaymentMethod != nil {
		pm, _ = json.Marshal(inv.PaymentMethod) //nolint:errcheck // plain struct
	}

	return &invoiceModel{
		ID:             inv.ID.String(),
		Number:         inv.Number,
		CustomerID:     inv.CustomerID.String(),
		SubscriptionID: inv.SubscriptionID.String(),
		AmountCents:    inv.Amount.Amount,
		Currency:       inv.Amount.Currency,
		Status:         string(inv.Status),
		IssueDate:      inv.IssueDate.UTC(),
		DueDate:        inv.DueDate.UTC(),
		PaidDate:       timePtr(inv.PaidDate),
		CanceledAt:     timePtr(inv.CanceledAt),
		Items:          items,
		PaymentMethod:  pm,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
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
	if len(m.Items) > 0 {
		if err := json.Unmarshal(m.Items, &items); err != nil {
			return nil, err
		}
	}

	var pm *paymentmethod.Instrument
	if len(m.PaymentMethod) > 0 && string(m.PaymentMethod) != "null" {
		pm = new(paymentmethod.Instrument)
		if err := json.Unmarshal(m.PaymentMethod, pm); err != nil {
			return nil, err
		}
	}

	return &invoice.Invoice{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:             invID,
		Number:         m.Number,
		CustomerID:     custID,
		SubscriptionID: subID,
		Amount:         types.New(m.AmountCents, m.Currency),
		Status:         invoice.Status(m.Status),
		IssueDate:      m.IssueDate.UTC(),
		DueDate:        m.DueDate.UTC(),
		PaidDate:       timePtr(m.PaidDate),
		CanceledAt:     timePtr(m.CanceledAt),
		Items:          items,
		PaymentMethod:  pm,
	}, nil
}

// ==================== Transaction models ====================

type transactionModel struct {
	grove.BaseModel `grove:"table:crmledger_transactions"`

	ID          string          `grove:"id,pk"`
	CustomerID  string          `grove:"customer_id"`
	InvoiceID   string          `grove:"invoice_id"`
	AmountCents int64           `grove:"amount_cents"`
	Currency    string          `grove:"currency"`
	Type        string          `grove:"type"`
	Status      string          `grove:"status"`
	Instrument  json.RawMessage `grove:"instrument,type:jsonb"`
	Reference   string          `grove:"reference"`
	Date        time.Time       `grove:"date"`
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
	if len(m.Instrument) > 0 {
		if err := json.Unmarshal(m.Instrument, &instrument); err != nil {
			return nil, err
		}
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
		Date:       m.Date.UTC(),
	}, nil
}

// ==================== Payment method models ====================

type paymentMethodModel struct {
	grove.BaseModel `grove:"table:crmledger_payment_methods"`

	ID         string    `grove:"id,pk"`
	CustomerID string    `grove:"customer_id"`
	Type       string    `grove:"type"`
	CardBrand  string    `grove:"card_brand"`
	LastFour   string    `grove:"last_four"`
	ExpiryDate string    `grove:"expiry_date"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
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
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
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

	ID          string          `grove:"id,pk"`
	Number      string          `grove:"number"`
	CustomerID  string          `grove:"customer_id"`
	Subject     string          `grove:"subject"`
	Description string          `grove:"description"`
	Status      string          `grove:"status"`
	Priority    string          `grove:"priority"`
	Category    string          `grove:"category"`
	AssignedTo  string          `grove:"assigned_to"`
	Messages    json.RawMessage `grove:"messages,type:jsonb"`
	ResolvedAt  *time.Time      `grove:"resolved_at"`
	CreatedAt   time.Time       `grove:"created_at"`
	UpdatedAt   time.Time       `grove:"updated_at"`
}

func toTicketModel(t *ticket.Ticket) *ticketModel {
	msgs := t.Messages
	if msgs == nil {
		msgs = []ticket.Message{}
	}
	messages, _ := json.Marshal(msgs) //nolint:errcheck // plain struct

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
		Messages:    messages,
		ResolvedAt:  timePtr(t.ResolvedAt),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
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
	if len(m.Messages) > 0 {
		if err := json.Unmarshal(m.Messages, &msgs); err != nil {
			return nil, err
		}
	}

	return &ticket.Ticket{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
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
		ResolvedAt:  timePtr(m.ResolvedAt),
	}, nil
}

// ==================== Audit models ====================

type auditModel struct {
	grove.BaseModel `grove:"table:crmledger_audit"`

	ID           string          `grove:"id,pk"`
	ActorUserID  string          `grove:"actor_user_id"`
	ActorIP      string          `grove:"actor_ip"`
	Action       string          `grove:"action"`
	ResourceType string          `grove:"resource_type"`
	ResourceID   string          `grove:"resource_id"`
	Details      json.RawMessage `grove:"details,type:jsonb"`
	Severity     string          `grove:"severity"`
	Timestamp    time.Time       `grove:"timestamp"`
}

func toAuditModel(e *audit.Entry) *auditModel {
	details := json.RawMessage("{}")
	if len(e.Details) > 0 {
		if b, err := json.Marshal(e.Details); err == nil {
			details = b
		}
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
		Timestamp:    e.Timestamp.UTC(),
	}
}

func fromAuditModel(m *auditModel) (*audit.Entry, error) {
	audID, err := id.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	var details map[string]any
	if len(m.Details) > 0 && string(m.Details) != "{}" {
		if err := json.Unmarshal(m.Details, &details); err != nil {
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
		Timestamp:    m.Timestamp.UTC(),
	}, nil
}

// ==================== Network models ====================

type networkStatusModel struct {
	grove.BaseModel `grove:"table:crmledger_network_status"`

	ID            string    `grove:"id,pk"`
	ServiceType   string    `grove:"service_type"`
	Region        string    `grove:"region"`
	Status        string    `grove:"status"`
	Details       string    `grove:"details"`
	AffectedUsers int64     `grove:"affected_users"`
	LastUpdated   time.Time `grove:"last_updated"`
}

func toNetworkStatusModel(st *network.Status) *networkStatusModel {
	return &networkStatusModel{
		ID:            st.ID.String(),
		ServiceType:   string(st.ServiceType),
		Region:        st.Region,
		Status:        string(st.Status),
		Details:       st.Details,
		AffectedUsers: st.AffectedUsers,
		LastUpdated:   st.LastUpdated.UTC(),
	}
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
		LastUpdated:   m.LastUpdated.UTC(),
	}, nil
}

// ==================== Settings models ====================

type settingsModel struct {
	grove.BaseModel `grove:"table:crmledger_settings"`

	Category  string          `grove:"category,pk"`
	Data      json.RawMessage `grove:"data,type:jsonb"`
	UpdatedBy string          `grove:"updated_by"`
	UpdatedAt time.Time       `grove:"updated_at"`
}

func fromSettingsModel(m *settingsModel) *settings.Record {
	return &settings.Record{
		Category:  settings.Category(m.Category),
		Data:      append(json.RawMessage(nil), m.Data...),
		UpdatedBy: m.UpdatedBy,
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

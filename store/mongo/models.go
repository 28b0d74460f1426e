package mongo

import (
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

// parseOptional parses s with parse, mapping "" to id.Nil.
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

	ID                     string            `grove:"id,pk"                     bson:"_id"`
	FirstName              string            `grove:"first_name"                bson:"first_name"`
	LastName               string            `grove:"last_name"                 bson:"last_name"`
	Email                  string            `grove:"email"                     bson:"email"`
	PhoneNumber            string            `grove:"phone_number"              bson:"phone_number"`
	UserID                 string            `grove:"user_id"                   bson:"user_id"`
	Address                *addressModel     `grove:"address"                   bson:"address,omitempty"`
	CurrentPlan            *currentPlanModel `grove:"current_plan"              bson:"current_plan"`
	BalanceAmount          int64             `grove:"balance_amount"            bson:"balance_amount"`
	BalanceCurrency        string            `grove:"balance_currency"          bson:"balance_currency"`
	Status                 string            `grove:"status"                    bson:"status"`
	DefaultPaymentMethodID string            `grove:"default_payment_method_id" bson:"default_payment_method_id"`
	CreatedAt              time.Time         `grove:"created_at"                bson:"created_at"`
	UpdatedAt              time.Time         `grove:"updated_at"                bson:"updated_at"`
}

type addressModel struct {
	Street     string `bson:"street"`
	City       string `bson:"city"`
	State      string `bson:"state"`
	PostalCode string `bson:"postal_code"`
	Country    string `bson:"country"`
}

type currentPlanModel struct {
	SubscriptionID string    `bson:"subscription_id"`
	PlanID         string    `bson:"plan_id"`
	StartDate      time.Time `bson:"start_date"`
	EndDate        time.Time `bson:"end_date"`
	AutoRenew      bool      `bson:"auto_renew"`
}

func toCurrentPlanModel(cp *customer.CurrentPlan) *currentPlanModel {
	if cp == nil {
		return nil
	}
	return &currentPlanModel{
		SubscriptionID: cp.SubscriptionID.String(),
		PlanID:         cp.PlanID.String(),
		StartDate:      cp.StartDate.UTC(),
		EndDate:        cp.EndDate.UTC(),
		AutoRenew:      cp.AutoRenew,
	}
}

func fromCurrentPlanModel(m *currentPlanModel) (*customer.CurrentPlan, error) {
	if m == nil {
		return nil, nil //nolint:nilnil // no current plan
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, err
	}
	planID, err := id.ParsePlanID(m.PlanID)
	if err != nil {
		return nil, err
	}
	return &customer.CurrentPlan{
		SubscriptionID: subID,
		PlanID:         planID,
		StartDate:      m.StartDate.UTC(),
		EndDate:        m.EndDate.UTC(),
		AutoRenew:      m.AutoRenew,
	}, nil
}

func toCustomerModel(c *customer.Customer) *customerModel {
	m := &customerModel{
		ID:                     c.ID.String(),
		FirstName:              c.FirstName,
		LastName:               c.LastName,
		Email:                  c.Email,
		PhoneNumber:            c.PhoneNumber,
		UserID:                 c.UserID,
		CurrentPlan:            toCurrentPlanModel(c.CurrentPlan),
		BalanceAmount:          c.Balance.Amount,
		BalanceCurrency:        c.Balance.Currency,
		Status:                 string(c.Status),
		DefaultPaymentMethodID: c.DefaultPaymentMethodID.String(),
		CreatedAt:              c.CreatedAt,
		UpdatedAt:              c.UpdatedAt,
	}
	if a := c.Address; a != nil {
		m.Address = &addressModel{
			Street:     a.Street,
			City:       a.City,
			State:      a.State,
			PostalCode: a.PostalCode,
			Country:    a.Country,
		}
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
	cp, err := fromCurrentPlanModel(m.CurrentPlan)
	if err != nil {
		return nil, err
	}

	c := &customer.Customer{
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
		CurrentPlan:            cp,
		Balance:                types.New(m.BalanceAmount, m.BalanceCurrency),
		Status:                 customer.Status(m.Status),
		DefaultPaymentMethodID: pmID,
	}
	if a := m.Address; a != nil {
		c.Address = &customer.Address{
			Street:     a.Street,
			City:       a.City,
			State:      a.State,
			PostalCode: a.PostalCode,
			Country:    a.Country,
		}
	}
	return c, nil
}

// ==================== Plan models ====================

type planModel struct {
	grove.BaseModel `grove:"table:crmledger_plans"`

	ID            string        `grove:"id,pk"          bson:"_id"`
	Name          string        `grove:"name"           bson:"name"`
	Description   string        `grove:"description"    bson:"description"`
	PriceAmount   int64         `grove:"price_amount"   bson:"price_amount"`
	PriceCurrency string        `grove:"price_currency" bson:"price_currency"`
	BillingCycle  string        `grove:"billing_cycle"  bson:"billing_cycle"`
	Features      featuresModel `grove:"features"       bson:"features"`
	Status        string        `grove:"status"         bson:"status"`
	CreatedAt     time.Time     `grove:"created_at"     bson:"created_at"`
	UpdatedAt     time.Time     `grove:"updated_at"     bson:"updated_at"`
}

type featuresModel struct {
	Data  int64 `bson:"data"`
	Calls int64 `bson:"calls"`
	SMS   int64 `bson:"sms"`
	Speed int64 `bson:"speed"`
}

func toPlanModel(p *plan.Plan) *planModel {
	return &planModel{
		ID:            p.ID.String(),
		Name:          p.Name,
		Description:   p.Description,
		PriceAmount:   p.Price.Amount,
		PriceCurrency: p.Price.Currency,
		BillingCycle:  string(p.BillingCycle),
		Features: featuresModel{
			Data:  p.Features.Data,
			Calls: p.Features.Calls,
			SMS:   p.Features.SMS,
			Speed: p.Features.Speed,
		},
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	planID, err := id.ParsePlanID(m.ID)
	if err != nil {
		return nil, err
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
		Features: plan.Features{
			Data:  m.Features.Data,
			Calls: m.Features.Calls,
			SMS:   m.Features.SMS,
			Speed: m.Features.Speed,
		},
		Status: plan.Status(m.Status),
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:crmledger_subscriptions"`

	ID           string     `grove:"id,pk"         bson:"_id"`
	CustomerID   string     `grove:"customer_id"   bson:"customer_id"`
	PlanID       string     `grove:"plan_id"       bson:"plan_id"`
	Status       string     `grove:"status"        bson:"status"`
	StartDate    time.Time  `grove:"start_date"    bson:"start_date"`
	EndDate      time.Time  `grove:"end_date"      bson:"end_date"`
	AutoRenew    bool       `grove:"auto_renew"    bson:"auto_renew"`
	ActivatedAt  *time.Time `grove:"activated_at"  bson:"activated_at,omitempty"`
	CanceledAt   *time.Time `grove:"canceled_at"   bson:"canceled_at,omitempty"`
	ExpiredAt    *time.Time `grove:"expired_at"    bson:"expired_at,omitempty"`
	CancelReason string     `grove:"cancel_reason" bson:"cancel_reason,omitempty"`
	CreatedAt    time.Time  `grove:"created_at"    bson:"created_at"`
	UpdatedAt    time.Time  `grove:"updated_at"    bson:"updated_at"`
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

	ID             string           `grove:"id,pk"           bson:"_id"`
	Number         string           `grove:"number"          bson:"number"`
	CustomerID     string           `grove:"customer_id"     bson:"customer_id"`
	SubscriptionID string           `grove:"subscription_id" bson:"subscription_id"`
	AmountCents    int64            `grove:"amount_cents"    bson:"amount_cents"`
	Currency       string           `grove:"currency"        bson:"currency"`
	Status         string           `grove:"status"          bson:"status"`
	IssueDate      time.Time        `grove:"issue_date"      bson:"issue_date"`
	DueDate        time.Time        `grove:"due_date"        bson:"due_date"`
	PaidDate       *time.Time       `grove:"paid_date"       bson:"paid_date,omitempty"`
	CanceledAt     *time.Time       `grove:"canceled_at"     bson:"canceled_at,omitempty"`
	Items          []lineItemModel  `grove:"items"           bson:"items"`
	PaymentMethod  *instrumentModel `grove:"payment_method"  bson:"payment_method,omitempty"`
	CreatedAt      time.Time        `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time        `grove:"updated_at"      bson:"updated_at"`
}

type lineItemModel struct {
	ID          string `bson:"id"`
	Description string `bson:"description"`
	AmountCents int64  `bson:"amount_cents"`
	Currency    string `bson:"currency"`
}

type instrumentModel struct {
	Type      string `bson:"type"`
	LastFour  string `bson:"last_four"`
	CardBrand string `bson:"card_brand,omitempty"`
}

func toInstrumentModel(i paymentmethod.Instrument) instrumentModel {
	return instrumentModel{Type: string(i.Type), LastFour: i.LastFour, CardBrand: i.CardBrand}
}

func fromInstrumentModel(m instrumentModel) paymentmethod.Instrument {
	return paymentmethod.Instrument{Type: paymentmethod.Type(m.Type), LastFour: m.LastFour, CardBrand: m.CardBrand}
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	items := make([]lineItemModel, len(inv.Items))
	for i, li := range inv.Items {
		items[i] = lineItemModel{
			ID:          li.ID.String(),
			Description: li.Description,
			AmountCents: li.Amount.Amount,
			Currency:    li.Amount.Currency,
		}
	}

	m := &invoiceModel{
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
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
	if inv.PaymentMethod != nil {
		pm := toInstrumentModel(*inv.PaymentMethod)
		m.PaymentMethod = &pm
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

	items := make([]invoice.LineItem, len(m.Items))
	for i, li := range m.Items {
		liID, err := id.Parse(li.ID)
		if err != nil {
			return nil, err
		}
		items[i] = invoice.LineItem{
			ID:          liID,
			Description: li.Description,
			Amount:      types.New(li.AmountCents, li.Currency),
		}
	}

	inv := &invoice.Invoice{
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
	}
	if m.PaymentMethod != nil {
		pm := fromInstrumentModel(*m.PaymentMethod)
		inv.PaymentMethod = &pm
	}
	return inv, nil
}

// ==================== Transaction models ====================

type transactionModel struct {
	grove.BaseModel `grove:"table:crmledger_transactions"`

	ID          string          `grove:"id,pk"        bson:"_id"`
	CustomerID  string          `grove:"customer_id"  bson:"customer_id"`
	InvoiceID   string          `grove:"invoice_id"   bson:"invoice_id"`
	AmountCents int64           `grove:"amount_cents" bson:"amount_cents"`
	Currency    string          `grove:"currency"     bson:"currency"`
	Type        string          `grove:"type"         bson:"type"`
	Status      string          `grove:"status"       bson:"status"`
	Instrument  instrumentModel `grove:"instrument"   bson:"instrument"`
	Reference   string          `grove:"reference"    bson:"reference"`
	Date        time.Time       `grove:"date"         bson:"date"`
}

func toTransactionModel(t *transaction.Transaction) *transactionModel {
	return &transactionModel{
		ID:          t.ID.String(),
		CustomerID:  t.CustomerID.String(),
		InvoiceID:   t.InvoiceID.String(),
		AmountCents: t.Amount.Amount,
		Currency:    t.Amount.Currency,
		Type:        string(t.Type),
		Status:      string(t.Status),
		Instrument:  toInstrumentModel(t.Instrument),
		Reference:   t.Reference,
		Date:        t.Date.UTC(),
	}
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
	return &transaction.Transaction{
		ID:         txnID,
		CustomerID: custID,
		InvoiceID:  invID,
		Amount:     types.New(m.AmountCents, m.Currency),
		Type:       transaction.Type(m.Type),
		Status:     transaction.Status(m.Status),
		Instrument: fromInstrumentModel(m.Instrument),
		Reference:  m.Reference,
		Date:       m.Date.UTC(),
	}, nil
}

// ==================== Payment method models ====================

type paymentMethodModel struct {
	grove.BaseModel `grove:"table:crmledger_payment_methods"`

	ID         string    `grove:"id,pk"       bson:"_id"`
	CustomerID string    `grove:"customer_id" bson:"customer_id"`
	Type       string    `grove:"type"        bson:"type"`
	CardBrand  string    `grove:"card_brand"  bson:"card_brand"`
	LastFour   string    `grove:"last_four"   bson:"last_four"`
	ExpiryDate string    `grove:"expiry_date" bson:"expiry_date"`
	CreatedAt  time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"  bson:"updated_at"`
}

func toPaymentMethodModel(pm *paymentmethod.PaymentMethod) *paymentMethodModel {
	return &paymentMethodModel{
		ID:         pm.ID.String(),
		CustomerID: pm.CustomerID.String(),
		Type:       string(pm.Type),
		CardBrand:  pm.CardBrand,
		LastFour:   pm.LastFour,
		ExpiryDate: pm.ExpiryDate,
		CreatedAt:  pm.CreatedAt,
		UpdatedAt:  pm.UpdatedAt,
	}
}

// fromPaymentMethodModel converts m; defaultID is the owner's pointer.
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

	ID          string         `grove:"id,pk"       bson:"_id"`
	Number      string         `grove:"number"      bson:"number"`
	CustomerID  string         `grove:"customer_id" bson:"customer_id"`
	Subject     string         `grove:"subject"     bson:"subject"`
	Description string         `grove:"description" bson:"description"`
	Status      string         `grove:"status"      bson:"status"`
	Priority    string         `grove:"priority"    bson:"priority"`
	Category    string         `grove:"category"    bson:"category"`
	AssignedTo  string         `grove:"assigned_to" bson:"assigned_to"`
	Messages    []messageModel `grove:"messages"    bson:"messages"`
	ResolvedAt  *time.Time     `grove:"resolved_at" bson:"resolved_at"`
	CreatedAt   time.Time      `grove:"created_at"  bson:"created_at"`
	UpdatedAt   time.Time      `grove:"updated_at"  bson:"updated_at"`
}

type messageModel struct {
	Sender    string    `bson:"sender"`
	SenderID  string    `bson:"sender_id"`
	Text      string    `bson:"message"`
	Timestamp time.Time `bson:"timestamp"`
}

func toMessageModel(m ticket.Message) messageModel {
	return messageModel{
		Sender:    string(m.Sender),
		SenderID:  m.SenderID,
		Text:      m.Text,
		Timestamp: m.Timestamp.UTC(),
	}
}

func toTicketModel(t *ticket.Ticket) *ticketModel {
	msgs := make([]messageModel, len(t.Messages))
	for i, m := range t.Messages {
		msgs[i] = toMessageModel(m)
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
		Messages:    msgs,
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
	msgs := make([]ticket.Message, len(m.Messages))
	for i, mm := range m.Messages {
		msgs[i] = ticket.Message{
			Sender:    ticket.Sender(mm.Sender),
			SenderID:  mm.SenderID,
			Text:      mm.Text,
			Timestamp: mm.Timestamp.UTC(),
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

// ==================== Sequence models ====================

type sequenceModel struct {
	grove.BaseModel `grove:"table:crmledger_sequences"`

	Scope     string    `grove:"scope,pk"   bson:"_id"`
	Value     int64     `grove:"value"      bson:"value"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

// ==================== Audit models ====================

type auditModel struct {
	grove.BaseModel `grove:"table:crmledger_audit"`

	ID           string         `grove:"id,pk"         bson:"_id"`
	ActorUserID  string         `grove:"actor_user_id" bson:"actor_user_id"`
	ActorIP      string         `grove:"actor_ip"      bson:"actor_ip"`
	Action       string         `grove:"action"        bson:"action"`
	ResourceType string         `grove:"resource_type" bson:"resource_type"`
	ResourceID   string         `grove:"resource_id"   bson:"resource_id"`
	Details      map[string]any `grove:"details"       bson:"details,omitempty"`
	Severity     string         `grove:"severity"      bson:"severity"`
	Timestamp    time.Time      `grove:"timestamp"     bson:"timestamp"`
}

func toAuditModel(e *audit.Entry) *auditModel {
	return &auditModel{
		ID:           e.ID.String(),
		ActorUserID:  e.Actor.UserID,
		ActorIP:      e.Actor.IPAddress,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Details:      e.Details,
		Severity:     string(e.Severity),
		Timestamp:    e.Timestamp.UTC(),
	}
}

func fromAuditModel(m *auditModel) (*audit.Entry, error) {
	audID, err := id.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	return &audit.Entry{
		ID:           audID,
		Actor:        audit.Actor{UserID: m.ActorUserID, IPAddress: m.ActorIP},
		Action:       m.Action,
		ResourceType: m.ResourceType,
		ResourceID:   m.ResourceID,
		Details:      m.Details,
		Severity:     audit.Severity(m.Severity),
		Timestamp:    m.Timestamp.UTC(),
	}, nil
}

// ==================== Network models ====================

type networkStatusModel struct {
	grove.BaseModel `grove:"table:crmledger_network_status"`

	ID            string    `grove:"id,pk"          bson:"_id"`
	ServiceType   string    `grove:"service_type"   bson:"service_type"`
	Region        string    `grove:"region"         bson:"region"`
	Status        string    `grove:"status"         bson:"status"`
	Details       string    `grove:"details"        bson:"details"`
	AffectedUsers int64     `grove:"affected_users" bson:"affected_users"`
	LastUpdated   time.Time `grove:"last_updated"   bson:"last_updated"`
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

	Category  string    `grove:"category,pk" bson:"_id"`
	Data      string    `grove:"data"        bson:"data"`
	UpdatedBy string    `grove:"updated_by"  bson:"updated_by"`
	UpdatedAt time.Time `grove:"updated_at"  bson:"updated_at"`
}

func fromSettingsModel(m *settingsModel) *settings.Record {
	return &settings.Record{
		Category:  settings.Category(m.Category),
		Data:      []byte(m.Data),
		UpdatedBy: m.UpdatedBy,
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the crmledger store.
var Migrations = migrate.NewGroup("crmledger")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_crmledger_customers",
			Version: "20260301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS crmledger_customers (
    id                        TEXT PRIMARY KEY,
    first_name                TEXT NOT NULL DEFAULT '',
    last_name                 TEXT NOT NULL DEFAULT '',
    email                     TEXT NOT NULL DEFAULT '',
    phone_number              TEXT NOT NULL DEFAULT '',
    user_id                   TEXT NOT NULL DEFAULT '',
    address                   JSONB,
    current_subscription_id   TEXT NOT NULL DEFAULT '',
    current_plan_id           TEXT NOT NULL DEFAULT '',
    current_start             TIMESTAMPTZ,
    current_end               TIMESTAMPTZ,
    current_auto_renew        BOOLEAN NOT NULL DEFAULT FALSE,
    balance_amount            BIGINT NOT NULL DEFAULT 0,
    balance_currency          TEXT NOT NULL DEFAULT '',
    status                    TEXT NOT NULL DEFAULT 'active',
    default_payment_method_id TEXT NOT NULL DEFAULT '',
    created_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at                TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_crmledger_customers_created ON crmledger_customers (created_at);
CREATE INDEX IF NOT EXISTS idx_crmledger_customers_current_sub ON crmledger_customers (current_subscription_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS crmledger_customers`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_crmledger_plans",
			Version: "20260301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS crmledger_plans (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL DEFAULT '',
    description    TEXT NOT NULL DEFAULT '',
    price_amount   BIGINT NOT NULL DEFAULT 0,
    price_currency TEXT NOT NULL DEFAULT '',
    billing_cycle  TEXT NOT NULL DEFAULT 'monthly',
    features       JSONB NOT NULL DEFAULT '{}',
    status         TEXT NOT NULL DEFAULT 'active',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_crmledger_plans_status ON crmledger_plans (status, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS crmledger_plans`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_crmledger_subscriptions",
			Version: "20260301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS crmledger_subscriptions (
    id            TEXT PRIMARY KEY,
    customer_id   TEXT NOT NULL REFERENCES crmledger_customers (id),
    plan_id       TEXT NOT NULL REFERENCES crmledger_plans (id),
    status        TEXT NOT NULL DEFAULT 'pending',
    start_date    TIMESTAMPTZ NOT NULL,
    end_date      TIMESTAMPTZ NOT NULL,
    auto_renew    BOOLEAN NOT NULL DEFAULT FALSE,
    activated_at  TIMESTAMPTZ,
    canceled_at   TIMESTAMPTZ,
    expired_at    TIMESTAMPTZ,
    cancel_reason TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_crmledger_subs_customer ON crmledger_subscriptions (customer_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_crmledger_subs_activation ON crmledger_subscriptions (status, start_date);
CREATE INDEX IF NOT EXISTS idx_crmledger_subs_expiry ON crmledger_subscriptions (status, auto_renew, end_date);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS crmledger_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_crmledger_invoices",
			Version: "20260301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS crmledger_invoices (
    id              TEXT PRIMARY KEY,
    number          TEXT NOT NULL UNIQUE,
    customer_id     TEXT NOT NULL REFERENCES crmledger_customers (id),
    subscription_id TEXT NOT NULL DEFAULT '',
    amount_cents    BIGINT NOT NULL DEFAULT 0,
    currency        TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'unpaid',
    issue_date      TIMESTAMPTZ NOT NULL,
    due_date        TIMESTAMPTZ NOT NULL,
    paid_date       TIMESTAMPTZ,
    canceled_at     TIMESTAMPTZ,
    items           JSONB NOT NULL DEFAULT '[]',
    payment_method  JSONB,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_crmledger_invoices_customer ON crmledger_invoices (customer_id, issue_date DESC);
CREATE INDEX IF NOT EXISTS idx_crmledger_invoices_payable ON crmledger_invoices (customer_id, status, due_date);
CREATE INDEX IF NOT EXISTS idx_crmledger_invoices_overdue ON crmledger_invoices (status, due_date);
CREATE INDEX IF NOT EXISTS idx_crmledger_invoices_revenue ON crmledger_invoices (status, currency, paid_date);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS crmledger_invoices`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_crmledger_transactions",
			Version: "20260301000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS crmledger_transactions (
    id           TEXT PRIMARY KEY,
    customer_id  TEXT NOT NULL REFERENCES crmledger_customers (id),
    invoice_id   TEXT NOT NULL DEFAULT '',
    amount_cents BIGINT NOT NULL DEFAULT 0,
    currency     TEXT NOT NULL DEFAULT '',
    type         TEXT NOT NULL,
    status       TEXT NOT NULL,
    instrument   JSONB NOT NULL DEFAULT '{}',
    reference    TEXT NOT NULL DEFAULT '',
    date         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_crmledger_txns_customer ON crmledger_transactions (customer_id, date DESC);
CREATE INDEX IF NOT EXISTS idx_crmledger_txns_invoice ON crmledger_transactions (invoice_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS crmledger_transactions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_crmledger_payment_methods",
			Version: "20260301000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS crmledger_payment_methods (
    id          TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL REFERENCES crmledger_customers (id),
    type        TEXT NOT NULL,
    card_brand  TEXT NOT NULL DEFAULT '',
    last_four   TEXT NOT NULL DEFAULT '',
    expiry_date TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_crmledger_pms_customer ON crmledger_payment_methods (customer_id, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS crmledger_payment_methods`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_crmledger_tickets",
			Version: "20260301000007",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS crmledger_tickets (
    id          TEXT PRIMARY KEY,
    number      TEXT NOT NULL UNIQUE,
    customer_id TEXT NOT NULL REFERENCES crmledger_customers (id),
    subject     TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'open',
    priority    TEXT NOT NULL DEFAULT 'medium',
    category    TEXT NOT NULL DEFAULT '',
    assigned_to TEXT NOT NULL DEFAULT '',
    messages    JSONB NOT NULL DEFAULT '[]',
    resolved_at TIMESTAMPTZ,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_crmledger_tickets_resolved ON crmledger_tickets (customer_id, resolved_at DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS crmledger_tickets`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_crmledger_sequences",
			Version: "20260301000008",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS crmledger_sequences (
    scope      TEXT PRIMARY KEY,
    value      BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS crmledger_sequences`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_crmledger_audit",
			Version: "20260301000009",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS crmledger_audit (
    id            TEXT PRIMARY KEY,
    actor_user_id TEXT NOT NULL DEFAULT '',
    actor_ip      TEXT NOT NULL DEFAULT '',
    action        TEXT NOT NULL,
    resource_type TEXT NOT NULL DEFAULT '',
    resource_id   TEXT NOT NULL DEFAULT '',
    details       JSONB NOT NULL DEFAULT '{}',
    severity      TEXT NOT NULL DEFAULT 'low',
    timestamp     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_crmledger_audit_time ON crmledger_audit (timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_crmledger_audit_severity ON crmledger_audit (severity, timestamp);
CREATE INDEX IF NOT EXISTS idx_crmledger_audit_resource ON crmledger_audit (resource_type, resource_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS crmledger_audit`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_crmledger_network_status",
			Version: "20260301000010",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS crmledger_network_status (
    id             TEXT PRIMARY KEY,
    service_type   TEXT NOT NULL,
    region         TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'operational',
    details        TEXT NOT NULL DEFAULT '',
    affected_users BIGINT NOT NULL DEFAULT 0,
    last_updated   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (service_type, region)
);

CREATE INDEX IF NOT EXISTS idx_crmledger_network_status ON crmledger_network_status (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS crmledger_network_status`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_crmledger_settings",
			Version: "20260301000011",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS crmledger_settings (
    category   TEXT PRIMARY KEY,
    data       JSONB NOT NULL DEFAULT '{}',
    updated_by TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS crmledger_settings`)
				return err
			},
		},
	)
}

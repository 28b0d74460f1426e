package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the crmledger store (SQLite).
//
// Timestamps are INTEGER unix milliseconds. Statements that must change
// several rows at once rely on triggers: a trigger body runs inside the
// statement that fired it, and RAISE(ABORT) rolls the whole statement
// back. Trigger errors carry a "crmledger:<reason>" marker.
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
    address                   TEXT NOT NULL DEFAULT '',
    current_subscription_id   TEXT NOT NULL DEFAULT '',
    current_plan_id           TEXT NOT NULL DEFAULT '',
    current_start             INTEGER,
    current_end               INTEGER,
    current_auto_renew        INTEGER NOT NULL DEFAULT 0,
    balance_amount            INTEGER NOT NULL DEFAULT 0,
    balance_currency          TEXT NOT NULL DEFAULT '',
    status                    TEXT NOT NULL DEFAULT 'active',
    default_payment_method_id TEXT NOT NULL DEFAULT '',
    created_at                INTEGER NOT NULL,
    updated_at                INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_crmledger_customers_created ON crmledger_customers (created_at);
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
    price_amount   INTEGER NOT NULL DEFAULT 0,
    price_currency TEXT NOT NULL DEFAULT '',
    billing_cycle  TEXT NOT NULL DEFAULT 'monthly',
    features       TEXT NOT NULL DEFAULT '{}',
    status         TEXT NOT NULL DEFAULT 'active',
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_crmledger_plans_status ON crmledger_plans (status);
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
    start_date    INTEGER NOT NULL,
    end_date      INTEGER NOT NULL,
    auto_renew    INTEGER NOT NULL DEFAULT 0,
    activated_at  INTEGER,
    canceled_at   INTEGER,
    expired_at    INTEGER,
    cancel_reason TEXT NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_crmledger_subscriptions_customer ON crmledger_subscriptions (customer_id, created_at);
CREATE INDEX IF NOT EXISTS idx_crmledger_subscriptions_start ON crmledger_subscriptions (status, start_date);
CREATE INDEX IF NOT EXISTS idx_crmledger_subscriptions_end ON crmledger_subscriptions (status, end_date);
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
    id                   TEXT PRIMARY KEY,
    number               TEXT NOT NULL UNIQUE,
    customer_id          TEXT NOT NULL REFERENCES crmledger_customers (id),
    subscription_id      TEXT NOT NULL DEFAULT '',
    amount_cents         INTEGER NOT NULL DEFAULT 0,
    currency             TEXT NOT NULL DEFAULT '',
    status               TEXT NOT NULL DEFAULT 'unpaid',
    issue_date           INTEGER NOT NULL,
    due_date             INTEGER NOT NULL,
    paid_date            INTEGER,
    canceled_at          INTEGER,
    items                TEXT NOT NULL DEFAULT '[]',
    payment_method       TEXT NOT NULL DEFAULT '',
    created_at           INTEGER NOT NULL,
    updated_at           INTEGER NOT NULL,
    renewal_previous_end INTEGER,
    renewal_new_end      INTEGER
);

CREATE INDEX IF NOT EXISTS idx_crmledger_invoices_customer ON crmledger_invoices (customer_id, issue_date);
CREATE INDEX IF NOT EXISTS idx_crmledger_invoices_due ON crmledger_invoices (status, due_date);
CREATE INDEX IF NOT EXISTS idx_crmledger_invoices_paid ON crmledger_invoices (status, currency, paid_date);

CREATE TRIGGER IF NOT EXISTS crmledger_invoices_renewal_guard
BEFORE INSERT ON crmledger_invoices
WHEN NEW.renewal_new_end IS NOT NULL
BEGIN
    SELECT RAISE(ABORT, 'crmledger:subscription_not_found')
    WHERE NOT EXISTS (SELECT 1 FROM crmledger_subscriptions WHERE id = NEW.subscription_id);
    SELECT RAISE(ABORT, 'crmledger:invalid_transition')
    WHERE EXISTS (SELECT 1 FROM crmledger_subscriptions WHERE id = NEW.subscription_id AND status <> 'active');
    SELECT RAISE(ABORT, 'crmledger:concurrency_conflict')
    WHERE EXISTS (
        SELECT 1 FROM crmledger_subscriptions
        WHERE id = NEW.subscription_id AND end_date <> NEW.renewal_previous_end
    );
END;

CREATE TRIGGER IF NOT EXISTS crmledger_invoices_renewal_apply
AFTER INSERT ON crmledger_invoices
WHEN NEW.renewal_new_end IS NOT NULL
BEGIN
    UPDATE crmledger_subscriptions
    SET end_date = NEW.renewal_new_end, updated_at = NEW.created_at
    WHERE id = NEW.subscription_id;
    UPDATE crmledger_customers
    SET current_end = NEW.renewal_new_end, updated_at = NEW.created_at
    WHERE id = NEW.customer_id AND current_subscription_id = NEW.subscription_id;
END;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TRIGGER IF EXISTS crmledger_invoices_renewal_apply;
DROP TRIGGER IF EXISTS crmledger_invoices_renewal_guard;
DROP TABLE IF EXISTS crmledger_invoices;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_crmledger_transactions",
			Version: "20260301000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS crmledger_transactions (
    id             TEXT PRIMARY KEY,
    customer_id    TEXT NOT NULL,
    invoice_id     TEXT NOT NULL DEFAULT '',
    amount_cents   INTEGER NOT NULL DEFAULT 0,
    currency       TEXT NOT NULL DEFAULT '',
    type           TEXT NOT NULL,
    status         TEXT NOT NULL,
    instrument     TEXT NOT NULL DEFAULT '{}',
    reference      TEXT NOT NULL DEFAULT '',
    date           INTEGER NOT NULL,
    settle_invoice INTEGER NOT NULL DEFAULT 0,
    paid_at        INTEGER,
    balance_delta  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_crmledger_transactions_customer ON crmledger_transactions (customer_id, date);

CREATE TRIGGER IF NOT EXISTS crmledger_transactions_guard
BEFORE INSERT ON crmledger_transactions
BEGIN
    SELECT RAISE(ABORT, 'crmledger:customer_not_found')
    WHERE NOT EXISTS (SELECT 1 FROM crmledger_customers WHERE id = NEW.customer_id);
    SELECT RAISE(ABORT, 'crmledger:invoice_not_found')
    WHERE NEW.settle_invoice
      AND NOT EXISTS (SELECT 1 FROM crmledger_invoices WHERE id = NEW.invoice_id);
    SELECT RAISE(ABORT, 'crmledger:invoice_not_payable')
    WHERE NEW.settle_invoice
      AND NOT EXISTS (
          SELECT 1 FROM crmledger_invoices
          WHERE id = NEW.invoice_id AND status IN ('unpaid', 'overdue')
      );
END;

CREATE TRIGGER IF NOT EXISTS crmledger_transactions_apply
AFTER INSERT ON crmledger_transactions
BEGIN
    UPDATE crmledger_invoices
    SET status = 'paid', paid_date = NEW.paid_at, updated_at = NEW.date
    WHERE NEW.settle_invoice AND id = NEW.invoice_id;
    UPDATE crmledger_customers
    SET balance_amount = balance_amount + NEW.balance_delta, updated_at = NEW.date
    WHERE NEW.balance_delta <> 0 AND id = NEW.customer_id;
END;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TRIGGER IF EXISTS crmledger_transactions_apply;
DROP TRIGGER IF EXISTS crmledger_transactions_guard;
DROP TABLE IF EXISTS crmledger_transactions;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_crmledger_payment_methods",
			Version: "20260301000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS crmledger_payment_methods (
    id              TEXT PRIMARY KEY,
    customer_id     TEXT NOT NULL,
    type            TEXT NOT NULL,
    card_brand      TEXT NOT NULL DEFAULT '',
    last_four       TEXT NOT NULL DEFAULT '',
    expiry_date     TEXT NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL,
    claimed_default INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_crmledger_payment_methods_customer ON crmledger_payment_methods (customer_id, created_at);

CREATE TRIGGER IF NOT EXISTS crmledger_payment_methods_guard
BEFORE INSERT ON crmledger_payment_methods
BEGIN
    SELECT RAISE(ABORT, 'crmledger:customer_not_found')
    WHERE NOT EXISTS (SELECT 1 FROM crmledger_customers WHERE id = NEW.customer_id);
END;

CREATE TRIGGER IF NOT EXISTS crmledger_payment_methods_claim
AFTER INSERT ON crmledger_payment_methods
WHEN NEW.claimed_default
BEGIN
    UPDATE crmledger_customers
    SET default_payment_method_id = NEW.id, updated_at = NEW.created_at
    WHERE id = NEW.customer_id;
END;

CREATE TRIGGER IF NOT EXISTS crmledger_payment_methods_release
AFTER DELETE ON crmledger_payment_methods
BEGIN
    UPDATE crmledger_customers
    SET default_payment_method_id = '', updated_at = OLD.updated_at
    WHERE id = OLD.customer_id AND default_payment_method_id = OLD.id;
END;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TRIGGER IF EXISTS crmledger_payment_methods_release;
DROP TRIGGER IF EXISTS crmledger_payment_methods_claim;
DROP TRIGGER IF EXISTS crmledger_payment_methods_guard;
DROP TABLE IF EXISTS crmledger_payment_methods;
`)
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
    messages    TEXT NOT NULL DEFAULT '[]',
    resolved_at INTEGER,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_crmledger_tickets_resolved ON crmledger_tickets (customer_id, resolved_at);
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
    value      INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
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
    details       TEXT NOT NULL DEFAULT '{}',
    severity      TEXT NOT NULL DEFAULT 'low',
    timestamp     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_crmledger_audit_timestamp ON crmledger_audit (timestamp);
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
    status         TEXT NOT NULL,
    details        TEXT NOT NULL DEFAULT '',
    affected_users INTEGER NOT NULL DEFAULT 0,
    last_updated   INTEGER NOT NULL,
    UNIQUE (service_type, region)
);
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
    data       TEXT NOT NULL DEFAULT '{}',
    updated_by TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL
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

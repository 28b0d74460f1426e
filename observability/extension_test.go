package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crmledger/customer"
	"github.com/xraph/crmledger/invoice"
	"github.com/xraph/crmledger/network"
	"github.com/xraph/crmledger/plugin"
	"github.com/xraph/crmledger/ticket"
	"github.com/xraph/crmledger/transaction"
	"github.com/xraph/crmledger/types"
)

func counterValue(t *testing.T, c Counter) float64 {
	t.Helper()
	pc, ok := c.(prometheus.Counter)
	require.True(t, ok)
	return testutil.ToFloat64(pc)
}

func TestCustomerAndInvoiceCounters(t *testing.T) {
	ctx := context.Background()
	m := NewMetricsExtension(NewPrometheusFactory(prometheus.NewRegistry(), nil))

	require.NoError(t, m.OnCustomerCreated(ctx, &customer.Customer{}))
	require.NoError(t, m.OnCustomerCreated(ctx, &customer.Customer{}))
	require.NoError(t, m.OnInvoiceIssued(ctx, &invoice.Invoice{Amount: types.USD(2500)}))
	require.NoError(t, m.OnInvoicesOverdue(ctx, 4))

	assert.Equal(t, 2.0, counterValue(t, m.CustomerCreated))
	assert.Equal(t, 1.0, counterValue(t, m.InvoiceIssued))
	assert.Equal(t, 4.0, counterValue(t, m.InvoiceOverdue))
}

func TestTransactionCountersByTypeAndStatus(t *testing.T) {
	ctx := context.Background()
	m := NewMetricsExtension(NewPrometheusFactory(prometheus.NewRegistry(), nil))

	for _, txn := range []*transaction.Transaction{
		{Type: transaction.TypePayment, Status: transaction.StatusCompleted},
		{Type: transaction.TypePayment, Status: transaction.StatusFailed},
		{Type: transaction.TypePayment, Status: transaction.StatusPending},
		{Type: transaction.TypeRefund, Status: transaction.StatusCompleted},
		{Type: transaction.TypeTopup, Status: transaction.StatusCompleted},
	} {
		require.NoError(t, m.OnTransactionRecorded(ctx, txn))
	}

	assert.Equal(t, 1.0, counterValue(t, m.PaymentsCompleted))
	assert.Equal(t, 1.0, counterValue(t, m.PaymentsFailed))
	assert.Equal(t, 1.0, counterValue(t, m.Refunds))
	assert.Equal(t, 1.0, counterValue(t, m.Topups))
}

func TestTicketResolvedCountsTransitionsOnly(t *testing.T) {
	ctx := context.Background()
	m := NewMetricsExtension(NewPrometheusFactory(prometheus.NewRegistry(), nil))

	resolved := &ticket.Ticket{Status: ticket.StatusResolved}
	require.NoError(t, m.OnTicketStatusChanged(ctx, resolved, ticket.StatusInProgress))
	require.NoError(t, m.OnTicketStatusChanged(ctx, resolved, ticket.StatusResolved))
	require.NoError(t, m.OnTicketStatusChanged(ctx, &ticket.Ticket{Status: ticket.StatusInProgress}, ticket.StatusOpen))

	assert.Equal(t, 1.0, counterValue(t, m.TicketResolved))
}

func TestNetworkIncidentsIgnoreOperational(t *testing.T) {
	ctx := context.Background()
	m := NewMetricsExtension(NewPrometheusFactory(prometheus.NewRegistry(), nil))

	require.NoError(t, m.OnNetworkStatusChanged(ctx, &network.Status{Status: network.ConditionOperational}))
	require.NoError(t, m.OnNetworkStatusChanged(ctx, &network.Status{Status: network.ConditionDegraded}))
	require.NoError(t, m.OnNetworkStatusChanged(ctx, &network.Status{Status: network.ConditionOutage}))

	assert.Equal(t, 2.0, counterValue(t, m.NetworkIncidents))
}

func TestSweepMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsExtension(NewPrometheusFactory(reg, nil))

	require.NoError(t, m.OnSweepCompleted(context.Background(), plugin.SweepReport{Elapsed: 12 * time.Millisecond}))
	assert.Equal(t, 1.0, counterValue(t, m.SweepRuns))

	n, err := testutil.GatherAndCount(reg, "crmledger_sweep_latency_ms")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFactoriesShareRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewMetricsExtension(NewPrometheusFactory(reg, nil))
	second := NewMetricsExtension(NewPrometheusFactory(reg, nil))

	require.NoError(t, first.OnCustomerCreated(context.Background(), &customer.Customer{}))
	require.NoError(t, second.OnCustomerCreated(context.Background(), &customer.Customer{}))

	assert.Same(t, first.CustomerCreated, second.CustomerCreated)
	assert.Equal(t, 2.0, counterValue(t, second.CustomerCreated))

	n, err := testutil.GatherAndCount(reg, "crmledger_customer_created_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetricName(t *testing.T) {
	assert.Equal(t, "crmledger_payment_method_default_changed", metricName("crmledger.payment_method.default_changed"))
	assert.Equal(t, "observability_metrics", metricName("observability-metrics"))
}

package transaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/types"
)

func TestEffectOf(t *testing.T) {
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	inv := id.NewInvoiceID()

	tests := []struct {
		name string
		txn  Transaction
		want Effect
	}{
		{
			name: "completed payment settles invoice",
			txn:  Transaction{Type: TypePayment, Status: StatusCompleted, Amount: types.USD(5000), InvoiceID: inv},
			want: Effect{SettleInvoice: true, PaidAt: at, BalanceDelta: -5000},
		},
		{
			name: "completed payment without invoice",
			txn:  Transaction{Type: TypePayment, Status: StatusCompleted, Amount: types.USD(1200)},
			want: Effect{BalanceDelta: -1200},
		},
		{
			name: "refund raises balance and never settles",
			txn:  Transaction{Type: TypeRefund, Status: StatusCompleted, Amount: types.USD(700), InvoiceID: inv},
			want: Effect{BalanceDelta: 700},
		},
		{
			name: "topup credits",
			txn:  Transaction{Type: TypeTopup, Status: StatusCompleted, Amount: types.USD(2000)},
			want: Effect{BalanceDelta: -2000},
		},
		{
			name: "pending payment has no effect",
			txn:  Transaction{Type: TypePayment, Status: StatusPending, Amount: types.USD(5000), InvoiceID: inv},
			want: Effect{},
		},
		{
			name: "failed payment has no effect",
			txn:  Transaction{Type: TypePayment, Status: StatusFailed, Amount: types.USD(5000), InvoiceID: inv},
			want: Effect{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectOf(&tt.txn, at))
		})
	}
}

package reports

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/models"
	"github.com/shopspring/decimal"
)

func day(n int) time.Time {
	return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n-1)
}

func balanceFixture() (*models.Contract, []models.ContractTransaction) {
	contract := &models.Contract{
		ID:             3,
		PartnerName:    "Shwe Taung Transport",
		ContractNumber: "CT-2026-003",
		OpeningBalance: d("100000"),
	}
	txns := []models.ContractTransaction{
		{ContractId: 3, TransactionDate: day(1), SoldAmount: d("50000")},
		{ContractId: 3, TransactionDate: day(2), PaidAmount: d("30000")},
		{ContractId: 3, TransactionDate: day(4), SoldAmount: d("20000")},
		{ContractId: 3, TransactionDate: day(5), SoldAmount: d("10000"), PaidAmount: d("60000")},
		{ContractId: 3, TransactionDate: day(8), PaidAmount: d("15000")},
	}
	return contract, txns
}

func TestComputePartnerBalanceWindow(t *testing.T) {
	contract, txns := balanceFixture()

	view := ComputePartnerBalance(contract, txns, day(4), day(5))
	// opening 100000 + (50000 - 30000) before the window
	if !view.BalanceAtPeriodStart.Equal(d("120000")) {
		t.Fatalf("expected balance at period start 120000, got %s", view.BalanceAtPeriodStart)
	}
	if !view.SoldInPeriod.Equal(d("30000")) {
		t.Fatalf("expected sold in period 30000, got %s", view.SoldInPeriod)
	}
	if !view.PaidInPeriod.Equal(d("60000")) {
		t.Fatalf("expected paid in period 60000, got %s", view.PaidInPeriod)
	}
	if !view.MovementInPeriod.Equal(d("-30000")) {
		t.Fatalf("expected movement -30000, got %s", view.MovementInPeriod)
	}
	if !view.ClosingBalance.Equal(d("90000")) {
		t.Fatalf("expected closing balance 90000, got %s", view.ClosingBalance)
	}
	if len(view.Transactions) != 2 {
		t.Fatalf("expected 2 transactions in window, got %d", len(view.Transactions))
	}
	// the day-8 payment is outside the window and must not leak in
	for _, txn := range view.Transactions {
		if txn.TransactionDate.After(day(5)) {
			t.Fatalf("transaction after window end included: %s", txn.TransactionDate)
		}
	}
}

// balance(d2) = balance(d1) + movement over (d1, d2] for any split point.
func TestPartnerBalanceAdditivity(t *testing.T) {
	contract, txns := balanceFixture()

	full := ComputePartnerBalance(contract, txns, day(1), day(8))
	for split := 1; split < 8; split++ {
		left := ComputePartnerBalance(contract, txns, day(1), day(split))
		right := ComputePartnerBalance(contract, txns, day(split+1), day(8))
		if !right.BalanceAtPeriodStart.Equal(left.ClosingBalance) {
			t.Fatalf("split at day %d: right start %s != left closing %s",
				split, right.BalanceAtPeriodStart, left.ClosingBalance)
		}
		if !right.ClosingBalance.Equal(full.ClosingBalance) {
			t.Fatalf("split at day %d: closing %s != full closing %s",
				split, right.ClosingBalance, full.ClosingBalance)
		}
	}
}

func TestPartnerBalanceEmptyWindow(t *testing.T) {
	contract, txns := balanceFixture()
	view := ComputePartnerBalance(contract, txns, day(20), day(25))
	if !view.MovementInPeriod.Equal(decimal.Zero) {
		t.Fatalf("expected zero movement, got %s", view.MovementInPeriod)
	}
	// everything folds into the period-start balance
	if !view.BalanceAtPeriodStart.Equal(view.ClosingBalance) {
		t.Fatalf("expected start == closing for empty window")
	}
	if !view.ClosingBalance.Equal(d("75000")) {
		t.Fatalf("expected closing 75000, got %s", view.ClosingBalance)
	}
}

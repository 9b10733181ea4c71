package reports

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/models"
	"github.com/shopspring/decimal"
)

type PartnerBalanceResponse struct {
	ContractId     int    `json:"contract_id"`
	PartnerName    string `json:"partner_name"`
	ContractNumber string `json:"contract_number"`

	// OpeningBalance is the balance carried on the contract itself, dated
	// before any recorded transaction.
	OpeningBalance decimal.Decimal `json:"opening_balance"`

	// BalanceAtPeriodStart folds the opening balance with every movement
	// strictly before fromDate.
	BalanceAtPeriodStart decimal.Decimal `json:"balance_at_period_start"`

	SoldInPeriod     decimal.Decimal `json:"sold_in_period"`
	PaidInPeriod     decimal.Decimal `json:"paid_in_period"`
	MovementInPeriod decimal.Decimal `json:"movement_in_period"`
	ClosingBalance   decimal.Decimal `json:"closing_balance"`

	Transactions []models.ContractTransaction `json:"transactions"`
}

// ComputePartnerBalance partitions a contract's transaction history around
// the [fromDate, toDate] window. Balances grow with sales and shrink with
// payments; a positive balance is owed by the partner. Pure over its
// inputs, so the running balance is always reproducible from the
// append-only transaction rows plus the contract's opening figure.
func ComputePartnerBalance(contract *models.Contract, txns []models.ContractTransaction, fromDate, toDate time.Time) *PartnerBalanceResponse {
	resp := &PartnerBalanceResponse{
		ContractId:     contract.ID,
		PartnerName:    contract.PartnerName,
		ContractNumber: contract.ContractNumber,
		OpeningBalance: contract.OpeningBalance,
		Transactions:   []models.ContractTransaction{},
	}

	balance := contract.OpeningBalance
	for _, txn := range txns {
		movement := txn.SoldAmount.Sub(txn.PaidAmount)
		if txn.TransactionDate.Before(fromDate) {
			balance = balance.Add(movement)
			continue
		}
		if txn.TransactionDate.After(toDate) {
			continue
		}
		resp.SoldInPeriod = resp.SoldInPeriod.Add(txn.SoldAmount)
		resp.PaidInPeriod = resp.PaidInPeriod.Add(txn.PaidAmount)
		resp.Transactions = append(resp.Transactions, txn)
	}

	resp.BalanceAtPeriodStart = balance
	resp.MovementInPeriod = resp.SoldInPeriod.Sub(resp.PaidInPeriod)
	resp.ClosingBalance = resp.BalanceAtPeriodStart.Add(resp.MovementInPeriod)
	return resp
}

// GetPartnerRunningBalance reads the contract and its full transaction
// history up to toDate and computes the windowed balance view.
func GetPartnerRunningBalance(ctx context.Context, contractId int, fromDate, toDate time.Time) (*PartnerBalanceResponse, error) {
	contract, err := models.GetContract(ctx, contractId)
	if err != nil {
		return nil, err
	}
	// transaction rows carry station-day instants, so the window must too
	fromDate, err = models.StationDay(ctx, contract.StationId, fromDate)
	if err != nil {
		return nil, err
	}
	toDate, err = models.StationDay(ctx, contract.StationId, toDate)
	if err != nil {
		return nil, err
	}
	txns, err := models.GetContractTransactions(ctx, contractId, toDate)
	if err != nil {
		return nil, err
	}
	return ComputePartnerBalance(contract, txns, fromDate, toDate), nil
}

package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/config"
	"bitbucket.org/mmdatafocus/stationops_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Contract is a partner gas contract, owned by the contract registry. The
// ledger reads prices and appends sale/payment transactions; it never edits
// the contract itself.
type Contract struct {
	ID                 int                   `gorm:"primary_key" json:"id"`
	StationId          int                   `gorm:"index;not null" json:"station_id" binding:"required"`
	PartnerName        string                `gorm:"size:255;not null" json:"partner_name" binding:"required"`
	ContractNumber     string                `gorm:"size:100;not null" json:"contract_number" binding:"required"`
	Phone              string                `gorm:"size:20" json:"phone"`
	OpeningBalance     decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"opening_balance"`
	OpeningBalanceDate time.Time             `gorm:"not null" json:"opening_balance_date" binding:"required"`
	IsActive           *bool                 `gorm:"not null" json:"is_active"`
	Prices             []ContractPrice       `gorm:"foreignKey:ContractId" json:"prices"`
	Transactions       []ContractTransaction `gorm:"foreignKey:ContractId" json:"transactions"`
	CreatedAt          time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

// ContractPrice is one entry of the price-per-unit history. The price active
// on a date is the latest entry effective on or before it.
type ContractPrice struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ContractId    int             `gorm:"index;not null" json:"contract_id" binding:"required"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price" binding:"required"`
	EffectiveFrom time.Time       `gorm:"not null" json:"effective_from" binding:"required"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// ContractTransaction is one append-only partner-ledger entry: gas sold to
// the partner on a date and/or a payment received from the partner.
type ContractTransaction struct {
	ID              int             `gorm:"primary_key" json:"id"`
	ContractId      int             `gorm:"index;not null" json:"contract_id" binding:"required"`
	TransactionDate time.Time       `gorm:"index;not null" json:"transaction_date" binding:"required"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	SoldAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sold_amount"`
	PaidAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"paid_amount"`
	ReceiptNumber   string          `gorm:"size:100" json:"receipt_number"`
	ReferenceType   string          `gorm:"size:50" json:"reference_type"`
	ReferenceId     int             `json:"reference_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewContract struct {
	StationId          int             `json:"station_id" binding:"required"`
	PartnerName        string          `json:"partner_name" binding:"required"`
	ContractNumber     string          `json:"contract_number" binding:"required"`
	Phone              string          `json:"phone"`
	OpeningBalance     decimal.Decimal `json:"opening_balance"`
	OpeningBalanceDate time.Time       `json:"opening_balance_date" binding:"required"`
	UnitPrice          decimal.Decimal `json:"unit_price" binding:"required"`
	IsActive           *bool           `json:"is_active"`
}

type NewContractPrice struct {
	UnitPrice     decimal.Decimal `json:"unit_price" binding:"required"`
	EffectiveFrom time.Time       `json:"effective_from" binding:"required"`
}

type NewPartnerPayment struct {
	TransactionDate time.Time       `json:"transaction_date" binding:"required"`
	PaidAmount      decimal.Decimal `json:"paid_amount" binding:"required"`
	ReceiptNumber   string          `json:"receipt_number"`
}

func (c *Contract) GetId() int {
	return c.ID
}

// PriceOn returns the unit price active on date. Prices must be preloaded.
func (c *Contract) PriceOn(date time.Time) (decimal.Decimal, error) {
	var best *ContractPrice
	for i := range c.Prices {
		p := &c.Prices[i]
		if p.EffectiveFrom.After(date) {
			continue
		}
		if best == nil || p.EffectiveFrom.After(best.EffectiveFrom) {
			best = p
		}
	}
	if best == nil {
		return decimal.Zero, errors.New("contract has no price effective on the report date")
	}
	return best.UnitPrice, nil
}

// validate input for both create & update. (id = 0 for create)

func (input *NewContract) validate(ctx context.Context, id int) error {
	if err := utils.ValidateResourceId[Station](ctx, input.StationId); err != nil {
		return errors.New("station not found")
	}
	if err := utils.ValidateUnique[Contract](ctx, "contract_number", input.ContractNumber, id); err != nil {
		return err
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return errors.New("partner phone number is not valid")
		}
	}
	if input.UnitPrice.IsNegative() {
		return errors.New("unit price must not be negative")
	}
	return nil
}

func CreateContract(ctx context.Context, input *NewContract) (*Contract, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	contract := Contract{
		StationId:          input.StationId,
		PartnerName:        input.PartnerName,
		ContractNumber:     input.ContractNumber,
		Phone:              input.Phone,
		OpeningBalance:     input.OpeningBalance,
		OpeningBalanceDate: input.OpeningBalanceDate,
		IsActive:           input.IsActive,
		Prices: []ContractPrice{{
			UnitPrice:     input.UnitPrice,
			EffectiveFrom: input.OpeningBalanceDate,
		}},
	}
	if contract.IsActive == nil {
		contract.IsActive = utils.NewTrue()
	}

	db := config.GetDB()
	// db action
	err := db.WithContext(ctx).Create(&contract).Error
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

// AddContractPrice appends a price-history entry. History is append-only:
// entries are never edited, a correction is a new entry.
func AddContractPrice(ctx context.Context, contractId int, input *NewContractPrice) (*ContractPrice, error) {

	if err := utils.ValidateResourceId[Contract](ctx, contractId); err != nil {
		return nil, errors.New("contract not found")
	}
	if input.UnitPrice.IsNegative() {
		return nil, errors.New("unit price must not be negative")
	}

	price := ContractPrice{
		ContractId:    contractId,
		UnitPrice:     input.UnitPrice,
		EffectiveFrom: input.EffectiveFrom,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&price).Error
	if err != nil {
		return nil, err
	}
	return &price, nil
}

// RecordPartnerPayment appends a paid-amount entry to the partner ledger.
func RecordPartnerPayment(ctx context.Context, contractId int, input *NewPartnerPayment) (*ContractTransaction, error) {

	contract, err := utils.FetchModel[Contract](ctx, contractId)
	if err != nil {
		return nil, errors.New("contract not found")
	}
	if !input.PaidAmount.IsPositive() {
		return nil, errors.New("paid amount must be positive")
	}
	// ledger rows are keyed on the station day, same as sale entries
	transactionDate, err := StationDay(ctx, contract.StationId, input.TransactionDate)
	if err != nil {
		return nil, err
	}

	txn := ContractTransaction{
		ContractId:      contractId,
		TransactionDate: transactionDate,
		PaidAmount:      input.PaidAmount,
		ReceiptNumber:   input.ReceiptNumber,
		ReferenceType:   "PartnerPayment",
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Create(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// appendContractSale records a sold quantity/amount against a contract inside
// the caller's transaction. Called when a partner report commits.
func appendContractSale(tx *gorm.DB, contractId int, date time.Time, quantity decimal.Decimal, amount decimal.Decimal, reportId int) error {
	txn := ContractTransaction{
		ContractId:      contractId,
		TransactionDate: date,
		Quantity:        quantity,
		SoldAmount:      amount,
		ReferenceType:   "PartnerReport",
		ReferenceId:     reportId,
	}
	return tx.Create(&txn).Error
}

func GetContract(ctx context.Context, id int) (*Contract, error) {
	return utils.FetchModel[Contract](ctx, id, "Prices")
}

// GetActiveContracts returns a station's active contracts with price history
// preloaded, ordered by partner name.
func GetActiveContracts(ctx context.Context, stationId int) ([]*Contract, error) {
	db := config.GetDB()
	var results []*Contract
	err := db.WithContext(ctx).Preload("Prices").
		Where("station_id = ? AND is_active = ?", stationId, true).
		Order("partner_name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func GetContractsAll(ctx context.Context, stationId *int, partnerName *string) ([]*Contract, error) {
	db := config.GetDB()
	var results []*Contract

	dbCtx := db.WithContext(ctx).Preload("Prices")
	if stationId != nil && *stationId > 0 {
		dbCtx = dbCtx.Where("station_id = ?", *stationId)
	}
	if partnerName != nil && len(*partnerName) > 0 {
		dbCtx = dbCtx.Where("partner_name LIKE ?", "%"+*partnerName+"%")
	}
	// db query
	err := dbCtx.Order("partner_name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetContractTransactions returns append-only partner-ledger entries for a
// contract up to and including asOfDate, oldest first.
func GetContractTransactions(ctx context.Context, contractId int, asOfDate time.Time) ([]ContractTransaction, error) {
	db := config.GetDB()
	var results []ContractTransaction
	err := db.WithContext(ctx).
		Where("contract_id = ? AND transaction_date <= ?", contractId, asOfDate).
		Order("transaction_date, id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

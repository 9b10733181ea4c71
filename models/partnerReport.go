package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PartnerReport is the partner sub-ledger record for (station, date): one
// line per contract that sold gas that day. Records are immutable once
// committed; the only delete path is the compensating delete right after a
// failed write-verify cycle.
//
// A day with no partner sales has no record at all - that is a valid steady
// state, not a gap. The cycle skips this sub-ledger and the cursor advances
// anyway, so the absent day never reads as a sequence violation later.
type PartnerReport struct {
	ID            int                  `gorm:"primary_key" json:"id"`
	StationId     int                  `gorm:"not null;index:uniq_partner_report,unique" json:"station_id" binding:"required"`
	ReportDate    time.Time            `gorm:"not null;index:uniq_partner_report,unique" json:"report_date" binding:"required"`
	Entries       []PartnerReportEntry `gorm:"foreignKey:ReportId" json:"entries"`
	TotalQuantity decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"total_quantity"`
	TotalAmount   decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	CreatedBy     int                  `gorm:"not null" json:"created_by"`
	CreatedByName string               `gorm:"size:100" json:"created_by_name"`
	OriginIp      string               `gorm:"size:45" json:"origin_ip"`
	CorrelationId string               `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time            `gorm:"autoCreateTime" json:"created_at"`
}

type PartnerReportEntry struct {
	ID         int             `gorm:"primary_key" json:"id"`
	ReportId   int             `gorm:"index;not null" json:"report_id" binding:"required"`
	ContractId int             `gorm:"index;not null" json:"contract_id" binding:"required"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	Quantity   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
}

type NewPartnerReport struct {
	Entries []NewPartnerReportEntry `json:"entries"`
}

type NewPartnerReportEntry struct {
	ContractId int             `json:"contract_id" binding:"required"`
	Quantity   decimal.Decimal `json:"quantity" binding:"required"`
}

func (r *PartnerReport) GetId() int {
	return r.ID
}

// IsEmpty reports whether the submission carries no sold quantity at all.
// An empty partner submission means "no partner sold gas today" and is a
// skip, not an error.
func (input *NewPartnerReport) IsEmpty() bool {
	for _, e := range input.Entries {
		if !e.Quantity.IsZero() {
			return false
		}
	}
	return true
}

// receivePartnerEntries prices each submitted line against the contract's
// price history for the report date. contracts must carry preloaded Prices.
func receivePartnerEntries(input *NewPartnerReport, contracts []*Contract, reportDate time.Time) ([]PartnerReportEntry, decimal.Decimal, decimal.Decimal, error) {
	byId := make(map[int]*Contract, len(contracts))
	for _, c := range contracts {
		byId[c.ID] = c
	}

	entries := make([]PartnerReportEntry, 0, len(input.Entries))
	totalQuantity := decimal.Zero
	totalAmount := decimal.Zero
	seen := make(map[int]bool)

	for _, e := range input.Entries {
		if e.Quantity.IsZero() {
			// zero-quantity lines are dropped, not stored
			continue
		}
		if e.Quantity.IsNegative() {
			return nil, decimal.Zero, decimal.Zero, errors.New("sold quantity must not be negative")
		}
		if seen[e.ContractId] {
			return nil, decimal.Zero, decimal.Zero, errors.New("duplicate contract in partner report")
		}
		seen[e.ContractId] = true

		contract, ok := byId[e.ContractId]
		if !ok {
			return nil, decimal.Zero, decimal.Zero, errors.New("contract not found or not active for this station")
		}
		price, err := contract.PriceOn(reportDate)
		if err != nil {
			return nil, decimal.Zero, decimal.Zero, err
		}
		amount := e.Quantity.Mul(price)
		totalQuantity = totalQuantity.Add(e.Quantity)
		totalAmount = totalAmount.Add(amount)
		entries = append(entries, PartnerReportEntry{
			ContractId: e.ContractId,
			UnitPrice:  price,
			Quantity:   e.Quantity,
			Amount:     amount,
		})
	}
	return entries, totalQuantity, totalAmount, nil
}

// CreatePartnerReportTx inserts the partner record and advances the cursor
// inside the caller's transaction. priorDate is the cursor date sequencing
// was checked against (nil on a first-ever report). The unique index turns a
// concurrent duplicate into ErrRecordAlreadyExists.
func CreatePartnerReportTx(ctx context.Context, tx *gorm.DB, stationId int, reportDate time.Time, priorDate *time.Time, input *NewPartnerReport, contracts []*Contract) (*PartnerReport, error) {

	entries, totalQuantity, totalAmount, err := receivePartnerEntries(input, contracts, reportDate)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("partner report has no sold entries; submit as skip instead")
	}

	createdBy, createdByName, originIp, correlationId := auditStamp(ctx)
	report := PartnerReport{
		StationId:     stationId,
		ReportDate:    reportDate,
		Entries:       entries,
		TotalQuantity: totalQuantity,
		TotalAmount:   totalAmount,
		CreatedBy:     createdBy,
		CreatedByName: createdByName,
		OriginIp:      originIp,
		CorrelationId: correlationId,
	}

	if err := tx.Create(&report).Error; err != nil {
		if IsDuplicateKeyErr(err) {
			return nil, ErrRecordAlreadyExists
		}
		return nil, err
	}
	if err := advanceCursorTx(tx, stationId, SubLedgerPartner, priorDate, reportDate, report.ID); err != nil {
		return nil, err
	}

	// partner sales flow into the contract registry's append-only ledger
	for _, e := range report.Entries {
		if err := appendContractSale(tx, e.ContractId, reportDate, e.Quantity, e.Amount, report.ID); err != nil {
			return nil, err
		}
	}
	return &report, nil
}

// SkipPartnerReportTx advances the partner cursor for a day with no partner
// sales, writing no record. Sequencing rules are the same as for a real
// write; a record id of zero marks the cursor position as a skip.
func SkipPartnerReportTx(tx *gorm.DB, stationId int, reportDate time.Time, priorDate *time.Time) error {
	return advanceCursorTx(tx, stationId, SubLedgerPartner, priorDate, reportDate, 0)
}

// CompensateSkippedPartnerTx rewinds a skip when its cycle is abandoned.
// priorDate is the cursor date before the cycle; nil means the skip created
// the cursor and the row is removed again.
func CompensateSkippedPartnerTx(tx *gorm.DB, stationId int, priorDate *time.Time) error {
	return rewindPartnerCursorTx(tx, stationId, priorDate)
}

// CompensatePartnerReportTx removes a just-written partner record: entries,
// contract-ledger rows sourced from it, and the cursor advance. priorDate is
// the cursor date before the write; skipped days mean the latest surviving
// record is not a reliable substitute. This is the rollback half of
// write-verify-compensate, never a business deletion.
func CompensatePartnerReportTx(tx *gorm.DB, report *PartnerReport, priorDate *time.Time) error {
	if err := tx.Where("report_id = ?", report.ID).Delete(&PartnerReportEntry{}).Error; err != nil {
		return err
	}
	if err := tx.Where("reference_type = ? AND reference_id = ?", "PartnerReport", report.ID).
		Delete(&ContractTransaction{}).Error; err != nil {
		return err
	}
	if err := tx.Delete(&PartnerReport{}, report.ID).Error; err != nil {
		return err
	}
	return rewindPartnerCursorTx(tx, report.StationId, priorDate)
}

// rewindPartnerCursorTx points the cursor back at priorDate, resolving the
// record id there (zero when that day was itself a skip).
func rewindPartnerCursorTx(tx *gorm.DB, stationId int, priorDate *time.Time) error {
	if priorDate == nil {
		return rewindCursorTx(tx, stationId, SubLedgerPartner, nil, 0)
	}
	var prev PartnerReport
	err := tx.Where("station_id = ? AND report_date = ?", stationId, *priorDate).
		First(&prev).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return err
	}
	return rewindCursorTx(tx, stationId, SubLedgerPartner, priorDate, prev.ID)
}

/* queries */

func GetPartnerReport(ctx context.Context, id int) (*PartnerReport, error) {
	db := config.GetDB()
	var report PartnerReport
	err := db.WithContext(ctx).Preload("Entries").First(&report, id).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// GetPartnerReportByDate is the point lookup for (station, date).
func GetPartnerReportByDate(ctx context.Context, stationId int, date time.Time) (*PartnerReport, error) {
	date, err := StationDay(ctx, stationId, date)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var report PartnerReport
	err = db.WithContext(ctx).Preload("Entries").
		Where("station_id = ? AND report_date = ?", stationId, date).
		First(&report).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func GetLatestPartnerReport(ctx context.Context, stationId int) (*PartnerReport, error) {
	db := config.GetDB()
	var report PartnerReport
	err := db.WithContext(ctx).Preload("Entries").
		Where("station_id = ?", stationId).
		Order("report_date DESC").First(&report).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func GetPartnerReports(ctx context.Context, stationId int, fromDate time.Time, toDate time.Time) ([]*PartnerReport, error) {
	fromDate, toDate, err := stationDayRange(ctx, stationId, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var results []*PartnerReport
	err = db.WithContext(ctx).Preload("Entries").
		Where("station_id = ? AND report_date BETWEEN ? AND ?", stationId, fromDate, toDate).
		Order("report_date").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GeneralReport is the general cash/terminal sub-ledger record for
// (station, date). CashOnHand is a convenience cache of the reconciliation
// engine's derivation; readers recompute, they do not trust it.
type GeneralReport struct {
	ID            int               `gorm:"primary_key" json:"id"`
	StationId     int               `gorm:"not null;index:uniq_general_report,unique" json:"station_id" binding:"required"`
	ReportDate    time.Time         `gorm:"not null;index:uniq_general_report,unique" json:"report_date" binding:"required"`
	MeterReading  decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"meter_reading"`
	UnitPrice     decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	CashOnHand    decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"cash_on_hand"`
	Terminals     []TerminalAmount  `gorm:"foreignKey:ReportId" json:"terminals"`
	ControlSums   []ControlSumEntry `gorm:"foreignKey:ReportId" json:"control_sums"`
	CreatedBy     int               `gorm:"not null" json:"created_by"`
	CreatedByName string            `gorm:"size:100" json:"created_by_name"`
	OriginIp      string            `gorm:"size:45" json:"origin_ip"`
	CorrelationId string            `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

type TerminalAmount struct {
	ID       int             `gorm:"primary_key" json:"id"`
	ReportId int             `gorm:"not null;index:uniq_terminal_channel,unique" json:"report_id" binding:"required"`
	Channel  string          `gorm:"size:50;not null;index:uniq_terminal_channel,unique" json:"channel" binding:"required"`
	Amount   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
}

// ControlSumEntry is the one-shot annotation a secondary role attaches to a
// general record: an externally audited figure per category. A non-zero
// value locks the entry permanently; there is no update or delete operation.
type ControlSumEntry struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ReportId      int             `gorm:"not null;index:uniq_control_sum,unique" json:"report_id" binding:"required"`
	Category      string          `gorm:"size:100;not null;index:uniq_control_sum,unique" json:"category" binding:"required"`
	Value         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"value"`
	ReceiptNumber string          `gorm:"size:100" json:"receipt_number"`
	ReceivedDate  time.Time       `gorm:"not null" json:"received_date"`
	LockedBy      int             `gorm:"not null" json:"locked_by"`
	LockedByName  string          `gorm:"size:100" json:"locked_by_name"`
	OriginIp      string          `gorm:"size:45" json:"origin_ip"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewGeneralReport struct {
	MeterReading decimal.Decimal     `json:"meter_reading" binding:"required"`
	UnitPrice    decimal.Decimal     `json:"unit_price" binding:"required"`
	Terminals    []NewTerminalAmount `json:"terminals" binding:"required"`
}

type NewTerminalAmount struct {
	Channel string          `json:"channel" binding:"required"`
	Amount  decimal.Decimal `json:"amount"`
}

func (r *GeneralReport) GetId() int {
	return r.ID
}

func (r *GeneralReport) TerminalTotal() decimal.Decimal {
	total := decimal.Zero
	for _, t := range r.Terminals {
		total = total.Add(t.Amount)
	}
	return total
}

// ControlSum returns the entry for a category, or nil.
func (r *GeneralReport) ControlSum(category string) *ControlSumEntry {
	for i := range r.ControlSums {
		if r.ControlSums[i].Category == category {
			return &r.ControlSums[i]
		}
	}
	return nil
}

// Locked reports whether the entry is committed. Zero-valued entries are
// placeholders and may still be written over.
func (e *ControlSumEntry) Locked() bool {
	return !e.Value.IsZero()
}

// controlSumWritable is the one-shot rule: an existing committed entry
// refuses any further write, whatever the new value. nil means no entry yet.
func controlSumWritable(existing *ControlSumEntry) error {
	if existing != nil && existing.Locked() {
		return ErrControlSumLocked
	}
	return nil
}

// ReceiveTerminalAmounts validates the payment-channel breakdown: at least
// two channels, unique, non-negative.
func ReceiveTerminalAmounts(input []NewTerminalAmount) ([]TerminalAmount, error) {
	if len(input) < 2 {
		return nil, errors.New("general report needs at least two payment channels")
	}
	terminals := make([]TerminalAmount, 0, len(input))
	seen := make(map[string]bool)
	for _, t := range input {
		if t.Channel == "" {
			return nil, errors.New("terminal channel name is required")
		}
		if seen[t.Channel] {
			return nil, errors.New("duplicate terminal channel " + t.Channel)
		}
		seen[t.Channel] = true
		if t.Amount.IsNegative() {
			return nil, errors.New("terminal amount must not be negative")
		}
		terminals = append(terminals, TerminalAmount{
			Channel: t.Channel,
			Amount:  t.Amount,
		})
	}
	return terminals, nil
}

// CreateGeneralReportTx inserts the general record and advances the cursor
// inside the caller's transaction. cashOnHand is derived by the caller from
// the already-committed hose and partner records for the same date.
func CreateGeneralReportTx(ctx context.Context, tx *gorm.DB, stationId int, reportDate time.Time, priorDate *time.Time, input *NewGeneralReport, cashOnHand decimal.Decimal) (*GeneralReport, error) {

	if input.MeterReading.IsNegative() {
		return nil, errors.New("meter reading must not be negative")
	}
	if !input.UnitPrice.IsPositive() {
		return nil, errors.New("gas unit price must be positive")
	}
	terminals, err := ReceiveTerminalAmounts(input.Terminals)
	if err != nil {
		return nil, err
	}

	createdBy, createdByName, originIp, correlationId := auditStamp(ctx)
	report := GeneralReport{
		StationId:     stationId,
		ReportDate:    reportDate,
		MeterReading:  input.MeterReading,
		UnitPrice:     input.UnitPrice,
		CashOnHand:    cashOnHand,
		Terminals:     terminals,
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
	if err := advanceCursorTx(tx, stationId, SubLedgerGeneral, priorDate, reportDate, report.ID); err != nil {
		return nil, err
	}
	return &report, nil
}

// CompensateGeneralReportTx removes a just-written general record and
// rewinds the cursor. A record with a committed control sum is never
// compensated; verification happens before any auditor can reach it.
func CompensateGeneralReportTx(tx *gorm.DB, report *GeneralReport) error {
	for _, e := range report.ControlSums {
		if e.Locked() {
			return ErrControlSumLocked
		}
	}
	if err := tx.Where("report_id = ?", report.ID).Delete(&TerminalAmount{}).Error; err != nil {
		return err
	}
	if err := tx.Where("report_id = ?", report.ID).Delete(&ControlSumEntry{}).Error; err != nil {
		return err
	}
	if err := tx.Delete(&GeneralReport{}, report.ID).Error; err != nil {
		return err
	}

	var prev GeneralReport
	err := tx.Where("station_id = ? AND id <> ?", report.StationId, report.ID).
		Order("report_date DESC").First(&prev).Error
	if err == gorm.ErrRecordNotFound {
		return rewindCursorTx(tx, report.StationId, SubLedgerGeneral, nil, 0)
	}
	if err != nil {
		return err
	}
	return rewindCursorTx(tx, report.StationId, SubLedgerGeneral, &prev.ReportDate, prev.ID)
}

// LockControlSumTx commits an audited figure for (report, category) inside
// the caller's transaction. An existing non-zero entry refuses with
// ErrControlSumLocked regardless of the new value; the row lock plus the
// unique index close the race between two auditors.
func LockControlSumTx(ctx context.Context, tx *gorm.DB, reportId int, category string, value decimal.Decimal, receiptNumber string, receivedDate time.Time) (*ControlSumEntry, error) {

	if category == "" {
		return nil, errors.New("control sum category is required")
	}
	if value.IsNegative() {
		return nil, errors.New("control sum value must not be negative")
	}

	var existing ControlSumEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("report_id = ? AND category = ?", reportId, category).
		First(&existing).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	if err == nil {
		if werr := controlSumWritable(&existing); werr != nil {
			return nil, werr
		}
	}

	lockedBy, lockedByName, originIp, _ := auditStamp(ctx)
	entry := ControlSumEntry{
		ReportId:      reportId,
		Category:      category,
		Value:         value,
		ReceiptNumber: receiptNumber,
		ReceivedDate:  receivedDate,
		LockedBy:      lockedBy,
		LockedByName:  lockedByName,
		OriginIp:      originIp,
	}

	if err == gorm.ErrRecordNotFound {
		if cerr := tx.Create(&entry).Error; cerr != nil {
			if IsDuplicateKeyErr(cerr) {
				return nil, ErrControlSumLocked
			}
			return nil, cerr
		}
		return &entry, nil
	}

	// zero-valued placeholder: written over in place, still one row per category
	entry.ID = existing.ID
	if uerr := tx.Model(&ControlSumEntry{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
		"Value":         value,
		"ReceiptNumber": receiptNumber,
		"ReceivedDate":  receivedDate,
		"LockedBy":      lockedBy,
		"LockedByName":  lockedByName,
		"OriginIp":      originIp,
	}).Error; uerr != nil {
		return nil, uerr
	}
	return &entry, nil
}

/* queries */

func GetGeneralReport(ctx context.Context, id int) (*GeneralReport, error) {
	db := config.GetDB()
	var report GeneralReport
	err := db.WithContext(ctx).Preload("Terminals").Preload("ControlSums").First(&report, id).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func GetGeneralReportByDate(ctx context.Context, stationId int, date time.Time) (*GeneralReport, error) {
	date, err := StationDay(ctx, stationId, date)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var report GeneralReport
	err = db.WithContext(ctx).Preload("Terminals").Preload("ControlSums").
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

func GetLatestGeneralReport(ctx context.Context, stationId int) (*GeneralReport, error) {
	db := config.GetDB()
	var report GeneralReport
	err := db.WithContext(ctx).Preload("Terminals").Preload("ControlSums").
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

func GetGeneralReports(ctx context.Context, stationId int, fromDate time.Time, toDate time.Time) ([]*GeneralReport, error) {
	fromDate, toDate, err := stationDayRange(ctx, stationId, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var results []*GeneralReport
	err = db.WithContext(ctx).Preload("Terminals").Preload("ControlSums").
		Where("station_id = ? AND report_date BETWEEN ? AND ?", stationId, fromDate, toDate).
		Order("report_date").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

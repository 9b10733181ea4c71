package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// HoseReport is the hose sub-ledger record for (station, date): previous and
// current totalizer readings per hose. Once a prior record exists, the
// previous reading of every hose is carried forward from the last record's
// current reading and is not editable by the caller.
type HoseReport struct {
	ID            int               `gorm:"primary_key" json:"id"`
	StationId     int               `gorm:"not null;index:uniq_hose_report,unique" json:"station_id" binding:"required"`
	ReportDate    time.Time         `gorm:"not null;index:uniq_hose_report,unique" json:"report_date" binding:"required"`
	Hoses         []HoseReportEntry `gorm:"foreignKey:ReportId" json:"hoses"`
	TotalDelta    decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"total_delta"`
	TotalAmount   decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	CreatedBy     int               `gorm:"not null" json:"created_by"`
	CreatedByName string            `gorm:"size:100" json:"created_by_name"`
	OriginIp      string            `gorm:"size:45" json:"origin_ip"`
	CorrelationId string            `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

type HoseReportEntry struct {
	ID        int             `gorm:"primary_key" json:"id"`
	ReportId  int             `gorm:"index;not null" json:"report_id" binding:"required"`
	HoseNo    int             `gorm:"not null" json:"hose_no" binding:"required"`
	Previous  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"previous"`
	Current   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"current"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	Delta     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"delta"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
}

type NewHoseReport struct {
	Hoses []NewHoseReportEntry `json:"hoses" binding:"required"`
}

type NewHoseReportEntry struct {
	HoseNo    int             `json:"hose_no" binding:"required"`
	Previous  decimal.Decimal `json:"previous"`
	Current   decimal.Decimal `json:"current" binding:"required"`
	UnitPrice decimal.Decimal `json:"unit_price" binding:"required"`
}

func (r *HoseReport) GetId() int {
	return r.ID
}

func (r *HoseReport) entryByHose(hoseNo int) *HoseReportEntry {
	for i := range r.Hoses {
		if r.Hoses[i].HoseNo == hoseNo {
			return &r.Hoses[i]
		}
	}
	return nil
}

// ReceiveHoseEntries validates the submission against the station's hose
// count and the prior record (carry-forward), and derives delta and amount.
// prior is nil on a first-ever report, where previous readings are free.
// Deltas are clamped at zero even though current >= previous is enforced;
// the clamp also covers totalizer resets patched in by an admin.
func ReceiveHoseEntries(input *NewHoseReport, prior *HoseReport, hoseCount int) ([]HoseReportEntry, decimal.Decimal, decimal.Decimal, error) {
	if len(input.Hoses) != hoseCount {
		return nil, decimal.Zero, decimal.Zero, fmt.Errorf("report must cover all %d hoses of the station", hoseCount)
	}

	entries := make([]HoseReportEntry, 0, len(input.Hoses))
	totalDelta := decimal.Zero
	totalAmount := decimal.Zero
	seen := make(map[int]bool)

	for _, h := range input.Hoses {
		if h.HoseNo <= 0 || h.HoseNo > hoseCount {
			return nil, decimal.Zero, decimal.Zero, fmt.Errorf("hose number %d is out of range", h.HoseNo)
		}
		if seen[h.HoseNo] {
			return nil, decimal.Zero, decimal.Zero, fmt.Errorf("duplicate hose number %d", h.HoseNo)
		}
		seen[h.HoseNo] = true

		previous := h.Previous
		if prior != nil {
			carried := prior.entryByHose(h.HoseNo)
			if carried == nil {
				return nil, decimal.Zero, decimal.Zero, fmt.Errorf("hose %d has no carried-forward reading in the previous report", h.HoseNo)
			}
			// previous readings are locked to yesterday's current readings
			if !h.Previous.IsZero() && !h.Previous.Equal(carried.Current) {
				return nil, decimal.Zero, decimal.Zero, fmt.Errorf("hose %d previous reading is carried forward from the last report and cannot be changed", h.HoseNo)
			}
			previous = carried.Current
		}

		if previous.IsNegative() || h.Current.IsNegative() {
			return nil, decimal.Zero, decimal.Zero, errors.New("meter readings must not be negative")
		}
		if h.Current.LessThan(previous) {
			return nil, decimal.Zero, decimal.Zero, ErrInvalidReading
		}
		if h.UnitPrice.IsNegative() {
			return nil, decimal.Zero, decimal.Zero, errors.New("unit price must not be negative")
		}

		delta := h.Current.Sub(previous)
		if delta.IsNegative() {
			delta = decimal.Zero
		}
		amount := delta.Mul(h.UnitPrice)
		totalDelta = totalDelta.Add(delta)
		totalAmount = totalAmount.Add(amount)
		entries = append(entries, HoseReportEntry{
			HoseNo:    h.HoseNo,
			Previous:  previous,
			Current:   h.Current,
			UnitPrice: h.UnitPrice,
			Delta:     delta,
			Amount:    amount,
		})
	}
	return entries, totalDelta, totalAmount, nil
}

// CreateHoseReportTx inserts the hose record and advances the cursor inside
// the caller's transaction. priorReport carries the readings to chain from;
// priorDate is the cursor date sequencing was checked against.
func CreateHoseReportTx(ctx context.Context, tx *gorm.DB, stationId int, reportDate time.Time, priorDate *time.Time, priorReport *HoseReport, input *NewHoseReport, hoseCount int) (*HoseReport, error) {

	entries, totalDelta, totalAmount, err := ReceiveHoseEntries(input, priorReport, hoseCount)
	if err != nil {
		return nil, err
	}

	createdBy, createdByName, originIp, correlationId := auditStamp(ctx)
	report := HoseReport{
		StationId:     stationId,
		ReportDate:    reportDate,
		Hoses:         entries,
		TotalDelta:    totalDelta,
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
	if err := advanceCursorTx(tx, stationId, SubLedgerHose, priorDate, reportDate, report.ID); err != nil {
		return nil, err
	}
	return &report, nil
}

// CompensateHoseReportTx removes a just-written hose record and rewinds the
// cursor. Rollback half of write-verify-compensate only.
func CompensateHoseReportTx(tx *gorm.DB, report *HoseReport) error {
	if err := tx.Where("report_id = ?", report.ID).Delete(&HoseReportEntry{}).Error; err != nil {
		return err
	}
	if err := tx.Delete(&HoseReport{}, report.ID).Error; err != nil {
		return err
	}

	var prev HoseReport
	err := tx.Where("station_id = ? AND id <> ?", report.StationId, report.ID).
		Order("report_date DESC").First(&prev).Error
	if err == gorm.ErrRecordNotFound {
		return rewindCursorTx(tx, report.StationId, SubLedgerHose, nil, 0)
	}
	if err != nil {
		return err
	}
	return rewindCursorTx(tx, report.StationId, SubLedgerHose, &prev.ReportDate, prev.ID)
}

/* queries */

func GetHoseReport(ctx context.Context, id int) (*HoseReport, error) {
	db := config.GetDB()
	var report HoseReport
	err := db.WithContext(ctx).Preload("Hoses").First(&report, id).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func GetHoseReportByDate(ctx context.Context, stationId int, date time.Time) (*HoseReport, error) {
	date, err := StationDay(ctx, stationId, date)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var report HoseReport
	err = db.WithContext(ctx).Preload("Hoses").
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

// GetLatestHoseReport returns the newest hose record for the station, with
// entries preloaded: the source of carried-forward previous readings.
func GetLatestHoseReport(ctx context.Context, stationId int) (*HoseReport, error) {
	db := config.GetDB()
	var report HoseReport
	err := db.WithContext(ctx).Preload("Hoses").
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

func GetHoseReports(ctx context.Context, stationId int, fromDate time.Time, toDate time.Time) ([]*HoseReport, error) {
	fromDate, toDate, err := stationDayRange(ctx, stationId, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var results []*HoseReport
	err = db.WithContext(ctx).Preload("Hoses").
		Where("station_id = ? AND report_date BETWEEN ? AND ?", stationId, fromDate, toDate).
		Order("report_date").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

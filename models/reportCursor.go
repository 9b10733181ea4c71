package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/config"
	"gorm.io/gorm"
)

// ReportCursor is the per-(station, sub-ledger) monotonic date cursor. It is
// advanced in the same transaction as the record insert, so the next legal
// date is a point lookup, never a scan over the ledger.
type ReportCursor struct {
	ID           int       `gorm:"primary_key" json:"id"`
	StationId    int       `gorm:"not null;index:uniq_report_cursor,unique" json:"station_id" binding:"required"`
	SubLedger    SubLedger `gorm:"size:20;not null;index:uniq_report_cursor,unique" json:"sub_ledger" binding:"required"`
	LastDate     time.Time `gorm:"not null" json:"last_date"`
	LastRecordId int       `gorm:"not null" json:"last_record_id"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetReportCursor returns the cursor for (station, sub-ledger), or nil when
// the sub-ledger has no records yet (first-ever report).
func GetReportCursor(ctx context.Context, stationId int, subLedger SubLedger) (*ReportCursor, error) {
	db := config.GetDB()
	return GetReportCursorTx(db.WithContext(ctx), stationId, subLedger)
}

func GetReportCursorTx(tx *gorm.DB, stationId int, subLedger SubLedger) (*ReportCursor, error) {
	var cursor ReportCursor
	err := tx.Where("station_id = ? AND sub_ledger = ?", stationId, subLedger).
		First(&cursor).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cursor, nil
}

// advanceCursorTx moves the cursor to date inside the caller's transaction.
// prior is the cursor date the caller sequenced against; the guarded UPDATE
// turns a lost race into a sequence violation instead of a silent skip.
func advanceCursorTx(tx *gorm.DB, stationId int, subLedger SubLedger, prior *time.Time, date time.Time, recordId int) error {
	if prior == nil {
		cursor := ReportCursor{
			StationId:    stationId,
			SubLedger:    subLedger,
			LastDate:     date,
			LastRecordId: recordId,
		}
		if err := tx.Create(&cursor).Error; err != nil {
			if IsDuplicateKeyErr(err) {
				return ErrDateSequenceViolation
			}
			return err
		}
		return nil
	}

	result := tx.Model(&ReportCursor{}).
		Where("station_id = ? AND sub_ledger = ? AND last_date = ?", stationId, subLedger, *prior).
		Updates(map[string]interface{}{"LastDate": date, "LastRecordId": recordId})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDateSequenceViolation
	}
	return nil
}

// rewindCursorTx resets the cursor after a compensating delete. prevDate is
// the latest remaining date in the sub-ledger; nil means the sub-ledger is
// empty again and the cursor row goes away with the record.
func rewindCursorTx(tx *gorm.DB, stationId int, subLedger SubLedger, prevDate *time.Time, prevRecordId int) error {
	if prevDate == nil {
		return tx.Where("station_id = ? AND sub_ledger = ?", stationId, subLedger).
			Delete(&ReportCursor{}).Error
	}
	return tx.Model(&ReportCursor{}).
		Where("station_id = ? AND sub_ledger = ?", stationId, subLedger).
		Updates(map[string]interface{}{"LastDate": *prevDate, "LastRecordId": prevRecordId}).Error
}

package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// WriteAttempt is the durable trail of one write-verify-compensate pass.
// The row exists primarily for audit: a ROLLED_BACK attempt with a
// last_error explains why a record briefly existed and then did not.
type WriteAttempt struct {
	ID         int               `gorm:"primary_key" json:"id"`
	StationId  int               `gorm:"index;not null" json:"station_id"`
	SubLedger  SubLedger         `gorm:"size:20;not null" json:"sub_ledger"`
	ReportDate time.Time         `gorm:"not null" json:"report_date"`
	RecordId   int               `json:"record_id"`
	State      WriteAttemptState `gorm:"size:20;not null;index" json:"state"`
	LastError  *string           `gorm:"type:text" json:"last_error"`
	CreatedAt  time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func BeginWriteAttempt(tx *gorm.DB, stationId int, subLedger SubLedger, reportDate time.Time) (*WriteAttempt, error) {
	attempt := WriteAttempt{
		StationId:  stationId,
		SubLedger:  subLedger,
		ReportDate: reportDate,
		State:      WriteAttemptPending,
	}
	if err := tx.Create(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// Transition advances the attempt, guarded by the state machine.
func (a *WriteAttempt) Transition(tx *gorm.DB, next WriteAttemptState, attemptErr error) error {
	if !a.State.CanTransitionTo(next) {
		return fmt.Errorf("write attempt cannot move from %s to %s", a.State, next)
	}
	updates := map[string]interface{}{"State": next, "RecordId": a.RecordId}
	if attemptErr != nil {
		msg := attemptErr.Error()
		updates["LastError"] = &msg
	}
	if err := tx.Model(&WriteAttempt{}).Where("id = ?", a.ID).Updates(updates).Error; err != nil {
		return err
	}
	a.State = next
	return nil
}

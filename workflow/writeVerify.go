package workflow

import (
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/config"
	"bitbucket.org/mmdatafocus/stationops_backend/models"
	"gorm.io/gorm"
)

// GuardedWrite is one sub-ledger write wrapped in verify-and-compensate.
// After the store accepts the record it is re-read and every business
// required field checked; the store enforces no schema of its own. A record
// that fails verification is deleted again and the caller resubmits whole,
// never patches, since in-place patches would undermine the write-once
// guarantee on control sums later.
type GuardedWrite interface {
	Write() (recordId int, err error)
	Verify(recordId int) error
	Compensate(recordId int) error
}

// AttemptRecorder persists write-attempt state transitions. Split from the
// write itself so the state machine can be exercised without a store.
type AttemptRecorder interface {
	SetRecordId(recordId int)
	Transition(next models.WriteAttemptState, attemptErr error) error
}

// RunWriteAttempt walks one attempt through
// PENDING -> WRITTEN -> VERIFYING -> COMMITTED, diverting through
// COMPENSATING -> ROLLED_BACK when verification fails. A rolled-back attempt
// surfaces ErrWriteIntegrityFailure; the write left nothing behind and is
// safe to retry in full.
func RunWriteAttempt(write GuardedWrite, recorder AttemptRecorder) (int, error) {
	recordId, err := write.Write()
	if err != nil {
		return 0, err
	}
	recorder.SetRecordId(recordId)
	if err := recorder.Transition(models.WriteAttemptWritten, nil); err != nil {
		return 0, err
	}
	if err := recorder.Transition(models.WriteAttemptVerifying, nil); err != nil {
		return 0, err
	}

	verifyErr := write.Verify(recordId)
	if verifyErr == nil {
		if err := recorder.Transition(models.WriteAttemptCommitted, nil); err != nil {
			return 0, err
		}
		return recordId, nil
	}

	if err := recorder.Transition(models.WriteAttemptCompensating, verifyErr); err != nil {
		return 0, err
	}
	if err := write.Compensate(recordId); err != nil {
		return 0, err
	}
	if err := recorder.Transition(models.WriteAttemptRolledBack, verifyErr); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("%w: %v", models.ErrWriteIntegrityFailure, verifyErr)
}

// gormAttemptRecorder binds an AttemptRecorder to the posting transaction.
type gormAttemptRecorder struct {
	tx      *gorm.DB
	attempt *models.WriteAttempt
}

func (r *gormAttemptRecorder) Transition(next models.WriteAttemptState, attemptErr error) error {
	return r.attempt.Transition(r.tx, next, attemptErr)
}

// SetRecordId stamps the created record onto the attempt row before the
// WRITTEN transition persists it.
func (r *gormAttemptRecorder) SetRecordId(recordId int) {
	r.attempt.RecordId = recordId
}

func newAttemptRecorder(tx *gorm.DB, stationId int, subLedger models.SubLedger, reportDate time.Time) (*gormAttemptRecorder, error) {
	attempt, err := models.BeginWriteAttempt(tx, stationId, subLedger, reportDate)
	if err != nil {
		return nil, err
	}
	return &gormAttemptRecorder{tx: tx, attempt: attempt}, nil
}

/* per-sub-ledger verification */

func verifyPartnerRecord(tx *gorm.DB, recordId int) error {
	var record models.PartnerReport
	if err := tx.Preload("Entries").First(&record, recordId).Error; err != nil {
		return fmt.Errorf("partner record not readable after write: %v", err)
	}
	if record.StationId == 0 || record.ReportDate.IsZero() {
		return errors.New("partner record missing station or report date")
	}
	if len(record.Entries) == 0 {
		return errors.New("partner record has no entries")
	}
	for _, e := range record.Entries {
		if e.ContractId == 0 || e.UnitPrice.IsZero() || !e.Quantity.IsPositive() {
			return errors.New("partner entry missing contract, price or quantity")
		}
	}
	if record.CreatedBy == 0 && record.CreatedByName == "" {
		return errors.New("partner record missing creator identity")
	}
	return nil
}

func verifyHoseRecord(tx *gorm.DB, recordId int, hoseCount int) error {
	var record models.HoseReport
	if err := tx.Preload("Hoses").First(&record, recordId).Error; err != nil {
		return fmt.Errorf("hose record not readable after write: %v", err)
	}
	if record.StationId == 0 || record.ReportDate.IsZero() {
		return errors.New("hose record missing station or report date")
	}
	if len(record.Hoses) != hoseCount {
		return fmt.Errorf("hose record covers %d hoses, station has %d", len(record.Hoses), hoseCount)
	}
	for _, h := range record.Hoses {
		if h.Current.LessThan(h.Previous) {
			return errors.New("hose entry has current reading below previous")
		}
		if h.UnitPrice.IsNegative() {
			return errors.New("hose entry has negative unit price")
		}
	}
	return nil
}

func verifyGeneralRecord(tx *gorm.DB, recordId int) error {
	var record models.GeneralReport
	if err := tx.Preload("Terminals").First(&record, recordId).Error; err != nil {
		return fmt.Errorf("general record not readable after write: %v", err)
	}
	if record.StationId == 0 || record.ReportDate.IsZero() {
		return errors.New("general record missing station or report date")
	}
	if !record.UnitPrice.IsPositive() {
		return errors.New("general record missing gas unit price")
	}
	if len(record.Terminals) < 2 {
		return errors.New("general record needs at least two terminal channels")
	}
	if record.CashOnHand.IsNegative() {
		return errors.New("general record carries negative cash on hand")
	}
	return nil
}

// observeRollback counts the failure and the compensating delete for the
// dashboards.
func observeRollback(subLedger models.SubLedger) {
	config.MetricWriteVerifyFailures.WithLabelValues(string(subLedger)).Inc()
	config.MetricCompensatingDeletes.WithLabelValues(string(subLedger)).Inc()
}

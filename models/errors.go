package models

import (
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

// Ledger error taxonomy. Messages are user-facing and actionable; duplicate
// and lock violations spell out that the refusal is by design.
var (
	// ErrDateSequenceViolation: the submitted date is not the single legal
	// next date for the sub-ledger. Recoverable: re-fetch the legal date.
	ErrDateSequenceViolation = errors.New("report date must be exactly one day after the last recorded date; fetch the next legal date and resubmit")

	// ErrCycleMisaligned: the three sub-ledgers disagree on their latest
	// recorded date. Recoverable only by completing the lagging sub-ledger(s).
	ErrCycleMisaligned = errors.New("sub-ledgers disagree on the latest report date; complete the lagging sub-ledger before starting a new cycle")

	// ErrRecordAlreadyExists: a record for (station, date) is already
	// committed. Committed sub-ledger records are immutable, this is not a bug.
	ErrRecordAlreadyExists = errors.New("a report for this station and date already exists; committed reports are immutable by design and cannot be overwritten")

	// ErrInvalidReading: hose current reading below its previous reading.
	ErrInvalidReading = errors.New("current meter reading is below the previous reading")

	// ErrWriteIntegrityFailure: post-write verification found missing fields
	// and the partial record was deleted. Safe to retry the whole submission.
	ErrWriteIntegrityFailure = errors.New("report failed post-write verification and was removed; resubmit the whole report")

	// ErrControlSumLocked: the control sum for this category was already
	// committed. Audited figures are never revised, this is not retryable.
	ErrControlSumLocked = errors.New("control sum for this category is already committed; an audited figure is authoritative and is never revised")
)

// IsDuplicateKeyErr reports whether err is a MySQL duplicate-key violation
// (1062). The composite unique indexes on (station_id, report_date) turn the
// old check-then-act existence test into an insert-if-absent primitive; this
// is how the race loser finds out.
func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

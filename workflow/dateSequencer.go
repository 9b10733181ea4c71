package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/models"
	"bitbucket.org/mmdatafocus/stationops_backend/utils"
	"gorm.io/gorm"
)

// NextDate is the answer to "what date may this sub-ledger record next".
// Unconstrained means the sub-ledger has no cursor yet and any date is legal
// (first-ever report).
type NextDate struct {
	SubLedger     models.SubLedger `json:"sub_ledger"`
	LastDate      *time.Time       `json:"last_date"`
	NextDate      *time.Time       `json:"next_date"`
	Unconstrained bool             `json:"unconstrained"`
}

// NextReportDate is the single legal successor of a committed date. No
// retroactive or skip-ahead insertion exists.
func NextReportDate(last time.Time) time.Time {
	return last.AddDate(0, 0, 1)
}

// NextLegalDate reads the (station, sub-ledger) cursor and derives the only
// date the next record may carry. Cursor dates come back as UTC instants and
// are put on the station's calendar before they reach a caller.
func NextLegalDate(ctx context.Context, stationId int, subLedger models.SubLedger) (*NextDate, error) {
	cursor, err := models.GetReportCursor(ctx, stationId, subLedger)
	if err != nil {
		return nil, err
	}
	if cursor == nil {
		return &NextDate{SubLedger: subLedger, Unconstrained: true}, nil
	}
	lastDate, err := models.StationDay(ctx, stationId, cursor.LastDate)
	if err != nil {
		return nil, err
	}
	next := NextReportDate(lastDate)
	return &NextDate{
		SubLedger: subLedger,
		LastDate:  &lastDate,
		NextDate:  &next,
	}, nil
}

// NextLegalDates returns the cursor position of every sub-ledger at once,
// for the date-entry form.
func NextLegalDates(ctx context.Context, stationId int) ([]*NextDate, error) {
	results := make([]*NextDate, 0, len(models.AllSubLedgers))
	for _, sl := range models.AllSubLedgers {
		nd, err := NextLegalDate(ctx, stationId, sl)
		if err != nil {
			return nil, err
		}
		results = append(results, nd)
	}
	return results, nil
}

// validateReportDateTx checks date against the cursor inside the posting
// transaction and returns the prior cursor date for the guarded advance.
// ErrDateSequenceViolation covers both the wrong date and a cursor that moved
// under a concurrent session.
func validateReportDateTx(tx *gorm.DB, stationId int, subLedger models.SubLedger, date time.Time) (*time.Time, error) {
	cursor, err := models.GetReportCursorTx(tx, stationId, subLedger)
	if err != nil {
		return nil, err
	}
	if cursor == nil {
		return nil, nil
	}
	if !utils.SameDate(date, NextReportDate(cursor.LastDate)) {
		return nil, models.ErrDateSequenceViolation
	}
	return &cursor.LastDate, nil
}

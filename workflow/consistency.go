package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/config"
	"bitbucket.org/mmdatafocus/stationops_backend/models"
	"bitbucket.org/mmdatafocus/stationops_backend/utils"
	"gorm.io/gorm"
)

// Alignment is the consistency validator's verdict for one station. The
// three sub-ledgers are written independently and drift when a cycle is
// abandoned mid-way; no new cycle may start until they agree on the latest
// date again.
type Alignment struct {
	Aligned   bool                            `json:"aligned"`
	LastDates map[models.SubLedger]*time.Time `json:"last_dates"`
	// Lagging names the sub-ledgers behind the furthest cursor, so the
	// caller knows exactly what to complete before retrying.
	Lagging []models.SubLedger `json:"lagging"`
}

// ComputeAlignment decides alignment from the three cursor dates. All absent
// counts as aligned (a brand-new station); otherwise all three must sit on
// the same calendar date.
func ComputeAlignment(lastDates map[models.SubLedger]*time.Time) *Alignment {
	alignment := &Alignment{LastDates: lastDates, Lagging: []models.SubLedger{}}

	var max *time.Time
	for _, sl := range models.AllSubLedgers {
		d := lastDates[sl]
		if d == nil {
			continue
		}
		if max == nil || d.After(*max) {
			max = d
		}
	}
	if max == nil {
		alignment.Aligned = true
		return alignment
	}

	for _, sl := range models.AllSubLedgers {
		d := lastDates[sl]
		if d == nil || !utils.SameDate(*d, *max) {
			alignment.Lagging = append(alignment.Lagging, sl)
		}
	}
	alignment.Aligned = len(alignment.Lagging) == 0
	return alignment
}

// CheckAligned fetches each sub-ledger's cursor and runs the alignment rule.
func CheckAligned(ctx context.Context, stationId int) (*Alignment, error) {
	db := config.GetDB()
	return checkAlignedTx(db.WithContext(ctx), stationId)
}

func checkAlignedTx(tx *gorm.DB, stationId int) (*Alignment, error) {
	lastDates := make(map[models.SubLedger]*time.Time, len(models.AllSubLedgers))
	for _, sl := range models.AllSubLedgers {
		cursor, err := models.GetReportCursorTx(tx, stationId, sl)
		if err != nil {
			return nil, err
		}
		if cursor == nil {
			lastDates[sl] = nil
			continue
		}
		d := cursor.LastDate
		lastDates[sl] = &d
	}
	return ComputeAlignment(lastDates), nil
}

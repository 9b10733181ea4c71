package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/config"
	"bitbucket.org/mmdatafocus/stationops_backend/models"
	"bitbucket.org/mmdatafocus/stationops_backend/utils"
	"github.com/shopspring/decimal"
)

// SetControlSum records an auditor's independently sourced figure against
// the general record of (station, date). One shot per category: once a
// non-zero value is committed it is authoritative and never revised, so
// there is no update or delete counterpart to this operation.
func SetControlSum(ctx context.Context, stationId int, date time.Time, category string, value decimal.Decimal, receiptNumber string, receivedDate time.Time) (*models.ControlSumEntry, error) {
	logger := config.GetLogger()

	if err := validateControlSumCategory(category); err != nil {
		return nil, err
	}
	if !value.IsPositive() {
		return nil, errors.New("control sum value must be positive")
	}

	station, err := models.GetStation(ctx, stationId)
	if err != nil {
		return nil, err
	}
	date, err = utils.ConvertToDate(date, station.Timezone)
	if err != nil {
		return nil, err
	}

	lock, err := utils.StationLock(ctx, stationId, "controlsum", moduleName, "SetControlSum")
	if err != nil {
		return nil, err
	}
	defer lock.Release(ctx)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if err := AcquireStationPostingLock(tx, stationId); err != nil {
		tx.Rollback()
		return nil, err
	}
	defer ReleaseStationPostingLock(tx, stationId)

	// control sums arrive in a later, separate workflow; the same alignment
	// gate that protects cycles protects them
	alignment, err := checkAlignedTx(tx, stationId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !alignment.Aligned {
		tx.Rollback()
		return nil, fmt.Errorf("%w: complete %v before recording control sums",
			models.ErrCycleMisaligned, alignment.Lagging)
	}

	var general models.GeneralReport
	if err := tx.Where("station_id = ? AND report_date = ?", stationId, date).
		First(&general).Error; err != nil {
		tx.Rollback()
		return nil, errors.New("no general report exists for this station and date")
	}

	entry, err := models.LockControlSumTx(ctx, tx, general.ID, category, value, receiptNumber, receivedDate)
	if err != nil {
		if !errors.Is(err, models.ErrControlSumLocked) {
			config.LogError(logger, moduleName, "SetControlSum", "Error locking control sum", category, err)
		}
		tx.Rollback()
		return nil, err
	}

	if err := models.RecordAudit(ctx, tx, models.AuditActionLock, "ControlSumEntry", entry.ID,
		fmt.Sprintf("control sum %s locked for station %d date %s", category, stationId, date.Format("2006-01-02"))); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	config.MetricControlSumsLocked.Inc()
	return entry, nil
}

func validateControlSumCategory(category string) error {
	if category == models.ControlSumCategoryCash {
		return nil
	}
	if channel := strings.TrimPrefix(category, models.TerminalControlSumCategory("")); channel != category && channel != "" {
		return nil
	}
	return errors.New("unknown control sum category; use CASH or TERMINAL:<channel>")
}

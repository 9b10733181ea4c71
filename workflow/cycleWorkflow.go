package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/config"
	"bitbucket.org/mmdatafocus/stationops_backend/models"
	"bitbucket.org/mmdatafocus/stationops_backend/models/reports"
	"bitbucket.org/mmdatafocus/stationops_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const moduleName = "workflow"

// StartCycle opens a reporting cycle for (station, reportDate). The
// alignment gate runs first: a station whose sub-ledgers disagree on their
// latest date must complete the lagging one(s) before a new cycle may begin.
func StartCycle(ctx context.Context, stationId int, reportDate time.Time) (*models.ReportingCycle, error) {
	logger := config.GetLogger()

	station, err := models.GetStation(ctx, stationId)
	if err != nil {
		return nil, err
	}
	reportDate, err = utils.ConvertToDate(reportDate, station.Timezone)
	if err != nil {
		return nil, err
	}

	lock, err := utils.StationLock(ctx, stationId, "cycle", moduleName, "StartCycle")
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

	alignment, err := checkAlignedTx(tx, stationId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !alignment.Aligned {
		tx.Rollback()
		return nil, fmt.Errorf("%w: complete %v before starting a new cycle",
			models.ErrCycleMisaligned, alignment.Lagging)
	}

	// all cursors agree, so any one of them constrains the cycle date
	cursor, err := models.GetReportCursorTx(tx, stationId, models.SubLedgerHose)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if cursor != nil {
		// the cursor row comes back as a UTC instant; put it on the
		// station's calendar before comparing days
		lastDate, err := utils.ConvertToDate(cursor.LastDate, station.Timezone)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if !utils.SameDate(reportDate, NextReportDate(lastDate)) {
			tx.Rollback()
			return nil, models.ErrDateSequenceViolation
		}
	}

	cycle, err := models.CreateReportingCycleTx(ctx, tx, stationId, reportDate)
	if err != nil {
		config.LogError(logger, moduleName, "StartCycle", "Error creating reporting cycle", stationId, err)
		tx.Rollback()
		return nil, err
	}
	if err := models.RecordAudit(ctx, tx, models.AuditActionCreate, "ReportingCycle", cycle.ID,
		fmt.Sprintf("cycle opened for station %d date %s", stationId, reportDate.Format("2006-01-02"))); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return cycle, nil
}

// SubmitPartnerReport records the partner step of a cycle. An empty
// submission (no line with a non-zero quantity) is a skip: no record is
// written, the cursor still advances, and the cycle moves on.
func SubmitPartnerReport(ctx context.Context, cycleId int, input *models.NewPartnerReport) (*models.ReportingCycle, error) {
	logger := config.GetLogger()

	cycle, err := models.GetReportingCycle(ctx, cycleId)
	if err != nil {
		return nil, err
	}

	lock, err := utils.StationLock(ctx, cycle.StationId, "cycle", moduleName, "SubmitPartnerReport")
	if err != nil {
		return nil, err
	}
	defer lock.Release(ctx)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if err := AcquireStationPostingLock(tx, cycle.StationId); err != nil {
		tx.Rollback()
		return nil, err
	}
	defer ReleaseStationPostingLock(tx, cycle.StationId)

	cycle, err = lockCycleTx(tx, cycle.StationId, cycleId, models.CycleStateNotStarted)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	priorDate, err := validateReportDateTx(tx, cycle.StationId, models.SubLedgerPartner, cycle.ReportDate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if input.IsEmpty() {
		if err := models.SkipPartnerReportTx(tx, cycle.StationId, cycle.ReportDate, priorDate); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := models.TransitionCycleTx(tx, cycle, models.CycleStatePartnerDone, map[string]interface{}{
			"PartnerSkipped":   true,
			"PartnerPriorDate": priorDate,
		}); err != nil {
			tx.Rollback()
			return nil, err
		}
		cycle.PartnerSkipped = true
		cycle.PartnerPriorDate = priorDate
		if err := tx.Commit().Error; err != nil {
			return nil, err
		}
		return cycle, nil
	}

	contracts, err := models.GetActiveContracts(ctx, cycle.StationId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	recorder, err := newAttemptRecorder(tx, cycle.StationId, models.SubLedgerPartner, cycle.ReportDate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	write := &partnerWrite{
		ctx: ctx, tx: tx,
		stationId:  cycle.StationId,
		reportDate: cycle.ReportDate,
		priorDate:  priorDate,
		input:      input,
		contracts:  contracts,
	}
	recordId, err := RunWriteAttempt(write, recorder)
	if errors.Is(err, models.ErrWriteIntegrityFailure) {
		// compensation already ran inside the transaction; commit so the
		// attempt trail survives while the record does not
		observeRollback(models.SubLedgerPartner)
		if cerr := tx.Commit().Error; cerr != nil {
			return nil, cerr
		}
		return nil, err
	}
	if err != nil {
		config.LogError(logger, moduleName, "SubmitPartnerReport", "Error writing partner report", cycleId, err)
		tx.Rollback()
		return nil, err
	}

	if err := models.TransitionCycleTx(tx, cycle, models.CycleStatePartnerDone, map[string]interface{}{
		"PartnerReportId":  recordId,
		"PartnerPriorDate": priorDate,
	}); err != nil {
		tx.Rollback()
		return nil, err
	}
	cycle.PartnerReportId = &recordId
	cycle.PartnerPriorDate = priorDate

	if err := models.RecordAudit(ctx, tx, models.AuditActionCreate, "PartnerReport", recordId,
		fmt.Sprintf("partner report for station %d date %s", cycle.StationId, cycle.ReportDate.Format("2006-01-02"))); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	config.MetricReportsCommitted.WithLabelValues(string(models.SubLedgerPartner)).Inc()
	return cycle, nil
}

// SubmitHoseReport records the hose step. Previous readings are carried
// forward from the station's latest hose record and locked once one exists.
func SubmitHoseReport(ctx context.Context, cycleId int, input *models.NewHoseReport) (*models.ReportingCycle, error) {
	logger := config.GetLogger()

	cycle, err := models.GetReportingCycle(ctx, cycleId)
	if err != nil {
		return nil, err
	}
	station, err := models.GetStation(ctx, cycle.StationId)
	if err != nil {
		return nil, err
	}

	lock, err := utils.StationLock(ctx, cycle.StationId, "cycle", moduleName, "SubmitHoseReport")
	if err != nil {
		return nil, err
	}
	defer lock.Release(ctx)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if err := AcquireStationPostingLock(tx, cycle.StationId); err != nil {
		tx.Rollback()
		return nil, err
	}
	defer ReleaseStationPostingLock(tx, cycle.StationId)

	cycle, err = lockCycleTx(tx, cycle.StationId, cycleId, models.CycleStatePartnerDone)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	priorDate, err := validateReportDateTx(tx, cycle.StationId, models.SubLedgerHose, cycle.ReportDate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	priorReport, err := latestHoseReportTx(tx, cycle.StationId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	recorder, err := newAttemptRecorder(tx, cycle.StationId, models.SubLedgerHose, cycle.ReportDate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	write := &hoseWrite{
		ctx: ctx, tx: tx,
		stationId:   cycle.StationId,
		reportDate:  cycle.ReportDate,
		priorDate:   priorDate,
		priorReport: priorReport,
		input:       input,
		hoseCount:   station.HoseCount(),
	}
	recordId, err := RunWriteAttempt(write, recorder)
	if errors.Is(err, models.ErrWriteIntegrityFailure) {
		observeRollback(models.SubLedgerHose)
		if cerr := tx.Commit().Error; cerr != nil {
			return nil, cerr
		}
		return nil, err
	}
	if err != nil {
		config.LogError(logger, moduleName, "SubmitHoseReport", "Error writing hose report", cycleId, err)
		tx.Rollback()
		return nil, err
	}

	if err := models.TransitionCycleTx(tx, cycle, models.CycleStateHoseDone, map[string]interface{}{
		"HoseReportId": recordId,
	}); err != nil {
		tx.Rollback()
		return nil, err
	}
	cycle.HoseReportId = &recordId

	if err := models.RecordAudit(ctx, tx, models.AuditActionCreate, "HoseReport", recordId,
		fmt.Sprintf("hose report for station %d date %s", cycle.StationId, cycle.ReportDate.Format("2006-01-02"))); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	config.MetricReportsCommitted.WithLabelValues(string(models.SubLedgerHose)).Inc()
	return cycle, nil
}

// SubmitGeneralReport records the general step and commits the cycle. Cash
// on hand is derived from the cycle's own hose and partner records plus the
// submitted terminal amounts before the record is written.
func SubmitGeneralReport(ctx context.Context, cycleId int, input *models.NewGeneralReport) (*models.ReportingCycle, error) {
	logger := config.GetLogger()

	cycle, err := models.GetReportingCycle(ctx, cycleId)
	if err != nil {
		return nil, err
	}

	lock, err := utils.StationLock(ctx, cycle.StationId, "cycle", moduleName, "SubmitGeneralReport")
	if err != nil {
		return nil, err
	}
	defer lock.Release(ctx)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if err := AcquireStationPostingLock(tx, cycle.StationId); err != nil {
		tx.Rollback()
		return nil, err
	}
	defer ReleaseStationPostingLock(tx, cycle.StationId)

	cycle, err = lockCycleTx(tx, cycle.StationId, cycleId, models.CycleStateHoseDone)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	priorDate, err := validateReportDateTx(tx, cycle.StationId, models.SubLedgerGeneral, cycle.ReportDate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	cashOnHand, err := deriveCashOnHandTx(tx, cycle, input)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	recorder, err := newAttemptRecorder(tx, cycle.StationId, models.SubLedgerGeneral, cycle.ReportDate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	write := &generalWrite{
		ctx: ctx, tx: tx,
		stationId:  cycle.StationId,
		reportDate: cycle.ReportDate,
		priorDate:  priorDate,
		input:      input,
		cashOnHand: cashOnHand,
	}
	recordId, err := RunWriteAttempt(write, recorder)
	if errors.Is(err, models.ErrWriteIntegrityFailure) {
		observeRollback(models.SubLedgerGeneral)
		if cerr := tx.Commit().Error; cerr != nil {
			return nil, cerr
		}
		return nil, err
	}
	if err != nil {
		config.LogError(logger, moduleName, "SubmitGeneralReport", "Error writing general report", cycleId, err)
		tx.Rollback()
		return nil, err
	}

	if err := models.TransitionCycleTx(tx, cycle, models.CycleStateCommitted, map[string]interface{}{
		"GeneralReportId": recordId,
	}); err != nil {
		tx.Rollback()
		return nil, err
	}
	cycle.GeneralReportId = &recordId

	if err := models.RecordAudit(ctx, tx, models.AuditActionCreate, "GeneralReport", recordId,
		fmt.Sprintf("general report for station %d date %s, cycle committed", cycle.StationId, cycle.ReportDate.Format("2006-01-02"))); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	config.MetricReportsCommitted.WithLabelValues(string(models.SubLedgerGeneral)).Inc()
	return cycle, nil
}

// AbandonCycle compensates whatever the cycle already wrote, in reverse
// order, and closes it. Any session may abandon a cycle it did not start.
func AbandonCycle(ctx context.Context, cycleId int) (*models.ReportingCycle, error) {
	logger := config.GetLogger()

	cycle, err := models.GetReportingCycle(ctx, cycleId)
	if err != nil {
		return nil, err
	}
	if cycle.State.Terminal() {
		return nil, fmt.Errorf("reporting cycle is already %s", cycle.State)
	}

	lock, err := utils.StationLock(ctx, cycle.StationId, "cycle", moduleName, "AbandonCycle")
	if err != nil {
		return nil, err
	}
	defer lock.Release(ctx)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if err := AcquireStationPostingLock(tx, cycle.StationId); err != nil {
		tx.Rollback()
		return nil, err
	}
	defer ReleaseStationPostingLock(tx, cycle.StationId)

	cycle, err = lockCycleTx(tx, cycle.StationId, cycleId, cycle.State)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if cycle.HoseReportId != nil {
		hose, err := hoseReportTx(tx, *cycle.HoseReportId)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := models.CompensateHoseReportTx(tx, hose); err != nil {
			tx.Rollback()
			return nil, err
		}
		config.MetricCompensatingDeletes.WithLabelValues(string(models.SubLedgerHose)).Inc()
	}

	if cycle.PartnerSkipped {
		if err := models.CompensateSkippedPartnerTx(tx, cycle.StationId, cycle.PartnerPriorDate); err != nil {
			tx.Rollback()
			return nil, err
		}
	} else if cycle.PartnerReportId != nil {
		partner, err := partnerReportTx(tx, *cycle.PartnerReportId)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := models.CompensatePartnerReportTx(tx, partner, cycle.PartnerPriorDate); err != nil {
			tx.Rollback()
			return nil, err
		}
		config.MetricCompensatingDeletes.WithLabelValues(string(models.SubLedgerPartner)).Inc()
	}

	if err := models.TransitionCycleTx(tx, cycle, models.CycleStateAbandoned, nil); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := models.RecordAudit(ctx, tx, models.AuditActionAbandon, "ReportingCycle", cycle.ID,
		fmt.Sprintf("cycle abandoned for station %d date %s", cycle.StationId, cycle.ReportDate.Format("2006-01-02"))); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		config.LogError(logger, moduleName, "AbandonCycle", "Error committing abandon", cycleId, err)
		return nil, err
	}
	config.MetricCyclesAbandoned.Inc()
	return cycle, nil
}

// CycleStatus tells a resuming session where an open cycle stands and which
// sub-ledger comes next.
type CycleStatus struct {
	Cycle    *models.ReportingCycle `json:"cycle"`
	NextStep string                 `json:"next_step"`
}

// ResumeCycle finds the station's open cycle, if any. The cycle row is the
// full state; no session-local memory is needed to continue it.
func ResumeCycle(ctx context.Context, stationId int) (*CycleStatus, error) {
	cycle, err := models.GetOpenReportingCycle(ctx, stationId)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, nil
	}
	return &CycleStatus{Cycle: cycle, NextStep: nextStepFor(cycle.State)}, nil
}

func nextStepFor(state models.CycleState) string {
	switch state {
	case models.CycleStateNotStarted:
		return "partner"
	case models.CycleStatePartnerDone:
		return "hose"
	case models.CycleStateHoseDone:
		return "general"
	}
	return ""
}

// AbandonStaleCycles compensates every non-terminal cycle untouched for
// olderThan. Run by cmd/cycle-sweeper so recovery never depends on the
// session that started a cycle.
func AbandonStaleCycles(ctx context.Context, olderThan time.Duration) (int, error) {
	logger := config.GetLogger()
	cutoff := time.Now().Add(-olderThan)
	stale, err := models.GetStaleReportingCycles(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	abandoned := 0
	for _, cycle := range stale {
		if _, err := AbandonCycle(ctx, cycle.ID); err != nil {
			config.LogError(logger, moduleName, "AbandonStaleCycles", "Error abandoning stale cycle", cycle.ID, err)
			continue
		}
		abandoned++
	}
	return abandoned, nil
}

/* tx helpers */

// lockCycleTx reloads the station's open cycle under FOR UPDATE and checks
// it is the one the caller is working on, in the state the step expects.
func lockCycleTx(tx *gorm.DB, stationId int, cycleId int, expect models.CycleState) (*models.ReportingCycle, error) {
	cycle, err := models.GetOpenReportingCycleTx(tx, stationId, true)
	if err != nil {
		return nil, err
	}
	if cycle == nil || cycle.ID != cycleId {
		return nil, errors.New("reporting cycle is no longer open; start or resume a cycle first")
	}
	if cycle.State != expect {
		return nil, fmt.Errorf("reporting cycle is at %s, expected %s; resume from there", cycle.State, expect)
	}
	return cycle, nil
}

func latestHoseReportTx(tx *gorm.DB, stationId int) (*models.HoseReport, error) {
	var report models.HoseReport
	err := tx.Preload("Hoses").
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

func hoseReportTx(tx *gorm.DB, id int) (*models.HoseReport, error) {
	var report models.HoseReport
	if err := tx.Preload("Hoses").First(&report, id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func partnerReportTx(tx *gorm.DB, id int) (*models.PartnerReport, error) {
	var report models.PartnerReport
	if err := tx.Preload("Entries").First(&report, id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// deriveCashOnHandTx prices the cycle's own hose and partner records against
// the submitted gas price and terminal amounts.
func deriveCashOnHandTx(tx *gorm.DB, cycle *models.ReportingCycle, input *models.NewGeneralReport) (cash decimal.Decimal, err error) {
	var hose *models.HoseReport
	if cycle.HoseReportId != nil {
		hose, err = hoseReportTx(tx, *cycle.HoseReportId)
		if err != nil {
			return cash, err
		}
	}
	var partner *models.PartnerReport
	if cycle.PartnerReportId != nil {
		partner, err = partnerReportTx(tx, *cycle.PartnerReportId)
		if err != nil {
			return cash, err
		}
	}

	terminals, err := models.ReceiveTerminalAmounts(input.Terminals)
	if err != nil {
		return cash, err
	}
	terminalTotal := decimal.Zero
	for _, t := range terminals {
		terminalTotal = terminalTotal.Add(t.Amount)
	}

	return reports.CashOnHand(reports.HoseTotal(hose), reports.PartnerTotal(partner),
		input.UnitPrice, terminalTotal), nil
}

/* guarded writes */

type partnerWrite struct {
	ctx        context.Context
	tx         *gorm.DB
	stationId  int
	reportDate time.Time
	priorDate  *time.Time
	input      *models.NewPartnerReport
	contracts  []*models.Contract
	report     *models.PartnerReport
}

func (w *partnerWrite) Write() (int, error) {
	report, err := models.CreatePartnerReportTx(w.ctx, w.tx, w.stationId, w.reportDate, w.priorDate, w.input, w.contracts)
	if err != nil {
		return 0, err
	}
	w.report = report
	return report.ID, nil
}

func (w *partnerWrite) Verify(recordId int) error {
	return verifyPartnerRecord(w.tx, recordId)
}

func (w *partnerWrite) Compensate(recordId int) error {
	return models.CompensatePartnerReportTx(w.tx, w.report, w.priorDate)
}

type hoseWrite struct {
	ctx         context.Context
	tx          *gorm.DB
	stationId   int
	reportDate  time.Time
	priorDate   *time.Time
	priorReport *models.HoseReport
	input       *models.NewHoseReport
	hoseCount   int
	report      *models.HoseReport
}

func (w *hoseWrite) Write() (int, error) {
	report, err := models.CreateHoseReportTx(w.ctx, w.tx, w.stationId, w.reportDate, w.priorDate, w.priorReport, w.input, w.hoseCount)
	if err != nil {
		return 0, err
	}
	w.report = report
	return report.ID, nil
}

func (w *hoseWrite) Verify(recordId int) error {
	return verifyHoseRecord(w.tx, recordId, w.hoseCount)
}

func (w *hoseWrite) Compensate(recordId int) error {
	return models.CompensateHoseReportTx(w.tx, w.report)
}

type generalWrite struct {
	ctx        context.Context
	tx         *gorm.DB
	stationId  int
	reportDate time.Time
	priorDate  *time.Time
	input      *models.NewGeneralReport
	cashOnHand decimal.Decimal
	report     *models.GeneralReport
}

func (w *generalWrite) Write() (int, error) {
	report, err := models.CreateGeneralReportTx(w.ctx, w.tx, w.stationId, w.reportDate, w.priorDate, w.input, w.cashOnHand)
	if err != nil {
		return 0, err
	}
	w.report = report
	return report.ID, nil
}

func (w *generalWrite) Verify(recordId int) error {
	return verifyGeneralRecord(w.tx, recordId)
}

func (w *generalWrite) Compensate(recordId int) error {
	return models.CompensateGeneralReportTx(w.tx, w.report)
}

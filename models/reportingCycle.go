package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReportingCycle is the persisted state machine for one partner -> hose ->
// general reporting sequence. Because it lives in the store, any session can
// resume an interrupted cycle or compensate an abandoned one; recovery does
// not depend on the client that started it.
type ReportingCycle struct {
	ID              int        `gorm:"primary_key" json:"id"`
	StationId       int        `gorm:"index;not null" json:"station_id" binding:"required"`
	ReportDate      time.Time  `gorm:"not null" json:"report_date" binding:"required"`
	State           CycleState `gorm:"size:20;not null;index" json:"state"`
	PartnerSkipped  bool       `gorm:"not null;default:false" json:"partner_skipped"`
	// PartnerPriorDate is the partner cursor date before this cycle touched
	// it. Needed to rewind a skip, which advances the cursor with no record
	// to rewind from.
	PartnerPriorDate *time.Time `json:"partner_prior_date"`
	PartnerReportId *int       `json:"partner_report_id"`
	HoseReportId    *int       `json:"hose_report_id"`
	GeneralReportId *int       `json:"general_report_id"`
	StartedBy       int        `gorm:"not null" json:"started_by"`
	StartedByName   string     `gorm:"size:100" json:"started_by_name"`
	OriginIp        string     `gorm:"size:45" json:"origin_ip"`
	CorrelationId   string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *ReportingCycle) GetId() int {
	return c.ID
}

// CreateReportingCycleTx opens a cycle row. At most one non-terminal cycle
// per station is allowed; callers hold the station posting lock.
func CreateReportingCycleTx(ctx context.Context, tx *gorm.DB, stationId int, reportDate time.Time) (*ReportingCycle, error) {
	var open int64
	if err := tx.Model(&ReportingCycle{}).
		Where("station_id = ? AND state NOT IN ?", stationId,
			[]CycleState{CycleStateCommitted, CycleStateAbandoned}).
		Count(&open).Error; err != nil {
		return nil, err
	}
	if open > 0 {
		return nil, fmt.Errorf("an unfinished reporting cycle already exists for this station; resume or abandon it first")
	}

	startedBy, startedByName, originIp, correlationId := auditStamp(ctx)
	cycle := ReportingCycle{
		StationId:     stationId,
		ReportDate:    reportDate,
		State:         CycleStateNotStarted,
		StartedBy:     startedBy,
		StartedByName: startedByName,
		OriginIp:      originIp,
		CorrelationId: correlationId,
	}
	if err := tx.Create(&cycle).Error; err != nil {
		return nil, err
	}
	return &cycle, nil
}

// TransitionCycleTx moves the cycle to next, guarded by the FSM and by the
// current state in the WHERE clause so concurrent sessions cannot double-apply.
func TransitionCycleTx(tx *gorm.DB, cycle *ReportingCycle, next CycleState, updates map[string]interface{}) error {
	if !cycle.State.CanTransitionTo(next) {
		return fmt.Errorf("reporting cycle cannot move from %s to %s", cycle.State, next)
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["State"] = next

	result := tx.Model(&ReportingCycle{}).
		Where("id = ? AND state = ?", cycle.ID, cycle.State).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("reporting cycle was advanced by another session; reload and retry")
	}
	cycle.State = next
	return nil
}

// GetOpenReportingCycle returns the station's non-terminal cycle, or nil.
func GetOpenReportingCycle(ctx context.Context, stationId int) (*ReportingCycle, error) {
	db := config.GetDB()
	return GetOpenReportingCycleTx(db.WithContext(ctx), stationId, false)
}

func GetOpenReportingCycleTx(tx *gorm.DB, stationId int, forUpdate bool) (*ReportingCycle, error) {
	var cycle ReportingCycle
	dbCtx := tx
	if forUpdate {
		dbCtx = dbCtx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := dbCtx.
		Where("station_id = ? AND state NOT IN ?", stationId,
			[]CycleState{CycleStateCommitted, CycleStateAbandoned}).
		Order("id DESC").First(&cycle).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cycle, nil
}

func GetReportingCycle(ctx context.Context, id int) (*ReportingCycle, error) {
	db := config.GetDB()
	var cycle ReportingCycle
	err := db.WithContext(ctx).First(&cycle, id).Error
	if err != nil {
		return nil, err
	}
	return &cycle, nil
}

// GetStaleReportingCycles lists non-terminal cycles untouched since cutoff;
// the sweeper abandons and compensates them.
func GetStaleReportingCycles(ctx context.Context, cutoff time.Time) ([]*ReportingCycle, error) {
	db := config.GetDB()
	var results []*ReportingCycle
	err := db.WithContext(ctx).
		Where("state NOT IN ? AND updated_at < ?",
			[]CycleState{CycleStateCommitted, CycleStateAbandoned}, cutoff).
		Order("updated_at").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/config"
	"bitbucket.org/mmdatafocus/stationops_backend/utils"
)

// Station is owned by the station registry; the ledger only ever reads it.
// Dispenser count derives the hose count: two hoses per dispenser.
type Station struct {
	ID         int       `gorm:"primary_key" json:"id"`
	Name       string    `gorm:"size:255;not null;unique" json:"name" binding:"required"`
	Dispensers int       `gorm:"not null" json:"dispensers" binding:"required"`
	Timezone   string    `gorm:"size:50" json:"timezone"`
	IsActive   *bool     `gorm:"not null" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewStation struct {
	Name       string `json:"name" binding:"required"`
	Dispensers int    `json:"dispensers" binding:"required"`
	Timezone   string `json:"timezone"`
	IsActive   *bool  `json:"is_active"`
}

func (s *Station) GetId() int {
	return s.ID
}

func (s Station) HoseCount() int {
	return s.Dispensers * 2
}

// validate input for both create & update. (id = 0 for create)

func (input *NewStation) validate(ctx context.Context, id int) error {
	if err := utils.ValidateUnique[Station](ctx, "name", input.Name, id); err != nil {
		return err
	}
	if input.Dispensers <= 0 {
		return errors.New("dispenser count must be positive")
	}
	if input.Timezone != "" {
		if _, err := time.LoadLocation(input.Timezone); err != nil {
			return errors.New("unknown timezone")
		}
	}
	return nil
}

func CreateStation(ctx context.Context, input *NewStation) (*Station, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	station := Station{
		Name:       input.Name,
		Dispensers: input.Dispensers,
		Timezone:   input.Timezone,
		IsActive:   input.IsActive,
	}
	if station.IsActive == nil {
		station.IsActive = utils.NewTrue()
	}

	db := config.GetDB()
	// db action
	err := db.WithContext(ctx).Create(&station).Error
	if err != nil {
		return nil, err
	}
	return &station, nil
}

func UpdateStation(ctx context.Context, id int, input *NewStation) (*Station, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	station, err := utils.FetchModel[Station](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	// db action
	err = db.WithContext(ctx).Model(&station).Updates(map[string]interface{}{
		"Name":       input.Name,
		"Dispensers": input.Dispensers,
		"Timezone":   input.Timezone,
		"IsActive":   input.IsActive,
	}).Error
	if err != nil {
		return nil, err
	}
	return station, nil
}

func DeleteStation(ctx context.Context, id int) (*Station, error) {

	db := config.GetDB()
	station, err := utils.FetchModel[Station](ctx, id)
	if err != nil {
		return nil, err
	}

	// Do not delete once any sub-ledger has records for the station.
	var count int64
	if err = db.WithContext(ctx).Model(&ReportCursor{}).
		Where("station_id = ?", station.ID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("station has ledger records")
	}

	// db action
	err = db.WithContext(ctx).Delete(&station).Error
	if err != nil {
		return nil, err
	}
	return station, nil
}

func GetStation(ctx context.Context, id int) (*Station, error) {
	return utils.FetchModel[Station](ctx, id)
}

// StationDay normalizes t to the station's calendar date. Report rows are
// keyed on this instant, so every date arriving from outside the posting
// workflow must pass through here before it is compared against report_date.
// Already-normalized dates pass through unchanged.
func StationDay(ctx context.Context, stationId int, t time.Time) (time.Time, error) {
	station, err := GetStation(ctx, stationId)
	if err != nil {
		return t, err
	}
	return utils.ConvertToDate(t, station.Timezone)
}

// stationDayRange normalizes both ends of a date window with one station
// lookup.
func stationDayRange(ctx context.Context, stationId int, from, to time.Time) (time.Time, time.Time, error) {
	station, err := GetStation(ctx, stationId)
	if err != nil {
		return from, to, err
	}
	from, err = utils.ConvertToDate(from, station.Timezone)
	if err != nil {
		return from, to, err
	}
	to, err = utils.ConvertToDate(to, station.Timezone)
	return from, to, err
}

func GetStationsAll(ctx context.Context, name *string) ([]*Station, error) {
	db := config.GetDB()
	var results []*Station

	dbCtx := db.WithContext(ctx)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	// db query
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

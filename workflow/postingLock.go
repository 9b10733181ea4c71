package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireStationPostingLock serializes ledger writes per station across
// instances using MySQL advisory locks. The redis lock taken alongside it is
// best effort; this one is the authority.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the posting transaction.
func AcquireStationPostingLock(tx *gorm.DB, stationId int) error {
	lockName := fmt.Sprintf("posting:station:%d", stationId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock for station_id=%d", stationId)
	}
	return nil
}

func ReleaseStationPostingLock(tx *gorm.DB, stationId int) {
	lockName := fmt.Sprintf("posting:station:%d", stationId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

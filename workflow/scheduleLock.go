package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireScheduleLock serializes phase-schedule mutations across instances
// using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that runs the scheduling transaction.
func AcquireScheduleLock(tx *gorm.DB) error {
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", scheduleLockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire phase schedule lock")
	}
	return nil
}

func ReleaseScheduleLock(tx *gorm.DB) {
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", scheduleLockName).Scan(&_ok).Error
}

const scheduleLockName = "phase_schedule"

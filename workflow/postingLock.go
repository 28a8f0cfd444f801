package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireIngredientPostingLock serializes posting per ingredient across
// instances using MySQL advisory locks. Two concurrent mutations to the same
// ingredient serialize here; different ingredients proceed independently.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the posting transaction.
func AcquireIngredientPostingLock(tx *gorm.DB, businessId string, ingredientId int) error {
	lockName := fmt.Sprintf("posting:%s:%d", businessId, ingredientId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock for business_id=%s ingredient_id=%d", businessId, ingredientId)
	}
	return nil
}

func ReleaseIngredientPostingLock(tx *gorm.DB, businessId string, ingredientId int) {
	lockName := fmt.Sprintf("posting:%s:%d", businessId, ingredientId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

package workflow

import (
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/kitchen_backend/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// RegisterPostingKey claims a client idempotency key inside the posting
// transaction. The key row commits (or rolls back) with the posting, so a
// retried request after a failure is not blocked, while a retry of a
// committed posting is rejected instead of double-posting.
func RegisterPostingKey(tx *gorm.DB, businessId, operation, clientKey string) error {
	if clientKey == "" {
		return nil
	}
	key := models.IdempotencyKey{
		BusinessId: businessId,
		Operation:  operation,
		ClientKey:  clientKey,
		Status:     models.IdempotencyStatusSucceeded,
	}
	if err := tx.Create(&key).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return fmt.Errorf("%w: operation=%s key=%s", models.ErrDuplicatePosting, operation, clientKey)
		}
		return err
	}
	return nil
}

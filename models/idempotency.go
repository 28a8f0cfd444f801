package models

import "time"

type IdempotencyStatus string

const (
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
)

// IdempotencyKey claims a client-supplied posting key. The row is inserted in
// the posting transaction itself, so it only exists for postings that
// committed; a failed posting never burns its key.
type IdempotencyKey struct {
	ID         int               `gorm:"primary_key" json:"id"`
	BusinessId string            `gorm:"uniqueIndex:idx_biz_op_key;size:100;not null" json:"business_id"`
	Operation  string            `gorm:"uniqueIndex:idx_biz_op_key;size:50;not null" json:"operation"`
	ClientKey  string            `gorm:"uniqueIndex:idx_biz_op_key;size:100;not null" json:"client_key"`
	Status     IdempotencyStatus `gorm:"size:20;not null" json:"status"`
	CreatedAt  time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

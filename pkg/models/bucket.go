package models

import "time"

// StorageBucket is a named container of stored files.
type StorageBucket struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Owner       string    `db:"owner" json:"owner"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// BucketListResponse represents a list of buckets.
type BucketListResponse struct {
	Buckets []StorageBucket `json:"buckets"`
}

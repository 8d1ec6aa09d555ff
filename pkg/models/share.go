package models

import "time"

// ShareRecord links one email address to a shared folder path.
type ShareRecord struct {
	ID         int64     `db:"id"`
	FolderPath string    `db:"folder_path"`
	Email      string    `db:"email"`
	CreatedAt  time.Time `db:"created_at"`
}

// ShareRequest asks for a folder to be shared with a list of addresses.
type ShareRequest struct {
	FolderPath string   `json:"folderpath" validate:"required,folderurl"`
	Emails     []string `json:"emails" validate:"required,min=1,dive,notblank"`
}

// CreateBucketRequest is the body of an admin bucket creation.
type CreateBucketRequest struct {
	Name        string `json:"name" validate:"notblank"`
	Description string `json:"description"`
}

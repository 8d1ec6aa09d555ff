package models

import "time"

// StoredFile is the persisted record of an uploaded file. BucketName is
// populated from a join on reads and is not a column of stored_files.
type StoredFile struct {
	ID          int64     `db:"id"`
	BucketID    int64     `db:"bucket_id"`
	BucketName  string    `db:"bucket_name"`
	Filename    string    `db:"filename"`
	Size        int64     `db:"size"`
	ContentType string    `db:"content_type"`
	StoragePath string    `db:"storage_path"`
	Owner       string    `db:"owner"`
	Version     int64     `db:"version"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// FileMetadata is a single key/value pair attached to a stored file.
type FileMetadata struct {
	ID           int64  `db:"id"`
	StoredFileID int64  `db:"stored_file_id"`
	Key          string `db:"meta_key"`
	Value        string `db:"meta_value"`
}

// FileResponse is the client facing projection of a stored file.
type FileResponse struct {
	ID          int64             `json:"id"`
	Filename    string            `json:"filename"`
	Size        int64             `json:"size"`
	ContentType string            `json:"content_type"`
	DownloadURL string            `json:"download_url"`
	Metadata    map[string]string `json:"metadata"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Owner       string            `json:"owner"`
	BucketName  string            `json:"bucket_name"`
	Version     int64             `json:"version"`
}

// FilePage is one page of an owner's files.
type FilePage struct {
	Files []FileResponse `json:"files"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
	Total int64          `json:"total"`
}

// UpdateMetadataRequest is the body of a metadata replace.
type UpdateMetadataRequest struct {
	Metadata map[string]string `json:"metadata" validate:"required"`
}

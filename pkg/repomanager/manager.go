// Package repomanager vends SQL repositories bound to a database handle or
// an open transaction.
package repomanager

import (
	"filevault/pkg/bucket"
	"filevault/pkg/database"
	"filevault/pkg/files"
	"filevault/pkg/metadata"
	"filevault/pkg/share"
)

// Manager builds SQL repositories.
type Manager struct{}

// New returns a Manager.
func New() *Manager {
	return &Manager{}
}

// Buckets returns a bucket.Repository bound to db.
func (m *Manager) Buckets(db database.DBTX) bucket.Repository {
	return bucket.NewSQLRepository(db)
}

// Files returns a files.Repository bound to db.
func (m *Manager) Files(db database.DBTX) files.Repository {
	return files.NewSQLRepository(db)
}

// Metadata returns a metadata.Repository bound to db.
func (m *Manager) Metadata(db database.DBTX) metadata.Repository {
	return metadata.NewSQLRepository(db)
}

// Shares returns a share.Repository bound to db.
func (m *Manager) Shares(db database.DBTX) share.Repository {
	return share.NewSQLRepository(db)
}

package memory

import (
	"testing"

	"filevault/pkg/content"
	"filevault/pkg/content/contenttest"
)

func TestMemoryStore(t *testing.T) {
	suite := &contenttest.StoreTestSuite{
		NewStore: func(*testing.T) content.Store { return New() },
	}
	suite.Run(t)
}

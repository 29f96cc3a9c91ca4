package services

import (
	"testing"

	"github.com/codeready-toolchain/deepsoc/pkg/database"
	testdb "github.com/codeready-toolchain/deepsoc/test/database"
)

// testDBClient is a thin alias over testdb.NewTestClient so every service
// test in this package shares one spelling for standing up a disposable
// database.
func testDBClient(t *testing.T) *database.Client {
	t.Helper()
	return testdb.NewTestClient(t)
}

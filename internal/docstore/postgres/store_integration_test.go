//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"opsdesk/internal/docstore"
	"opsdesk/internal/docstore/docstoretest"
	"opsdesk/internal/docstore/postgres"
	"opsdesk/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	pg := containers.GetPostgres(t)
	suite.Run(t, &docstoretest.Suite{
		NewStore: func() docstore.Store[*docstoretest.Widget] {
			if err := pg.TruncateTables(context.Background(), "documents"); err != nil {
				t.Fatalf("truncate: %v", err)
			}
			return postgres.New[*docstoretest.Widget](pg.DB, docstoretest.Schema)
		},
	})
}

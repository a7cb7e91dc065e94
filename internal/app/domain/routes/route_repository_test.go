package routes

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
)

func newMockRepo(t *testing.T) (*RepositoryImpl, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock, zap.NewNop()), mock
}

func TestIncrementShares(t *testing.T) {
	routeID := uuid.New()
	stmt := regexp.QuoteMeta("UPDATE routes SET share_count = share_count + 1 WHERE id = $1 AND is_public RETURNING share_count")

	t.Run("public route", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(stmt).WithArgs(routeID).
			WillReturnRows(pgxmock.NewRows([]string{"share_count"}).AddRow(int64(7)))

		count, err := repo.IncrementShares(context.Background(), routeID)
		require.NoError(t, err)
		assert.Equal(t, int64(7), count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no public route matched", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(stmt).WithArgs(routeID).WillReturnError(pgx.ErrNoRows)

		_, err := repo.IncrementShares(context.Background(), routeID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestIncrementViews(t *testing.T) {
	repo, mock := newMockRepo(t)
	routeID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE routes SET view_count = view_count + 1 WHERE id = $1")).
		WithArgs(routeID).
		WillReturnError(errors.New("conn closed"))

	err := repo.IncrementViews(context.Background(), routeID)
	assert.ErrorContains(t, err, "failed to increment views")
	assert.NoError(t, mock.ExpectationsWereMet())
}

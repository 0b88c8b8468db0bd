package store_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/access-status-service/internal/models"
	"github.com/PratikDhanave/access-status-service/internal/store"
)

// openTestSQLite returns an in-memory SQLite store with the production
// schema. Each test gets its own database; the shared-cache URI keeps it
// alive for the lifetime of the pool.
func openTestSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		name,
	)
	st, err := store.OpenSQLiteDSN(context.Background(), dsn)
	require.NoError(t, err)
	require.NoError(t, st.EnsureSchema(context.Background()))

	t.Cleanup(st.Close)
	return st
}

func status(c models.StatusCategory, at time.Time) models.Status {
	_, label := models.UpdateUnknown.Category()
	switch c {
	case models.StatusBroken:
		_, label = models.UpdateNew.Category()
	case models.StatusInProgress:
		_, label = models.UpdateInProgress.Category()
	case models.StatusFixed:
		_, label = models.UpdateResolved.Category()
	}
	return models.Status{Category: c, Label: label, Timestamp: at, Notes: c.String()}
}

// exerciseStore runs the same contract checks against any Store.
func exerciseStore(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.AddAccessPoint(ctx, 7, "elevator", "Library East"))

	var firstReport models.Report
	err := st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, created, err := tx.EnsureReport(ctx, "WOT1234567")
		require.NoError(t, err)
		require.True(t, created)
		require.NotNil(t, r.Ref)
		require.Equal(t, "WOT1234567", *r.Ref)
		firstReport = r

		again, created, err := tx.EnsureReport(ctx, "WOT1234567")
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, r.ID, again.ID)

		linked, err := tx.Link(ctx, 7, r.ID)
		require.NoError(t, err)
		require.True(t, linked)

		linked, err = tx.Link(ctx, 7, r.ID)
		require.NoError(t, err)
		require.False(t, linked, "relinking must be a no-op")

		s1 := status(models.StatusBroken, base)
		s1.ReportID = r.ID
		require.NoError(t, tx.InsertStatus(ctx, &s1))
		require.NotZero(t, s1.ID)

		s2 := status(models.StatusFixed, base.Add(time.Hour))
		s2.ReportID = r.ID
		return tx.InsertStatus(ctx, &s2)
	})
	require.NoError(t, err)

	err = st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		latest, err := tx.LatestStatus(ctx, 7)
		require.NoError(t, err)
		require.NotNil(t, latest)
		require.Equal(t, models.StatusFixed, latest.Category)
		require.True(t, latest.Timestamp.Equal(base.Add(time.Hour)))

		rep, err := tx.LatestReport(ctx, 7)
		require.NoError(t, err)
		require.NotNil(t, rep)
		require.Equal(t, firstReport.ID, rep.ID)

		hist, err := tx.Statuses(ctx, firstReport.ID)
		require.NoError(t, err)
		require.Len(t, hist, 2)
		require.Equal(t, models.StatusBroken, hist[0].Category)

		none, err := tx.LatestStatus(ctx, 999)
		require.NoError(t, err)
		require.Nil(t, none)

		missing, err := tx.ReportByID(ctx, 424242)
		require.NoError(t, err)
		require.Nil(t, missing)

		orphan, err := tx.CreateReport(ctx)
		require.NoError(t, err)
		require.Nil(t, orphan.Ref)
		require.NotEqual(t, firstReport.ID, orphan.ID)

		require.ErrorIs(t, tx.LockAccessPoint(ctx, 999), store.ErrNotFound)
		require.NoError(t, tx.LockAccessPoint(ctx, 7))
		return nil
	})
	require.NoError(t, err)
}

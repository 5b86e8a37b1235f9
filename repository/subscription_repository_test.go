package repository

import (
	"testing"
	"time"

	"github.com/amirphl/Hachiko/models"
	testingutil "github.com/amirphl/Hachiko/testing"
	"github.com/amirphl/Hachiko/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindDue(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		repo := NewSubscriptionRepository(testDB.DB)

		team, err := fixtures.CreateTestTeam()
		require.NoError(t, err)
		report, err := fixtures.CreateTestReport(team.ID, "Weekly revenue")
		require.NoError(t, err)
		deletedReport, err := fixtures.CreateTestReport(team.ID, "Retired report")
		require.NoError(t, err)
		deletedReport.Deleted = true
		require.NoError(t, testDB.DB.Save(deletedReport).Error)

		due, err := fixtures.CreateTestEmailSubscription(team.ID, report.ID, []string{"a@example.com"})
		require.NoError(t, err)

		notYet, err := fixtures.CreateTestEmailSubscription(team.ID, report.ID, []string{"b@example.com"})
		require.NoError(t, err)
		notYet.NextDueAt = utils.UTCNowAddPtr(time.Hour)
		require.NoError(t, testDB.DB.Save(notYet).Error)

		exhausted, err := fixtures.CreateTestEmailSubscription(team.ID, report.ID, []string{"c@example.com"})
		require.NoError(t, err)
		exhausted.NextDueAt = nil
		require.NoError(t, testDB.DB.Model(exhausted).Update("next_due_at", nil).Error)

		gone, err := fixtures.CreateTestEmailSubscription(team.ID, report.ID, []string{"d@example.com"})
		require.NoError(t, err)
		gone.Deleted = true
		require.NoError(t, testDB.DB.Save(gone).Error)

		// Due, but its target report is gone
		_, err = fixtures.CreateTestEmailSubscription(team.ID, deletedReport.ID, []string{"e@example.com"})
		require.NoError(t, err)

		found, err := repo.FindDue(ctx, utils.UTCNow(), 0)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, due.ID, found[0].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestFindDueOrderAndLimit(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		repo := NewSubscriptionRepository(testDB.DB)

		team, err := fixtures.CreateTestTeam()
		require.NoError(t, err)
		report, err := fixtures.CreateTestReport(team.ID, "Weekly revenue")
		require.NoError(t, err)

		// Three due rows with distinct due times, created out of order
		var ids []uint
		for _, behind := range []time.Duration{2 * time.Hour, 3 * time.Hour, time.Hour} {
			sub, err := fixtures.CreateTestEmailSubscription(team.ID, report.ID, []string{"a@example.com"})
			require.NoError(t, err)
			sub.NextDueAt = utils.UTCNowAddPtr(-behind)
			require.NoError(t, testDB.DB.Save(sub).Error)
			ids = append(ids, sub.ID)
		}

		found, err := repo.FindDue(ctx, utils.UTCNow(), 2)
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, ids[1], found[0].ID)
		assert.Equal(t, ids[0], found[1].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestAdvanceNextDue(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		repo := NewSubscriptionRepository(testDB.DB)

		team, err := fixtures.CreateTestTeam()
		require.NoError(t, err)
		report, err := fixtures.CreateTestReport(team.ID, "Weekly revenue")
		require.NoError(t, err)
		sub, err := fixtures.CreateTestEmailSubscription(team.ID, report.ID, []string{"a@example.com"})
		require.NoError(t, err)

		stored, err := repo.ByUUID(ctx, sub.UUID.String())
		require.NoError(t, err)
		require.NotNil(t, stored.NextDueAt)
		expected := *stored.NextDueAt

		next := utils.UTCNowAdd(24 * time.Hour)
		require.NoError(t, repo.AdvanceNextDue(ctx, sub.ID, &expected, &next))

		reloaded, err := repo.ByUUID(ctx, sub.UUID.String())
		require.NoError(t, err)
		require.NotNil(t, reloaded.NextDueAt)
		assert.WithinDuration(t, next, *reloaded.NextDueAt, time.Microsecond)

		// The stale expected value no longer matches, so the row keeps the
		// newer due time.
		stale := utils.UTCNowAdd(48 * time.Hour)
		require.NoError(t, repo.AdvanceNextDue(ctx, sub.ID, &expected, &stale))

		reloaded, err = repo.ByUUID(ctx, sub.UUID.String())
		require.NoError(t, err)
		require.NotNil(t, reloaded.NextDueAt)
		assert.WithinDuration(t, next, *reloaded.NextDueAt, time.Microsecond)
		return nil
	})
	require.NoError(t, err)
}

func TestAdvanceNextDueClears(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		repo := NewSubscriptionRepository(testDB.DB)

		team, err := fixtures.CreateTestTeam()
		require.NoError(t, err)
		report, err := fixtures.CreateTestReport(team.ID, "Weekly revenue")
		require.NoError(t, err)
		sub, err := fixtures.CreateTestEmailSubscription(team.ID, report.ID, []string{"a@example.com"})
		require.NoError(t, err)

		stored, err := repo.ByUUID(ctx, sub.UUID.String())
		require.NoError(t, err)
		expected := *stored.NextDueAt

		require.NoError(t, repo.AdvanceNextDue(ctx, sub.ID, &expected, nil))

		reloaded, err := repo.ByUUID(ctx, sub.UUID.String())
		require.NoError(t, err)
		assert.Nil(t, reloaded.NextDueAt)
		return nil
	})
	require.NoError(t, err)
}

func TestByUUID(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		repo := NewSubscriptionRepository(testDB.DB)

		team, err := fixtures.CreateTestTeam()
		require.NoError(t, err)
		report, err := fixtures.CreateTestReport(team.ID, "Weekly revenue")
		require.NoError(t, err)
		sub, err := fixtures.CreateTestEmailSubscription(team.ID, report.ID, []string{"a@example.com"})
		require.NoError(t, err)

		found, err := repo.ByUUID(ctx, sub.UUID.String())
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, sub.ID, found.ID)
		assert.Equal(t, models.ChannelEmail, found.Channel)

		missing, err := repo.ByUUID(ctx, "00000000-0000-0000-0000-000000000000")
		require.NoError(t, err)
		assert.Nil(t, missing)

		_, err = repo.ByUUID(ctx, "not-a-uuid")
		assert.Error(t, err)
		return nil
	})
	require.NoError(t, err)
}

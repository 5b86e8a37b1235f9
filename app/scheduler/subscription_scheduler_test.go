// Package scheduler
package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/Hachiko/app/services"
	businessflow "github.com/amirphl/Hachiko/business_flow"
	"github.com/amirphl/Hachiko/models"
	"github.com/amirphl/Hachiko/repository"
	testingutil "github.com/amirphl/Hachiko/testing"
	"github.com/amirphl/Hachiko/utils"
)

type recordingDeliveryFlow struct {
	mu     sync.Mutex
	ids    []uint
	sweeps []*businessflow.SweepContext
}

func (f *recordingDeliveryFlow) Deliver(ctx context.Context, sweepCtx *businessflow.SweepContext, subscriptionID uint, opts businessflow.DeliverOptions) (*models.DeliveryLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, subscriptionID)
	f.sweeps = append(f.sweeps, sweepCtx)
	return nil, nil
}

func (f *recordingDeliveryFlow) DeliverByUUID(ctx context.Context, sweepCtx *businessflow.SweepContext, uuid string, opts businessflow.DeliverOptions) (*models.DeliveryLog, error) {
	return nil, nil
}

func (f *recordingDeliveryFlow) delivered() []uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint(nil), f.ids...)
}

func (f *recordingDeliveryFlow) sweepContexts() []*businessflow.SweepContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*businessflow.SweepContext(nil), f.sweeps...)
}

func newTestScheduler(t *testing.T, testDB *testingutil.TestDB, deliveries businessflow.DeliveryFlow, sweepLimit int) *SubscriptionScheduler {
	return NewSubscriptionScheduler(
		repository.NewSubscriptionRepository(testDB.DB),
		repository.NewTeamRepository(testDB.DB),
		services.NewTeamActivityCache(nil, "hachiko_test", time.Minute),
		deliveries,
		testDB.DB,
		time.Hour,
		sweepLimit,
		30*time.Second,
		t.TempDir(),
	)
}

func TestRunSweepDispatchesDueSubscriptions(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		deliveries := &recordingDeliveryFlow{}
		scheduler := newTestScheduler(t, testDB, deliveries, 0)

		team, err := fixtures.CreateTestTeam()
		require.NoError(t, err)
		report, err := fixtures.CreateTestReport(team.ID, "Weekly revenue")
		require.NoError(t, err)

		due, err := fixtures.CreateTestEmailSubscription(team.ID, report.ID, []string{"a@example.com"})
		require.NoError(t, err)

		notYet, err := fixtures.CreateTestEmailSubscription(team.ID, report.ID, []string{"b@example.com"})
		require.NoError(t, err)
		notYet.NextDueAt = utils.UTCNowAddPtr(time.Hour)
		require.NoError(t, testDB.DB.Save(notYet).Error)

		found, dispatched := scheduler.RunSweep(ctx, businessflow.ExecutionContextSweep)
		assert.Equal(t, 1, found)
		assert.Equal(t, 1, dispatched)

		require.Eventually(t, func() bool {
			return len(deliveries.delivered()) == 1
		}, 5*time.Second, 10*time.Millisecond)
		assert.Equal(t, due.ID, deliveries.delivered()[0])

		sweeps := deliveries.sweepContexts()
		require.Len(t, sweeps, 1)
		assert.NotEmpty(t, sweeps[0].RequestID)
		assert.Equal(t, businessflow.ExecutionContextSweep, sweeps[0].ExecutionContext)
		// The fixture team was active within the window, so the redis-less
		// cache falls back to the repo query and still finds it.
		assert.True(t, sweeps[0].TeamIsActive(team.ID))
		return nil
	})
	require.NoError(t, err)
}

func TestRunSweepIncludesBufferedWindow(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		deliveries := &recordingDeliveryFlow{}
		scheduler := newTestScheduler(t, testDB, deliveries, 0)

		team, err := fixtures.CreateTestTeam()
		require.NoError(t, err)
		report, err := fixtures.CreateTestReport(team.ID, "Weekly revenue")
		require.NoError(t, err)

		// Due just inside the scheduling buffer: not yet due by the clock,
		// but close enough that waiting a full interval would overshoot.
		soon, err := fixtures.CreateTestEmailSubscription(team.ID, report.ID, []string{"a@example.com"})
		require.NoError(t, err)
		soon.NextDueAt = utils.UTCNowAddPtr(utils.SchedulingBuffer - time.Minute)
		require.NoError(t, testDB.DB.Save(soon).Error)

		found, dispatched := scheduler.RunSweep(ctx, businessflow.ExecutionContextSweep)
		assert.Equal(t, 1, found)
		assert.Equal(t, 1, dispatched)
		return nil
	})
	require.NoError(t, err)
}

func TestRunSweepHonorsLimit(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		deliveries := &recordingDeliveryFlow{}
		scheduler := newTestScheduler(t, testDB, deliveries, 2)

		team, err := fixtures.CreateTestTeam()
		require.NoError(t, err)
		report, err := fixtures.CreateTestReport(team.ID, "Weekly revenue")
		require.NoError(t, err)

		for i := 0; i < 4; i++ {
			_, err := fixtures.CreateTestEmailSubscription(team.ID, report.ID, []string{"a@example.com"})
			require.NoError(t, err)
		}

		found, dispatched := scheduler.RunSweep(ctx, businessflow.ExecutionContextSweep)
		assert.Equal(t, 2, found)
		assert.Equal(t, 2, dispatched)
		return nil
	})
	require.NoError(t, err)
}

func TestRunSweepEmpty(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		deliveries := &recordingDeliveryFlow{}
		scheduler := newTestScheduler(t, testDB, deliveries, 0)

		found, dispatched := scheduler.RunSweep(ctx, businessflow.ExecutionContextSweep)
		assert.Zero(t, found)
		assert.Zero(t, dispatched)
		assert.Empty(t, deliveries.delivered())
		return nil
	})
	require.NoError(t, err)
}

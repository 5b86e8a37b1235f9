// Package businessflow contains the core business logic and use cases for subscription delivery workflows
package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/amirphl/Hachiko/app/dto"
	"github.com/amirphl/Hachiko/app/services"
	"github.com/amirphl/Hachiko/models"
	"github.com/amirphl/Hachiko/repository"
	testingutil "github.com/amirphl/Hachiko/testing"
	"github.com/amirphl/Hachiko/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDeliveryFlow records delivery requests without running a cycle
type fakeDeliveryFlow struct {
	calls []DeliverOptions
	err   error
}

func (f *fakeDeliveryFlow) Deliver(ctx context.Context, sweepCtx *SweepContext, subscriptionID uint, opts DeliverOptions) (*models.DeliveryLog, error) {
	f.calls = append(f.calls, opts)
	return nil, f.err
}

func (f *fakeDeliveryFlow) DeliverByUUID(ctx context.Context, sweepCtx *SweepContext, subscriptionUUID string, opts DeliverOptions) (*models.DeliveryLog, error) {
	return f.Deliver(ctx, sweepCtx, 0, opts)
}

func newUnsubscribeTokenService(t *testing.T, ttl time.Duration) services.TokenService {
	tokenService, err := services.NewTokenService(
		ttl,
		"hachiko",
		utils.UnsubscribeAudience,
		false,
		"",
		"",
		"test-secret-key-for-jwt-signing-32-chars",
	)
	require.NoError(t, err)
	return tokenService
}

func TestUnsubscribeRemovesRecipient(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		subscriptionRepo := repository.NewSubscriptionRepository(testDB.DB)
		tokenService := newUnsubscribeTokenService(t, time.Hour)
		flow := NewUnsubscribeFlow(subscriptionRepo, tokenService, &fakeDeliveryFlow{}, testDB.DB, nil)

		team, err := fixtures.CreateTestTeam()
		require.NoError(t, err)
		report, err := fixtures.CreateTestReport(team.ID, "Weekly revenue")
		require.NoError(t, err)
		subscription, err := fixtures.CreateTestEmailSubscription(team.ID, report.ID, []string{"a@example.com", "b@example.com"})
		require.NoError(t, err)

		token, err := tokenService.GenerateUnsubscribeToken(subscription.ID, "a@example.com")
		require.NoError(t, err)

		resp, err := flow.Unsubscribe(ctx, &dto.UnsubscribeRequest{Token: token})
		require.NoError(t, err)
		assert.True(t, resp.Removed)
		assert.False(t, resp.Deleted)
		assert.Equal(t, subscription.UUID.String(), resp.SubscriptionUUID)

		reloaded, err := subscriptionRepo.ByID(ctx, subscription.ID)
		require.NoError(t, err)
		assert.False(t, reloaded.HasRecipient("a@example.com"))
		assert.True(t, reloaded.HasRecipient("b@example.com"))
		assert.False(t, reloaded.Deleted)

		// The same link clicked again changes nothing and still succeeds
		resp, err = flow.Unsubscribe(ctx, &dto.UnsubscribeRequest{Token: token})
		require.NoError(t, err)
		assert.False(t, resp.Removed)

		reloaded, err = subscriptionRepo.ByID(ctx, subscription.ID)
		require.NoError(t, err)
		assert.Len(t, reloaded.Recipients, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestUnsubscribeLastRecipientDeletesSubscription(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		subscriptionRepo := repository.NewSubscriptionRepository(testDB.DB)
		tokenService := newUnsubscribeTokenService(t, time.Hour)
		flow := NewUnsubscribeFlow(subscriptionRepo, tokenService, &fakeDeliveryFlow{}, testDB.DB, nil)

		team, err := fixtures.CreateTestTeam()
		require.NoError(t, err)
		report, err := fixtures.CreateTestReport(team.ID, "Weekly revenue")
		require.NoError(t, err)
		subscription, err := fixtures.CreateTestEmailSubscription(team.ID, report.ID, []string{"only@example.com"})
		require.NoError(t, err)

		token, err := tokenService.GenerateUnsubscribeToken(subscription.ID, "only@example.com")
		require.NoError(t, err)

		resp, err := flow.Unsubscribe(ctx, &dto.UnsubscribeRequest{Token: token})
		require.NoError(t, err)
		assert.True(t, resp.Removed)
		assert.True(t, resp.Deleted)

		reloaded, err := subscriptionRepo.ByID(ctx, subscription.ID)
		require.NoError(t, err)
		assert.True(t, reloaded.Deleted)
		assert.Nil(t, reloaded.NextDueAt)

		// Unsubscribing from an already-deleted subscription stays a success
		resp, err = flow.Unsubscribe(ctx, &dto.UnsubscribeRequest{Token: token})
		require.NoError(t, err)
		assert.False(t, resp.Removed)
		assert.True(t, resp.Deleted)
		return nil
	})
	require.NoError(t, err)
}

func TestUnsubscribeBadTokens(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		subscriptionRepo := repository.NewSubscriptionRepository(testDB.DB)
		flow := NewUnsubscribeFlow(subscriptionRepo, newUnsubscribeTokenService(t, time.Hour), &fakeDeliveryFlow{}, testDB.DB, nil)

		_, err := flow.Unsubscribe(ctx, &dto.UnsubscribeRequest{Token: "garbage"})
		assert.True(t, IsUnsubscribeTokenInvalid(err))

		team, err := fixtures.CreateTestTeam()
		require.NoError(t, err)
		report, err := fixtures.CreateTestReport(team.ID, "Weekly revenue")
		require.NoError(t, err)
		subscription, err := fixtures.CreateTestEmailSubscription(team.ID, report.ID, []string{"a@example.com"})
		require.NoError(t, err)

		expiredService := newUnsubscribeTokenService(t, -time.Hour)
		expiredFlow := NewUnsubscribeFlow(subscriptionRepo, expiredService, &fakeDeliveryFlow{}, testDB.DB, nil)
		token, err := expiredService.GenerateUnsubscribeToken(subscription.ID, "a@example.com")
		require.NoError(t, err)

		_, err = expiredFlow.Unsubscribe(ctx, &dto.UnsubscribeRequest{Token: token})
		assert.True(t, IsUnsubscribeTokenExpired(err))

		// The recipient set stays untouched
		reloaded, err := subscriptionRepo.ByID(ctx, subscription.ID)
		require.NoError(t, err)
		assert.True(t, reloaded.HasRecipient("a@example.com"))
		return nil
	})
	require.NoError(t, err)
}

func TestValueChanged(t *testing.T) {
	deliveries := &fakeDeliveryFlow{}
	flow := NewUnsubscribeFlow(nil, nil, deliveries, nil, nil)

	subscription := emailSubscription("old@example.com", "new@example.com")
	subscription.TeamID = 7

	note := "welcome aboard"
	invited, err := flow.ValueChanged(context.Background(), subscription, []string{"old@example.com"}, &note)
	require.NoError(t, err)
	assert.Equal(t, []string{"new@example.com"}, invited)

	require.Len(t, deliveries.calls, 1)
	assert.True(t, deliveries.calls[0].Invite)
	assert.Equal(t, []string{"old@example.com"}, deliveries.calls[0].PreviousRecipients)
	assert.Equal(t, "welcome aboard", deliveries.calls[0].InviteNote)
}

func TestValueChangedNoops(t *testing.T) {
	deliveries := &fakeDeliveryFlow{}
	flow := NewUnsubscribeFlow(nil, nil, deliveries, nil, nil)

	// Unchanged recipients
	subscription := emailSubscription("a@example.com")
	invited, err := flow.ValueChanged(context.Background(), subscription, []string{"a@example.com"}, nil)
	require.NoError(t, err)
	assert.Empty(t, invited)

	// Shrunken set
	invited, err = flow.ValueChanged(context.Background(), subscription, []string{"a@example.com", "b@example.com"}, nil)
	require.NoError(t, err)
	assert.Empty(t, invited)

	// Non-email channels never send invites
	slack := slackSubscription()
	invited, err = flow.ValueChanged(context.Background(), slack, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, invited)

	assert.Empty(t, deliveries.calls)
}

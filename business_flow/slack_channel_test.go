// Package businessflow contains the core business logic and use cases for subscription delivery workflows
package businessflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/amirphl/Hachiko/app/services"
	"github.com/amirphl/Hachiko/models"
	"github.com/amirphl/Hachiko/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSlackClient struct {
	configured bool
	messages   []services.SlackMessage
	failCalls  map[int]error
	calls      int
}

func newFakeSlackClient() *fakeSlackClient {
	return &fakeSlackClient{configured: true, failCalls: make(map[int]error)}
}

func (c *fakeSlackClient) PostMessage(ctx context.Context, msg services.SlackMessage) (string, error) {
	c.calls++
	if err := c.failCalls[c.calls]; err != nil {
		return "", err
	}
	c.messages = append(c.messages, msg)
	return fmt.Sprintf("ts-%d", c.calls), nil
}

func (c *fakeSlackClient) Configured() bool {
	return c.configured
}

func slackSubscription() *models.Subscription {
	return &models.Subscription{
		ID:             42,
		TeamID:         7,
		Channel:        models.ChannelSlack,
		SlackChannelID: utils.ToPtr("C012345"),
		Title:          "Ops dashboard",
	}
}

func slackArtifacts(n int) []*models.RenderedArtifact {
	artifacts := make([]*models.RenderedArtifact, n)
	for i := range artifacts {
		artifacts[i] = renderedArtifact(fmt.Sprintf("Report %d", i+1))
	}
	return artifacts
}

func TestSlackChannelPrepare(t *testing.T) {
	channel := NewSlackChannel(newFakeSlackClient(), "https://app.example.com", nil)

	assert.NoError(t, channel.Prepare(slackSubscription()))
	assert.ErrorIs(t, channel.Prepare(&models.Subscription{Channel: models.ChannelSlack}), ErrSlackChannelRequired)
	assert.ErrorIs(t, channel.Prepare(&models.Subscription{SlackChannelID: utils.ToPtr("")}), ErrSlackChannelRequired)
	assert.Equal(t, models.ChannelSlack, channel.Kind())
}

// Ten resolved reports through a cap of six: one main message, five thread
// messages, and one truncation notice make seven provider calls in total.
func TestSlackChannelSendCappedDashboard(t *testing.T) {
	client := newFakeSlackClient()
	channel := NewSlackChannel(client, "https://app.example.com", nil)

	req := SendRequest{
		Subscription:   slackSubscription(),
		Artifacts:      slackArtifacts(6),
		TotalItemCount: 10,
	}

	result, err := channel.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCompleteSuccess, result.Outcome)
	assert.Equal(t, 7, result.Sent)
	assert.Zero(t, result.Failed)
	assert.False(t, result.NoticeFailed)
	assert.Equal(t, "ts-1", result.MainMessageID)
	assert.Equal(t, 7, client.calls)

	// Thread messages and the notice all hang off the main message
	require.Len(t, client.messages, 7)
	assert.Empty(t, client.messages[0].ThreadTS)
	for _, msg := range client.messages[1:] {
		assert.Equal(t, "ts-1", msg.ThreadTS)
		assert.Equal(t, "C012345", msg.Channel)
	}
	assert.Contains(t, client.messages[6].Text, "Showing 6 of 10 reports")
}

func TestSlackChannelMainMessageFailure(t *testing.T) {
	client := newFakeSlackClient()
	client.failCalls[1] = errors.New("channel_not_found")
	channel := NewSlackChannel(client, "https://app.example.com", nil)

	req := SendRequest{
		Subscription:   slackSubscription(),
		Artifacts:      slackArtifacts(4),
		TotalItemCount: 4,
	}

	result, err := channel.Send(context.Background(), req)
	require.ErrorIs(t, err, ErrMainMessageFailed)
	assert.Equal(t, models.OutcomeCompleteFailure, result.Outcome)
	assert.Zero(t, result.Sent)
	assert.Equal(t, 1, result.Failed)

	// No thread messages are attempted once the anchor is gone
	assert.Equal(t, 1, client.calls)
}

func TestSlackChannelThreadPartialFailure(t *testing.T) {
	client := newFakeSlackClient()
	client.failCalls[3] = errors.New("message too long")
	channel := NewSlackChannel(client, "https://app.example.com", nil)

	req := SendRequest{
		Subscription:   slackSubscription(),
		Artifacts:      slackArtifacts(4),
		TotalItemCount: 4,
	}

	result, err := channel.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePartialFailure, result.Outcome)
	assert.Equal(t, 3, result.Sent)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []int{2}, result.ThreadFailed)
}

func TestSlackChannelNoticeFailure(t *testing.T) {
	client := newFakeSlackClient()
	// Call 7 is the truncation notice after one main and five thread messages
	client.failCalls[7] = errors.New("message too long")
	channel := NewSlackChannel(client, "https://app.example.com", nil)

	req := SendRequest{
		Subscription:   slackSubscription(),
		Artifacts:      slackArtifacts(6),
		TotalItemCount: 10,
	}

	result, err := channel.Send(context.Background(), req)
	require.NoError(t, err)

	// A lost notice leaves the recipients unaware of the truncation, so the
	// cycle must not read as a complete success.
	assert.Equal(t, models.OutcomePartialFailure, result.Outcome)
	assert.Equal(t, 6, result.Sent)
	assert.Equal(t, 1, result.Failed)
	assert.True(t, result.NoticeFailed)
	assert.Empty(t, result.ThreadFailed)
	assert.Equal(t, 7, client.calls)
}

func TestSlackChannelNotConfigured(t *testing.T) {
	client := newFakeSlackClient()
	client.configured = false
	channel := NewSlackChannel(client, "https://app.example.com", nil)

	req := SendRequest{
		Subscription:   slackSubscription(),
		Artifacts:      slackArtifacts(2),
		TotalItemCount: 2,
	}

	result, err := channel.Send(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Zero(t, client.calls)
}

func TestSlackChannelFailedArtifactBlock(t *testing.T) {
	client := newFakeSlackClient()
	channel := NewSlackChannel(client, "https://app.example.com", nil)

	failed := &models.RenderedArtifact{ReportName: "Broken"}
	req := SendRequest{
		Subscription:   slackSubscription(),
		Artifacts:      []*models.RenderedArtifact{renderedArtifact("Revenue"), failed},
		TotalItemCount: 2,
	}

	result, err := channel.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCompleteSuccess, result.Outcome)

	// The content-less artifact still travels as a section block naming it
	require.Len(t, client.messages, 2)
	block, ok := client.messages[1].Blocks[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "section", block["type"])
}

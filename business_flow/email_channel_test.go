// Package businessflow contains the core business logic and use cases for subscription delivery workflows
package businessflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/amirphl/Hachiko/app/services"
	"github.com/amirphl/Hachiko/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	recipient string
	subject   string
	body      string
}

type fakeEmailProvider struct {
	sent    []sentMail
	failFor map[string]error
}

func newFakeEmailProvider() *fakeEmailProvider {
	return &fakeEmailProvider{failFor: make(map[string]error)}
}

func (p *fakeEmailProvider) SendEmail(ctx context.Context, recipient, subject, htmlBody string) error {
	if err := p.failFor[recipient]; err != nil {
		return err
	}
	p.sent = append(p.sent, sentMail{recipient: recipient, subject: subject, body: htmlBody})
	return nil
}

type fakeTokenService struct {
	genErr error
}

func (s *fakeTokenService) GenerateUnsubscribeToken(subscriptionID uint, recipient string) (string, error) {
	if s.genErr != nil {
		return "", s.genErr
	}
	return fmt.Sprintf("token-%d-%s", subscriptionID, recipient), nil
}

func (s *fakeTokenService) ValidateUnsubscribeToken(token string) (*services.UnsubscribeClaims, error) {
	return nil, services.ErrTokenInvalid
}

func emailSubscription(recipients ...string) *models.Subscription {
	return &models.Subscription{
		ID:         42,
		TeamID:     7,
		Channel:    models.ChannelEmail,
		Recipients: pq.StringArray(recipients),
		Title:      "Weekly revenue",
	}
}

func renderedArtifact(name string) *models.RenderedArtifact {
	return &models.RenderedArtifact{
		UUID:       uuid.New(),
		ReportName: name,
		Content:    []byte("png"),
	}
}

func TestEmailChannelPrepare(t *testing.T) {
	channel := NewEmailChannel(newFakeEmailProvider(), &fakeTokenService{}, "https://app.example.com", nil)

	assert.NoError(t, channel.Prepare(emailSubscription("a@example.com")))
	assert.ErrorIs(t, channel.Prepare(emailSubscription()), ErrRecipientsRequired)
	assert.Equal(t, models.ChannelEmail, channel.Kind())
}

func TestEmailChannelSendAllRecipients(t *testing.T) {
	provider := newFakeEmailProvider()
	channel := NewEmailChannel(provider, &fakeTokenService{}, "https://app.example.com/", nil)

	req := SendRequest{
		Subscription:   emailSubscription("a@example.com", "b@example.com"),
		Artifacts:      []*models.RenderedArtifact{renderedArtifact("Revenue")},
		TotalItemCount: 1,
	}

	result, err := channel.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCompleteSuccess, result.Outcome)
	assert.Equal(t, 2, result.Sent)
	assert.Zero(t, result.Failed)
	require.Len(t, provider.sent, 2)

	// Each recipient gets their own unsubscribe link
	assert.Contains(t, provider.sent[0].body, "token-42-a%40example.com")
	assert.Contains(t, provider.sent[1].body, "token-42-b%40example.com")
	assert.Contains(t, provider.sent[0].body, "https://app.example.com/unsubscribe?token=")
	assert.Contains(t, provider.sent[0].body, req.Artifacts[0].UUID.String())
	assert.Equal(t, "Weekly revenue", provider.sent[0].subject)
}

func TestEmailChannelSendPartialFailure(t *testing.T) {
	provider := newFakeEmailProvider()
	provider.failFor["bad@example.com"] = errors.New("mailbox unavailable")
	channel := NewEmailChannel(provider, &fakeTokenService{}, "https://app.example.com", nil)

	req := SendRequest{
		Subscription: emailSubscription("good@example.com", "bad@example.com"),
		Artifacts:    []*models.RenderedArtifact{renderedArtifact("Revenue")},
	}

	result, err := channel.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePartialFailure, result.Outcome)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.Failed)

	require.Len(t, result.Recipients, 2)
	assert.NoError(t, result.Recipients[0].Err)
	assert.Error(t, result.Recipients[1].Err)
	assert.Equal(t, models.ErrorClassSystem, result.Recipients[1].Class)
}

func TestEmailChannelSendAllFail(t *testing.T) {
	provider := newFakeEmailProvider()
	provider.failFor["a@example.com"] = errors.New("smtp down")
	provider.failFor["b@example.com"] = errors.New("smtp down")
	channel := NewEmailChannel(provider, &fakeTokenService{}, "https://app.example.com", nil)

	req := SendRequest{
		Subscription: emailSubscription("a@example.com", "b@example.com"),
		Artifacts:    []*models.RenderedArtifact{renderedArtifact("Revenue")},
	}

	result, err := channel.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCompleteFailure, result.Outcome)
	assert.Zero(t, result.Sent)
	assert.Equal(t, 2, result.Failed)
}

func TestEmailChannelInvalidAddress(t *testing.T) {
	provider := newFakeEmailProvider()
	channel := NewEmailChannel(provider, &fakeTokenService{}, "https://app.example.com", nil)

	req := SendRequest{
		Subscription: emailSubscription("not an address"),
		Artifacts:    []*models.RenderedArtifact{renderedArtifact("Revenue")},
	}

	result, err := channel.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCompleteFailure, result.Outcome)
	require.Len(t, result.Recipients, 1)
	assert.ErrorIs(t, result.Recipients[0].Err, ErrInvalidRecipientEmail)
	assert.Equal(t, models.ErrorClassUser, result.Recipients[0].Class)
	assert.Empty(t, provider.sent)
}

func TestEmailChannelTokenFailure(t *testing.T) {
	provider := newFakeEmailProvider()
	channel := NewEmailChannel(provider, &fakeTokenService{genErr: errors.New("no signing key")}, "https://app.example.com", nil)

	req := SendRequest{
		Subscription: emailSubscription("a@example.com"),
		Artifacts:    []*models.RenderedArtifact{renderedArtifact("Revenue")},
	}

	result, err := channel.Send(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Recipients, 1)
	assert.Equal(t, models.ErrorClassSystem, result.Recipients[0].Class)
	assert.Empty(t, provider.sent)
}

func TestEmailChannelInvite(t *testing.T) {
	provider := newFakeEmailProvider()
	channel := NewEmailChannel(provider, &fakeTokenService{}, "https://app.example.com", nil)

	req := SendRequest{
		Subscription: emailSubscription("old@example.com", "new@example.com"),
		Artifacts:    []*models.RenderedArtifact{renderedArtifact("Revenue")},
		Recipients:   []string{"new@example.com"},
		IsInvite:     true,
		InviteNote:   "Welcome to the weekly numbers",
	}

	result, err := channel.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	// Only the newcomer gets mail, with the invite framing
	require.Len(t, provider.sent, 1)
	assert.Equal(t, "new@example.com", provider.sent[0].recipient)
	assert.Equal(t, "You've been subscribed to Weekly revenue", provider.sent[0].subject)
	assert.Contains(t, provider.sent[0].body, "Welcome to the weekly numbers")
}

func TestEmailChannelBodyComposition(t *testing.T) {
	provider := newFakeEmailProvider()
	channel := NewEmailChannel(provider, &fakeTokenService{}, "https://app.example.com", nil)

	failed := &models.RenderedArtifact{UUID: uuid.New(), ReportName: "Broken"}
	req := SendRequest{
		Subscription:   emailSubscription("a@example.com"),
		Artifacts:      []*models.RenderedArtifact{renderedArtifact("Revenue"), failed},
		TotalItemCount: 5,
	}

	_, err := channel.Send(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, provider.sent, 1)

	body := provider.sent[0].body
	assert.Contains(t, body, "Revenue")
	assert.Contains(t, body, "could not be rendered in time")
	assert.Contains(t, body, "Showing 2 of 5 reports")
}

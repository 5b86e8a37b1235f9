// Package businessflow contains the core business logic and use cases for subscription delivery workflows
package businessflow

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"net"
	"net/mail"
	"net/url"
	"strings"

	"github.com/amirphl/Hachiko/app/services"
	"github.com/amirphl/Hachiko/models"
	"github.com/amirphl/Hachiko/utils"
)

// EmailChannel delivers artifacts by mailing each recipient an individual
// message with a per-recipient unsubscribe link.
type EmailChannel struct {
	provider      services.EmailProvider
	tokenService  services.TokenService
	publicBaseURL string
	logger        *log.Logger
}

// NewEmailChannel creates a new email delivery channel
func NewEmailChannel(provider services.EmailProvider, tokenService services.TokenService, publicBaseURL string, logger *log.Logger) *EmailChannel {
	if logger == nil {
		logger = log.Default()
	}
	return &EmailChannel{
		provider:      provider,
		tokenService:  tokenService,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

func (c *EmailChannel) Kind() models.SubscriptionChannel {
	return models.ChannelEmail
}

func (c *EmailChannel) Prepare(subscription *models.Subscription) error {
	if len(subscription.Recipients) == 0 {
		return ErrRecipientsRequired
	}
	return nil
}

// Send mails every recipient independently: one recipient's failure never
// blocks the others, and each message carries an unsubscribe link signed for
// that recipient alone. The aggregate outcome classifies the cycle as
// complete success, partial failure, or complete failure.
func (c *EmailChannel) Send(ctx context.Context, req SendRequest) (*DeliveryResult, error) {
	recipients := req.Recipients
	if len(recipients) == 0 {
		recipients = req.Subscription.Recipients
	}
	if len(recipients) == 0 {
		return nil, ErrRecipientsRequired
	}

	subject := c.subject(req)
	result := &DeliveryResult{}
	for _, recipient := range recipients {
		outcome := c.sendOne(ctx, req, recipient, subject)
		result.Recipients = append(result.Recipients, outcome)
		if outcome.Err != nil {
			result.Failed++
			deliveryFailuresByClass.WithLabelValues(string(models.ChannelEmail), string(outcome.Class)).Inc()
			c.logger.Printf("email delivery to %s failed for subscription %d: %v", recipient, req.Subscription.ID, outcome.Err)
		} else {
			result.Sent++
		}
	}

	result.Outcome = classifyOutcome(result.Sent, result.Failed)
	return result, nil
}

func (c *EmailChannel) sendOne(ctx context.Context, req SendRequest, recipient, subject string) RecipientOutcome {
	if _, err := mail.ParseAddress(recipient); err != nil {
		return RecipientOutcome{
			Recipient: recipient,
			Err:       fmt.Errorf("%w: %v", ErrInvalidRecipientEmail, err),
			Class:     models.ErrorClassUser,
		}
	}

	token, err := c.tokenService.GenerateUnsubscribeToken(req.Subscription.ID, recipient)
	if err != nil {
		return RecipientOutcome{
			Recipient: recipient,
			Err:       fmt.Errorf("failed to sign unsubscribe token: %w", err),
			Class:     models.ErrorClassSystem,
		}
	}

	body := c.composeBody(req, token)
	err = retrySend(ctx, utils.MaxSendAttempts, utils.SendBackoffInitial, transientEmailError, func() error {
		return c.provider.SendEmail(ctx, recipient, subject, body)
	})
	if err != nil {
		return RecipientOutcome{Recipient: recipient, Err: err, Class: models.ErrorClassSystem}
	}
	return RecipientOutcome{Recipient: recipient}
}

func (c *EmailChannel) subject(req SendRequest) string {
	if req.IsInvite {
		return fmt.Sprintf("You've been subscribed to %s", req.Subscription.Title)
	}
	return req.Subscription.Title
}

// composeBody builds the HTML message: one block per artifact in order, a
// failure notice standing in for artifacts that did not render, a truncation
// note when the render cap cut the batch, and the unsubscribe footer.
func (c *EmailChannel) composeBody(req SendRequest, unsubscribeToken string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString(fmt.Sprintf("<h2>%s</h2>", html.EscapeString(req.Subscription.Title)))

	if req.IsInvite && req.InviteNote != "" {
		b.WriteString(fmt.Sprintf("<p>%s</p>", html.EscapeString(req.InviteNote)))
	}

	for _, artifact := range req.Artifacts {
		name := html.EscapeString(artifact.ReportName)
		if artifact.HasContent() {
			link := fmt.Sprintf("%s/artifacts/%s", c.publicBaseURL, artifact.UUID.String())
			b.WriteString(fmt.Sprintf(`<div><h3>%s</h3><a href="%s"><img src="%s" alt="%s" /></a></div>`, name, link, link, name))
		} else {
			b.WriteString(fmt.Sprintf(`<div><h3>%s</h3><p>This report could not be rendered in time and is not included.</p></div>`, name))
		}
	}

	if req.TotalItemCount > len(req.Artifacts) {
		b.WriteString(fmt.Sprintf("<p>Showing %d of %d reports. View the rest in the app.</p>", len(req.Artifacts), req.TotalItemCount))
	}

	unsubscribeURL := fmt.Sprintf("%s/unsubscribe?token=%s", c.publicBaseURL, url.QueryEscape(unsubscribeToken))
	b.WriteString(fmt.Sprintf(`<hr/><p><a href="%s">Unsubscribe from this report</a></p>`, unsubscribeURL))
	b.WriteString("</body></html>")
	return b.String()
}

func transientEmailError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

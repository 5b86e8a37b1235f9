// Package businessflow contains the core business logic and use cases for subscription delivery workflows
package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/amirphl/Hachiko/app/services"
	"github.com/amirphl/Hachiko/models"
	"github.com/amirphl/Hachiko/utils"
)

// SlackChannel delivers artifacts as one main channel message followed by a
// thread of follow-up messages, one per remaining artifact.
type SlackChannel struct {
	client        services.SlackClient
	publicBaseURL string
	logger        *log.Logger
}

// NewSlackChannel creates a new slack delivery channel
func NewSlackChannel(client services.SlackClient, publicBaseURL string, logger *log.Logger) *SlackChannel {
	if logger == nil {
		logger = log.Default()
	}
	return &SlackChannel{
		client:        client,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

func (c *SlackChannel) Kind() models.SubscriptionChannel {
	return models.ChannelSlack
}

func (c *SlackChannel) Prepare(subscription *models.Subscription) error {
	if subscription.SlackChannelID == nil || *subscription.SlackChannelID == "" {
		return ErrSlackChannelRequired
	}
	return nil
}

// Send posts the main message first; its failure aborts the whole delivery as
// a complete failure since the thread has nothing to attach to. Thread
// messages then go out one by one, each retried independently on transient
// errors, and a single failure only downgrades the cycle to partial. A
// workspace without the chat integration installed degrades to a logged
// no-op rather than an error.
func (c *SlackChannel) Send(ctx context.Context, req SendRequest) (*DeliveryResult, error) {
	if !c.client.Configured() {
		c.logger.Printf("slack integration not configured, skipping delivery for subscription %d", req.Subscription.ID)
		return &DeliveryResult{Skipped: true, Outcome: models.OutcomeCompleteSuccess}, nil
	}

	channelID := *req.Subscription.SlackChannelID
	result := &DeliveryResult{}

	mainMsg := c.mainMessage(req, channelID)
	var mainID string
	err := retrySend(ctx, utils.MaxSendAttempts, utils.SendBackoffInitial, transientSlackError, func() error {
		id, perr := c.client.PostMessage(ctx, mainMsg)
		if perr == nil {
			mainID = id
		}
		return perr
	})
	if err != nil {
		if errors.Is(err, services.ErrSlackNotConfigured) {
			c.logger.Printf("slack integration not configured, skipping delivery for subscription %d", req.Subscription.ID)
			return &DeliveryResult{Skipped: true, Outcome: models.OutcomeCompleteSuccess}, nil
		}
		deliveryFailuresByClass.WithLabelValues(string(models.ChannelSlack), string(models.ErrorClassSystem)).Inc()
		result.Failed++
		result.Outcome = models.OutcomeCompleteFailure
		c.logger.Printf("slack main message failed for subscription %d: %v", req.Subscription.ID, err)
		return result, fmt.Errorf("%w: %v", ErrMainMessageFailed, err)
	}
	result.Sent++
	result.MainMessageID = mainID

	for i, artifact := range req.Artifacts {
		if i == 0 {
			continue
		}
		msg := c.threadMessage(artifact, channelID, mainID)
		err := retrySend(ctx, utils.MaxSendAttempts, utils.SendBackoffInitial, transientSlackError, func() error {
			_, perr := c.client.PostMessage(ctx, msg)
			return perr
		})
		if err != nil {
			result.Failed++
			result.ThreadFailed = append(result.ThreadFailed, i)
			deliveryFailuresByClass.WithLabelValues(string(models.ChannelSlack), string(models.ErrorClassSystem)).Inc()
			c.logger.Printf("slack thread message %d failed for subscription %d: %v", i, req.Subscription.ID, err)
			continue
		}
		result.Sent++
	}

	if req.TotalItemCount > len(req.Artifacts) {
		note := services.SlackMessage{
			Channel:  channelID,
			Text:     fmt.Sprintf("Showing %d of %d reports. View the rest in the app.", len(req.Artifacts), req.TotalItemCount),
			ThreadTS: mainID,
		}
		err := retrySend(ctx, utils.MaxSendAttempts, utils.SendBackoffInitial, transientSlackError, func() error {
			_, perr := c.client.PostMessage(ctx, note)
			return perr
		})
		if err != nil {
			result.Failed++
			result.NoticeFailed = true
			deliveryFailuresByClass.WithLabelValues(string(models.ChannelSlack), string(models.ErrorClassSystem)).Inc()
			c.logger.Printf("slack truncation notice failed for subscription %d: %v", req.Subscription.ID, err)
		} else {
			result.Sent++
		}
	}

	result.Outcome = classifyOutcome(result.Sent, result.Failed)
	return result, nil
}

func (c *SlackChannel) mainMessage(req SendRequest, channelID string) services.SlackMessage {
	blocks := []any{
		map[string]any{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": req.Subscription.Title},
		},
	}
	if len(req.Artifacts) > 0 {
		blocks = append(blocks, c.artifactBlock(req.Artifacts[0]))
	}
	return services.SlackMessage{
		Channel: channelID,
		Text:    req.Subscription.Title,
		Blocks:  blocks,
	}
}

func (c *SlackChannel) threadMessage(artifact *models.RenderedArtifact, channelID, threadTS string) services.SlackMessage {
	return services.SlackMessage{
		Channel:  channelID,
		Text:     artifact.ReportName,
		Blocks:   []any{c.artifactBlock(artifact)},
		ThreadTS: threadTS,
	}
}

// artifactBlock renders one artifact as an image block, or a plain section
// naming the report when the render produced nothing to show.
func (c *SlackChannel) artifactBlock(artifact *models.RenderedArtifact) map[string]any {
	if !artifact.HasContent() {
		return map[string]any{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*%s* could not be rendered in time and is not included.", artifact.ReportName),
			},
		}
	}
	return map[string]any{
		"type":      "image",
		"image_url": fmt.Sprintf("%s/artifacts/%s.png", c.publicBaseURL, artifact.UUID.String()),
		"alt_text":  artifact.ReportName,
		"title":     map[string]any{"type": "plain_text", "text": artifact.ReportName},
	}
}

func transientSlackError(err error) bool {
	return errors.Is(err, services.ErrSlackTransient)
}

package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/metrics"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/notify"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/ratelimit"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/repository"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/service"
)

type CredentialSource interface {
	Credentials(ctx context.Context, clientID int64, platform string) (*service.Credentials, error)
}

type RateLimiter interface {
	IsAllowed(ctx context.Context, platform string) (ratelimit.Decision, error)
	RecordRequest(ctx context.Context, platform string, header http.Header) error
	SmartDelay(ctx context.Context, platform string, lowPriority bool) error
}

// FailureHandler decides what happens to a failed channel publish.
type FailureHandler interface {
	HandleFailure(ctx context.Context, err error, operation string, rc models.RetryContext) (*models.RetryItem, error)
}

type ChannelOutcome struct {
	Success  bool       `json:"success"`
	Message  string     `json:"message"`
	RemoteID string     `json:"remote_id,omitempty"`
	Code     retry.Code `json:"code,omitempty"`
	RetryID  string     `json:"retry_id,omitempty"`
}

type RunResult struct {
	ContentItemID int64                             `json:"content_item_id"`
	Skipped       bool                              `json:"skipped"`
	Status        models.ContentStatus              `json:"status"`
	Channels      map[models.Channel]ChannelOutcome `json:"channels"`
}

type Dispatcher struct {
	items    repository.ContentItemRepository
	media    repository.ContentMediaRepository
	attempts repository.AttemptLogRepository
	accounts CredentialSource
	adapters *service.Registry
	limiter  RateLimiter
	failures FailureHandler
	notifier notify.Notifier
	renderer Renderer
}

func NewDispatcher(
	items repository.ContentItemRepository,
	media repository.ContentMediaRepository,
	attempts repository.AttemptLogRepository,
	accounts CredentialSource,
	adapters *service.Registry,
	limiter RateLimiter,
	failures FailureHandler,
	notifier notify.Notifier,
	renderer Renderer) *Dispatcher {
	if notifier == nil {
		notifier = notify.NewLogNotifier(nil)
	}
	return &Dispatcher{
		items:    items,
		media:    media,
		attempts: attempts,
		accounts: accounts,
		adapters: adapters,
		limiter:  limiter,
		failures: failures,
		notifier: notifier,
		renderer: renderer,
	}
}

// credentialCache resolves each platform's credentials once per run.
type credentialCache struct {
	source   CredentialSource
	clientID int64
	resolved map[string]*service.Credentials
	failed   map[string]*retry.Error
}

func (c *credentialCache) get(ctx context.Context, platform string) (*service.Credentials, *retry.Error) {
	if creds, ok := c.resolved[platform]; ok {
		return creds, nil
	}
	if perr, ok := c.failed[platform]; ok {
		return nil, perr
	}
	creds, err := c.source.Credentials(ctx, c.clientID, platform)
	if err != nil {
		perr := retry.AsError(err)
		c.failed[platform] = perr
		return nil, perr
	}
	c.resolved[platform] = creds
	return creds, nil
}

func (d *Dispatcher) newCredentialCache(clientID int64) *credentialCache {
	return &credentialCache{
		source:   d.accounts,
		clientID: clientID,
		resolved: make(map[string]*service.Credentials),
		failed:   make(map[string]*retry.Error),
	}
}

// Run publishes item id to every target channel, one channel at a time. A
// channel failure never stops the remaining channels. The returned error is
// reserved for failures that concern the item as a whole.
func (d *Dispatcher) Run(ctx context.Context, id int64) (*RunResult, error) {
	result := &RunResult{ContentItemID: id, Channels: make(map[models.Channel]ChannelOutcome)}

	item, err := d.items.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load content item %d: %w", id, err)
	}
	if item == nil {
		slog.Info("content item not found, nothing to publish", "content_item_id", id)
		result.Skipped = true
		return result, nil
	}
	if item.Status == models.StatusPublished {
		slog.Info("content item already published", "content_item_id", id)
		result.Skipped = true
		result.Status = item.Status
		return result, nil
	}

	item.Media, err = d.media.ListByContentItemID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load media of content item %d: %w", id, err)
	}

	ok, err := d.items.MarkPublishing(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to mark content item %d publishing: %w", id, err)
	}
	if !ok {
		result.Skipped = true
		return result, nil
	}

	creds := d.newCredentialCache(item.ClientID)
	publishLog := make(map[models.Channel]string, len(item.Channels))
	succeeded := 0

	for _, channel := range item.Channels {
		res, perr := d.publishChannel(ctx, item, channel, creds)
		if perr == nil {
			succeeded++
			publishLog[channel] = res.Message
			result.Channels[channel] = ChannelOutcome{Success: true, Message: res.Message, RemoteID: res.RemoteID}
			continue
		}

		publishLog[channel] = perr.Message
		outcome := ChannelOutcome{Message: perr.Message, Code: perr.Code}
		retryItem, err := d.failures.HandleFailure(ctx, perr, models.OperationPublishChannel, models.RetryContext{
			ContentItemID: item.ID,
			Channel:       channel,
			ClientID:      item.ClientID,
		})
		if err != nil {
			slog.Error("failed to hand over channel failure", "content_item_id", item.ID, "channel", channel, "error", err)
		}
		if retryItem != nil {
			outcome.RetryID = retryItem.ID
		}
		result.Channels[channel] = outcome
	}

	result.Status = models.StatusFailed
	if succeeded > 0 {
		result.Status = models.StatusPublished
	}
	if err := d.items.Finish(ctx, item.ID, result.Status, publishLog); err != nil {
		return result, fmt.Errorf("failed to finish content item %d: %w", id, err)
	}

	if succeeded == 0 && len(item.Channels) > 0 {
		d.notifier.Notify(ctx, notify.Message{
			Severity: notify.SeverityHigh,
			Title:    "Every channel failed",
			Text:     fmt.Sprintf("Content item %d (%s) could not be published to any channel", item.ID, item.Title),
			Fields: map[string]string{
				"content_item_id": strconv.FormatInt(item.ID, 10),
				"client":          item.ClientName,
			},
		})
	}

	slog.Info("content item dispatched",
		"content_item_id", item.ID,
		"status", result.Status,
		"succeeded", succeeded,
		"channels", len(item.Channels))
	return result, nil
}

// RetryChannel re-runs a single channel of an item for the retry queue. It
// records the attempt and, on success, promotes a failed item to published.
// Sweep retries are paced by platform health; manual retries are not.
func (d *Dispatcher) RetryChannel(ctx context.Context, rc models.RetryContext) error {
	item, err := d.items.GetByID(ctx, rc.ContentItemID)
	if err != nil {
		return retry.Wrap(retry.CodeConnectionFailed, err)
	}
	if item == nil {
		return retry.New(retry.CodeNotFound, fmt.Sprintf("content item %d no longer exists", rc.ContentItemID))
	}
	item.Media, err = d.media.ListByContentItemID(ctx, item.ID)
	if err != nil {
		return retry.Wrap(retry.CodeConnectionFailed, err)
	}

	if d.limiter != nil {
		if err := d.limiter.SmartDelay(ctx, rc.Channel.Platform(), !retry.IsManual(ctx)); err != nil {
			if ctx.Err() != nil {
				return retry.Wrap(retry.CodeTimeout, err)
			}
			slog.Warn("platform health unavailable, retrying without delay", "platform", rc.Channel.Platform(), "error", err)
		}
	}

	res, perr := d.publishChannel(ctx, item, rc.Channel, d.newCredentialCache(item.ClientID))
	if perr != nil {
		if err := d.items.MergePublishLog(ctx, item.ID, rc.Channel, perr.Message, false); err != nil {
			slog.Error("failed to update publish log", "content_item_id", item.ID, "error", err)
		}
		return perr
	}

	if err := d.items.MergePublishLog(ctx, item.ID, rc.Channel, res.Message, true); err != nil {
		slog.Error("failed to update publish log", "content_item_id", item.ID, "error", err)
	}
	return nil
}

// publishChannel runs one channel attempt: render, admit, publish, log,
// count. The returned error is always classified.
func (d *Dispatcher) publishChannel(ctx context.Context, item *models.ContentItem, channel models.Channel, creds *credentialCache) (*service.PublishResult, *retry.Error) {
	platform := channel.Platform()

	res, perr, sent, header := d.attempt(ctx, item, channel, creds)

	if sent && d.limiter != nil {
		if err := d.limiter.RecordRequest(ctx, platform, header); err != nil {
			slog.Warn("failed to record platform request", "platform", platform, "error", err)
		}
	}

	entry := &models.ChannelAttemptLog{ContentItemID: item.ID, Channel: channel}
	if perr == nil {
		entry.Status = models.AttemptSuccess
		entry.Message = res.Message
		entry.RemoteID = res.RemoteID
		entry.Response = res.Response
		metrics.ChannelPublishes.WithLabelValues(string(channel), "success").Inc()
	} else {
		entry.Status = models.AttemptError
		entry.Message = perr.Error()
		entry.Response = perr.Response
		metrics.ChannelPublishes.WithLabelValues(string(channel), string(perr.Code)).Inc()
		slog.Info("channel publish failed",
			"content_item_id", item.ID,
			"channel", channel,
			"code", perr.Code,
			"error", perr.Message)
	}
	if _, err := d.attempts.Create(ctx, entry); err != nil {
		slog.Error("failed to record attempt", "content_item_id", item.ID, "channel", channel, "error", err)
	}

	return res, perr
}

// attempt performs the admission checks and the adapter call. sent reports
// whether a request actually reached the platform.
func (d *Dispatcher) attempt(ctx context.Context, item *models.ContentItem, channel models.Channel, creds *credentialCache) (*service.PublishResult, *retry.Error, bool, http.Header) {
	platform := channel.Platform()

	adapter, err := d.adapters.Get(channel)
	if err != nil {
		return nil, retry.AsError(err), false, nil
	}

	credentials, perr := creds.get(ctx, platform)
	if perr != nil {
		return nil, perr, false, nil
	}

	message := d.renderer.Message(item, channel)

	if d.limiter != nil {
		decision, err := d.limiter.IsAllowed(ctx, platform)
		if err != nil {
			slog.Warn("rate limiter unavailable, admitting request", "platform", platform, "error", err)
		} else if !decision.Allowed {
			return nil, &retry.Error{
				Code:       retry.CodeRateLimited,
				Message:    decision.Reason,
				RetryAfter: decision.RetryAfter,
			}, false, nil
		}
	}

	start := time.Now()
	res, err := adapter.Publish(ctx, &service.PublishRequest{
		ContentItemID: item.ID,
		Channel:       channel,
		Title:         item.Title,
		Message:       message,
		Link:          d.renderer.Link(item, channel),
		Media:         item.Media,
		Credentials:   *credentials,
	})
	metrics.PublishDuration.WithLabelValues(string(channel)).Observe(time.Since(start).Seconds())

	if err != nil {
		perr := retry.AsError(err)
		var classified *retry.Error
		if !errors.As(err, &classified) {
			perr.Sent = true
		}
		return nil, perr, perr.Sent, perr.Header
	}
	if res == nil {
		res = &service.PublishResult{}
	}
	return res, nil, true, res.Header
}

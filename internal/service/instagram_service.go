package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	config "github.com/franpass87/FP-Social-Auto-Publisher-sub000/configs"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/transfer"
)

// InstagramService publishes through the Instagram Graph API: a media
// container is created first and published once it is ready.
type InstagramService struct {
	baseURL     string
	story       bool
	pollEvery   time.Duration
	pollRetries int
	client      *platformClient
}

func NewInstagramService(cfg config.Platforms, story bool) *InstagramService {
	retries := cfg.ContainerPollRetries
	if retries <= 0 {
		retries = 12
	}
	return &InstagramService{
		baseURL:     strings.TrimRight(cfg.InstagramGraphURL, "/"),
		story:       story,
		pollEvery:   cfg.ContainerPollEvery,
		pollRetries: retries,
		client:      newPlatformClient("instagram", cfg.MediaTimeout),
	}
}

func (s *InstagramService) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := requireAccount(req.Credentials); err != nil {
		return nil, err
	}

	igUserID := req.Credentials.AccountID
	values := url.Values{"access_token": {req.Credentials.AccessToken}}

	video, hasVideo := req.FirstMedia(models.MediaVideo)
	image, hasImage := req.FirstMedia(models.MediaImage)
	switch {
	case hasVideo:
		values.Set("video_url", video.URL)
		if s.story {
			values.Set("media_type", "STORIES")
		} else {
			values.Set("media_type", "REELS")
		}
	case hasImage:
		values.Set("image_url", image.URL)
		if s.story {
			values.Set("media_type", "STORIES")
		}
	default:
		return nil, retry.New(retry.CodeNoMedia, "instagram needs an image or a video")
	}
	if !s.story {
		values.Set("caption", req.Message)
	}

	container, err := s.client.postForm(ctx, fmt.Sprintf("%s/%s/media", s.baseURL, igUserID), values)
	if err != nil {
		return nil, err
	}
	var created transfer.GraphObject
	if err := json.Unmarshal(container.Body, &created); err != nil || created.ID == "" {
		return nil, &retry.Error{Code: retry.CodeServerError, Message: "media container returned no id", Response: snippet(container.Body), Header: container.Header, Sent: true, Err: err}
	}

	if hasVideo {
		if err := s.waitForContainer(ctx, created.ID, req.Credentials.AccessToken); err != nil {
			return nil, err
		}
	}

	resp, err := s.client.postForm(ctx, fmt.Sprintf("%s/%s/media_publish", s.baseURL, igUserID), url.Values{
		"access_token": {req.Credentials.AccessToken},
		"creation_id":  {created.ID},
	})
	if err != nil {
		return nil, err
	}
	var published transfer.GraphObject
	if err := json.Unmarshal(resp.Body, &published); err != nil {
		return nil, &retry.Error{Code: retry.CodeServerError, Message: "malformed publish response", Response: snippet(resp.Body), Header: resp.Header, Sent: true, Err: err}
	}

	label := "Instagram"
	if s.story {
		label = "Instagram story"
	}
	return &PublishResult{
		RemoteID: published.ID,
		Message:  fmt.Sprintf("Published to %s (%s)", label, published.ID),
		Response: snippet(resp.Body),
		Header:   resp.Header,
	}, nil
}

// waitForContainer polls a video container until Instagram finished
// processing it.
func (s *InstagramService) waitForContainer(ctx context.Context, containerID, token string) error {
	endpoint := fmt.Sprintf("%s/%s?%s", s.baseURL, containerID, url.Values{
		"fields":       {"status_code,status"},
		"access_token": {token},
	}.Encode())

	for i := 0; i < s.pollRetries; i++ {
		resp, err := s.client.get(ctx, endpoint)
		if err != nil {
			return err
		}
		var status transfer.ContainerStatus
		if err := json.Unmarshal(resp.Body, &status); err != nil {
			return &retry.Error{Code: retry.CodeServerError, Message: "malformed container status", Response: snippet(resp.Body), Sent: true, Err: err}
		}

		switch status.StatusCode {
		case "FINISHED", "PUBLISHED":
			return nil
		case "ERROR":
			return &retry.Error{Code: retry.CodeBadRequest, Message: "media processing failed: " + status.Status, Response: snippet(resp.Body), Sent: true}
		case "EXPIRED":
			return &retry.Error{Code: retry.CodeBadRequest, Message: "media container expired", Response: snippet(resp.Body), Sent: true}
		}

		slog.Debug("instagram container not ready", "container_id", containerID, "status", status.StatusCode)
		select {
		case <-ctx.Done():
			return &retry.Error{Code: retry.CodeTimeout, Message: "waiting for media container", Sent: true, Err: ctx.Err()}
		case <-time.After(s.pollEvery):
		}
	}
	return &retry.Error{Code: retry.CodeTimeout, Message: "media container still processing", Sent: true}
}

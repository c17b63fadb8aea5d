package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	config "github.com/franpass87/FP-Social-Auto-Publisher-sub000/configs"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/transfer"
)

// FacebookService publishes to a Facebook page. Feed posts pick the photo,
// video or link endpoint from the attached media. Stories are a two step
// upload: an unpublished photo first, then the story referencing it.
type FacebookService struct {
	baseURL string
	story   bool
	client  *platformClient
}

func NewFacebookService(cfg config.Platforms, story bool) *FacebookService {
	return &FacebookService{
		baseURL: strings.TrimRight(cfg.GraphAPIURL, "/"),
		story:   story,
		client:  newPlatformClient("facebook", cfg.Timeout),
	}
}

func (s *FacebookService) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := requireAccount(req.Credentials); err != nil {
		return nil, err
	}
	if s.story {
		return s.publishStory(ctx, req)
	}

	pageID := req.Credentials.AccountID
	values := url.Values{"access_token": {req.Credentials.AccessToken}}

	var endpoint string
	if video, ok := req.FirstMedia(models.MediaVideo); ok {
		endpoint = fmt.Sprintf("%s/%s/videos", s.baseURL, pageID)
		values.Set("file_url", video.URL)
		values.Set("title", req.Title)
		values.Set("description", req.Message)
	} else if image, ok := req.FirstMedia(models.MediaImage); ok {
		endpoint = fmt.Sprintf("%s/%s/photos", s.baseURL, pageID)
		values.Set("url", image.URL)
		values.Set("caption", req.Message)
	} else {
		if strings.TrimSpace(req.Message) == "" && req.Link == "" {
			return nil, retry.New(retry.CodeValidation, "facebook post needs a message or a link")
		}
		endpoint = fmt.Sprintf("%s/%s/feed", s.baseURL, pageID)
		values.Set("message", req.Message)
		if req.Link != "" {
			values.Set("link", req.Link)
		}
	}

	resp, err := s.client.postForm(ctx, endpoint, values)
	if err != nil {
		return nil, err
	}

	var obj transfer.GraphObject
	if err := json.Unmarshal(resp.Body, &obj); err != nil {
		return nil, &retry.Error{Code: retry.CodeServerError, Message: "malformed facebook response", Response: snippet(resp.Body), Header: resp.Header, Sent: true, Err: err}
	}
	id := obj.PostID
	if id == "" {
		id = obj.ID
	}
	return &PublishResult{
		RemoteID: id,
		Message:  "Published to Facebook (" + id + ")",
		Response: snippet(resp.Body),
		Header:   resp.Header,
	}, nil
}

func (s *FacebookService) publishStory(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	image, ok := req.FirstMedia(models.MediaImage)
	if !ok {
		return nil, retry.New(retry.CodeNoMedia, "facebook story needs an image")
	}
	pageID := req.Credentials.AccountID

	upload, err := s.client.postForm(ctx, fmt.Sprintf("%s/%s/photos", s.baseURL, pageID), url.Values{
		"access_token": {req.Credentials.AccessToken},
		"url":          {image.URL},
		"published":    {"false"},
	})
	if err != nil {
		return nil, err
	}
	var photo transfer.GraphObject
	if err := json.Unmarshal(upload.Body, &photo); err != nil || photo.ID == "" {
		return nil, &retry.Error{Code: retry.CodeServerError, Message: "story photo upload returned no id", Response: snippet(upload.Body), Header: upload.Header, Sent: true, Err: err}
	}

	resp, err := s.client.postForm(ctx, fmt.Sprintf("%s/%s/photo_stories", s.baseURL, pageID), url.Values{
		"access_token": {req.Credentials.AccessToken},
		"photo_id":     {photo.ID},
	})
	if err != nil {
		return nil, err
	}
	var story transfer.StoryPublishResponse
	if err := json.Unmarshal(resp.Body, &story); err != nil {
		return nil, &retry.Error{Code: retry.CodeServerError, Message: "malformed story response", Response: snippet(resp.Body), Header: resp.Header, Sent: true, Err: err}
	}
	return &PublishResult{
		RemoteID: story.PostID,
		Message:  "Published Facebook story (" + story.PostID + ")",
		Response: snippet(resp.Body),
		Header:   resp.Header,
	}, nil
}

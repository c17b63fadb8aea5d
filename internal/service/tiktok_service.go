package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	config "github.com/franpass87/FP-Social-Auto-Publisher-sub000/configs"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/transfer"
)

// TiktokService posts through the Content Posting API. TikTok pulls the
// media from its public URL.
type TiktokService struct {
	baseURL string
	client  *platformClient
}

func NewTiktokService(cfg config.Platforms) *TiktokService {
	return &TiktokService{
		baseURL: strings.TrimRight(cfg.TiktokAPIURL, "/"),
		client:  newPlatformClient("tiktok", cfg.MediaTimeout),
	}
}

func (s *TiktokService) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := requireToken(req.Credentials); err != nil {
		return nil, err
	}

	var (
		endpoint string
		payload  interface{}
	)
	if video, ok := req.FirstMedia(models.MediaVideo); ok {
		endpoint = s.baseURL + "/post/publish/video/init/"
		payload = transfer.VideoUploadRequest{
			PostInfo: transfer.VideoPostInfo{
				Title:                 req.Message,
				PrivacyLevel:          "PUBLIC_TO_EVERYONE",
				VideoCoverTimestampMs: 1000,
			},
			SourceInfo: transfer.VideoSourceInfo{
				Source:   "PULL_FROM_URL",
				VideoURL: video.URL,
			},
		}
	} else {
		var photos []string
		for _, m := range req.Media {
			if m.Kind == models.MediaImage {
				photos = append(photos, m.URL)
			}
		}
		if len(photos) == 0 {
			return nil, retry.New(retry.CodeNoMedia, "tiktok needs a video or at least one image")
		}
		endpoint = s.baseURL + "/post/publish/content/init/"
		payload = transfer.PhotoUploadRequest{
			PostInfo: transfer.PhotoPostInfo{
				Title:        req.Title,
				Description:  req.Message,
				PrivacyLevel: "PUBLIC_TO_EVERYONE",
				AutoAddMusic: true,
			},
			SourceInfo: transfer.PhotoSourceInfo{
				Source:      "PULL_FROM_URL",
				PhotoImages: photos,
			},
			PostMode:  "DIRECT_POST",
			MediaType: "PHOTO",
		}
	}

	header := http.Header{"Authorization": {"Bearer " + req.Credentials.AccessToken}}
	resp, err := s.client.postJSON(ctx, endpoint, payload, header)
	if err != nil {
		var perr *retry.Error
		if resp != nil && errors.As(err, &perr) {
			refineTiktokError(perr, resp.Body)
		}
		return nil, err
	}

	var result transfer.TikTokUploadResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, &retry.Error{Code: retry.CodeServerError, Message: "malformed tiktok response", Response: snippet(resp.Body), Header: resp.Header, Sent: true, Err: err}
	}
	if result.Error.Code != "" && result.Error.Code != "ok" {
		perr := &retry.Error{Code: retry.CodeBadRequest, Message: result.Error.Message, Response: snippet(resp.Body), Header: resp.Header, Sent: true}
		refineTiktokError(perr, resp.Body)
		return nil, perr
	}

	return &PublishResult{
		RemoteID: result.Data.PublishID,
		Message:  "Submitted to TikTok (" + result.Data.PublishID + ")",
		Response: snippet(resp.Body),
		Header:   resp.Header,
	}, nil
}

// refineTiktokError narrows the code using TikTok's own error code.
func refineTiktokError(perr *retry.Error, body []byte) {
	var result transfer.TikTokUploadResponse
	if json.Unmarshal(body, &result) != nil {
		return
	}
	if result.Error.Message != "" {
		perr.Message = result.Error.Message
	}
	switch result.Error.Code {
	case "rate_limit_exceeded", "spam_risk_too_many_posts", "spam_risk_too_many_pending_share":
		perr.Code = retry.CodeRateLimit
	case "access_token_invalid", "access_token_expired":
		perr.Code = retry.CodeAuthenticationFailed
	case "scope_not_authorized", "scope_permission_missed", "spam_risk_user_banned_from_posting":
		perr.Code = retry.CodePermissionDenied
	case "invalid_params", "privacy_level_option_mismatch", "url_ownership_unverified":
		perr.Code = retry.CodeValidation
	case "internal_error":
		perr.Code = retry.CodeServerError
	}
}

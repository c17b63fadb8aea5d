package service

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"

	config "github.com/franpass87/FP-Social-Auto-Publisher-sub000/configs"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// MediaOpener streams the bytes of stored media.
type MediaOpener interface {
	OpenMedia(ctx context.Context, ref models.MediaRef) (io.ReadCloser, error)
}

// YoutubeService uploads the first attached video. Expired access tokens
// are refreshed through the oauth2 token source on the fly.
type YoutubeService struct {
	oauth    *oauth2.Config
	endpoint string
	media    MediaOpener
	client   *platformClient
}

func NewYoutubeService(cfg config.Platforms, media MediaOpener) *YoutubeService {
	return &YoutubeService{
		oauth:    youtubeOAuthConfig(cfg),
		endpoint: cfg.YoutubeAPIURL,
		media:    media,
		client:   newPlatformClient("youtube", cfg.MediaTimeout),
	}
}

func youtubeOAuthConfig(cfg config.Platforms) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Scopes:       []string{youtube.YoutubeUploadScope},
		Endpoint:     google.Endpoint,
	}
}

func (s *YoutubeService) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := requireToken(req.Credentials); err != nil {
		return nil, err
	}
	video, ok := req.FirstMedia(models.MediaVideo)
	if !ok {
		return nil, retry.New(retry.CodeNoMedia, "youtube needs a video")
	}

	file, err := s.media.OpenMedia(ctx, video)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client.http)
	tokenSource := s.oauth.TokenSource(ctx, &oauth2.Token{
		AccessToken:  req.Credentials.AccessToken,
		RefreshToken: req.Credentials.RefreshToken,
		Expiry:       req.Credentials.TokenExpiresAt,
	})

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource))}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, retry.Wrap(retry.CodeBadRequest, err)
	}

	title := req.Title
	if title == "" {
		title = firstLine(req.Message)
	}
	upload := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       truncateRunes(title, 100),
			Description: req.Message,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	resp, err := svc.Videos.Insert([]string{"snippet", "status"}, upload).Media(file).Context(ctx).Do()
	if err != nil {
		return nil, classifyGoogleError(err)
	}

	return &PublishResult{
		RemoteID: resp.Id,
		Message:  "Uploaded to YouTube: https://youtu.be/" + resp.Id,
		Header:   resp.Header,
	}, nil
}

func classifyGoogleError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		perr := classifyResponse(gerr.Code, []byte(gerr.Body), gerr.Header)
		if perr == nil {
			perr = &retry.Error{Code: retry.CodeUnknown, Sent: true}
		}
		if gerr.Message != "" {
			perr.Message = gerr.Message
		}
		for _, item := range gerr.Errors {
			switch item.Reason {
			case "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded", "uploadLimitExceeded":
				perr.Code = retry.CodeRateLimit
			case "authError", "youtubeSignupRequired":
				perr.Code = retry.CodeAuthenticationFailed
			case "forbidden", "insufficientPermissions":
				perr.Code = retry.CodePermissionDenied
			}
		}
		perr.Err = err
		return perr
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return &retry.Error{Code: retry.CodeAuthenticationFailed, Message: "token refresh failed", Response: snippet(rerr.Body), Err: err}
	}

	var uerr *url.Error
	if errors.As(err, &uerr) {
		return classifyTransportError(err)
	}
	return retry.Wrap(retry.CodeUnknown, err)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

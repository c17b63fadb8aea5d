package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/transfer"
)

// BlogService publishes to a WordPress site through its REST API using an
// application password. The site url comes from the account's extra data.
type BlogService struct {
	client *platformClient
}

func NewBlogService(timeout time.Duration) *BlogService {
	return &BlogService{client: newPlatformClient("blog", timeout)}
}

func (s *BlogService) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	site := strings.TrimRight(req.Credentials.Extra["site_url"], "/")
	if site == "" {
		return nil, retry.New(retry.CodeMissingCredential, "blog site url is missing")
	}
	if req.Credentials.Username == "" || req.Credentials.AccessToken == "" {
		return nil, retry.New(retry.CodeMissingCredential, "blog username or application password is missing")
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, retry.New(retry.CodeValidation, "blog post needs a title")
	}

	auth := base64.StdEncoding.EncodeToString([]byte(req.Credentials.Username + ":" + req.Credentials.AccessToken))
	header := http.Header{"Authorization": {"Basic " + auth}}

	resp, err := s.client.postJSON(ctx, site+"/wp-json/wp/v2/posts", transfer.WordPressPostRequest{
		Title:   req.Title,
		Content: req.Message,
		Status:  "publish",
	}, header)
	if err != nil {
		return nil, err
	}

	var post transfer.WordPressPostResponse
	if err := json.Unmarshal(resp.Body, &post); err != nil {
		return nil, &retry.Error{Code: retry.CodeServerError, Message: "malformed wordpress response", Response: snippet(resp.Body), Header: resp.Header, Sent: true, Err: err}
	}
	id := strconv.FormatInt(post.ID, 10)
	return &PublishResult{
		RemoteID: id,
		Message:  "Published to blog: " + post.Link,
		Response: snippet(resp.Body),
		Header:   resp.Header,
	}, nil
}

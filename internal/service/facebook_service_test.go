package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	config "github.com/franpass87/FP-Social-Auto-Publisher-sub000/configs"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlatforms(url string) config.Platforms {
	return config.Platforms{
		GraphAPIURL:          url,
		InstagramGraphURL:    url,
		InstagramRefreshURL:  url + "/refresh_access_token",
		TiktokAPIURL:         url,
		Timeout:              5 * time.Second,
		MediaTimeout:         5 * time.Second,
		ContainerPollEvery:   time.Millisecond,
		ContainerPollRetries: 3,
	}
}

func pageCredentials() Credentials {
	return Credentials{AccountID: "page1", AccessToken: "tok"}
}

func TestFacebookFeedPost(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/page1/feed", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		got = map[string]string{
			"message":      r.PostForm.Get("message"),
			"link":         r.PostForm.Get("link"),
			"access_token": r.PostForm.Get("access_token"),
		}
		w.Header().Set("X-App-Usage", `{"call_count":10}`)
		w.Write([]byte(`{"id":"page1_123"}`))
	}))
	defer srv.Close()

	fb := NewFacebookService(testPlatforms(srv.URL), false)
	res, err := fb.Publish(context.Background(), &PublishRequest{
		Channel:     models.ChannelFacebook,
		Message:     "hello",
		Link:        "https://example.com/post",
		Credentials: pageCredentials(),
	})
	require.NoError(t, err)

	assert.Equal(t, "page1_123", res.RemoteID)
	assert.Equal(t, "hello", got["message"])
	assert.Equal(t, "https://example.com/post", got["link"])
	assert.Equal(t, "tok", got["access_token"])
	assert.Equal(t, `{"call_count":10}`, res.Header.Get("X-App-Usage"))
}

func TestFacebookPhotoPostPrefersPostID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/page1/photos", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "https://cdn/img.png", r.PostForm.Get("url"))
		assert.Equal(t, "caption", r.PostForm.Get("caption"))
		w.Write([]byte(`{"id":"photo1","post_id":"page1_456"}`))
	}))
	defer srv.Close()

	fb := NewFacebookService(testPlatforms(srv.URL), false)
	res, err := fb.Publish(context.Background(), &PublishRequest{
		Message:     "caption",
		Media:       []models.MediaRef{{Kind: models.MediaImage, URL: "https://cdn/img.png"}},
		Credentials: pageCredentials(),
	})
	require.NoError(t, err)
	assert.Equal(t, "page1_456", res.RemoteID)
}

func TestFacebookMissingCredentialsMakesNoCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	fb := NewFacebookService(testPlatforms(srv.URL), false)
	_, err := fb.Publish(context.Background(), &PublishRequest{Message: "hi", Credentials: Credentials{AccountID: "page1"}})
	require.Error(t, err)

	perr := retry.AsError(err)
	assert.Equal(t, retry.CodeMissingCredential, perr.Code)
	assert.False(t, perr.Sent)
	assert.False(t, called)
}

func TestFacebookRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"(#32) Page request limit reached","code":32}}`))
	}))
	defer srv.Close()

	fb := NewFacebookService(testPlatforms(srv.URL), false)
	_, err := fb.Publish(context.Background(), &PublishRequest{Message: "hi", Credentials: pageCredentials()})
	require.Error(t, err)

	perr := retry.AsError(err)
	assert.Equal(t, retry.CodeRateLimit, perr.Code)
	assert.Equal(t, "(#32) Page request limit reached", perr.Message)
	assert.True(t, perr.Sent)
}

func TestFacebookStoryTwoPhase(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.NoError(t, r.ParseForm())
		switch r.URL.Path {
		case "/page1/photos":
			assert.Equal(t, "false", r.PostForm.Get("published"))
			w.Write([]byte(`{"id":"photo9"}`))
		case "/page1/photo_stories":
			assert.Equal(t, "photo9", r.PostForm.Get("photo_id"))
			w.Write([]byte(`{"success":true,"post_id":"story9"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	fb := NewFacebookService(testPlatforms(srv.URL), true)
	res, err := fb.Publish(context.Background(), &PublishRequest{
		Channel:     models.ChannelFacebookStory,
		Media:       []models.MediaRef{{Kind: models.MediaImage, URL: "https://cdn/a.jpg"}},
		Credentials: pageCredentials(),
	})
	require.NoError(t, err)
	assert.Equal(t, "story9", res.RemoteID)
	assert.Equal(t, []string{"/page1/photos", "/page1/photo_stories"}, paths)
}

func TestFacebookStoryFailsWhenSecondPhaseFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/page1/photos" {
			w.Write([]byte(`{"id":"photo9"}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid photo","code":100}}`))
	}))
	defer srv.Close()

	fb := NewFacebookService(testPlatforms(srv.URL), true)
	_, err := fb.Publish(context.Background(), &PublishRequest{
		Media:       []models.MediaRef{{Kind: models.MediaImage, URL: "https://cdn/a.jpg"}},
		Credentials: pageCredentials(),
	})
	require.Error(t, err)
	assert.Equal(t, retry.CodeBadRequest, retry.AsError(err).Code)
}

func TestFacebookStoryNeedsImage(t *testing.T) {
	fb := NewFacebookService(testPlatforms("http://unused"), true)
	_, err := fb.Publish(context.Background(), &PublishRequest{Credentials: pageCredentials()})
	require.Error(t, err)
	assert.Equal(t, retry.CodeNoMedia, retry.AsError(err).Code)
}

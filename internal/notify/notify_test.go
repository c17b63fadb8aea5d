package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeverityAtLeast(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityHigh))
	assert.True(t, SeverityHigh.AtLeast(SeverityHigh))
	assert.False(t, SeverityMedium.AtLeast(SeverityHigh))
	assert.False(t, SeverityLow.AtLeast(SeverityMedium))
}

func TestSlackNotifierPostsText(t *testing.T) {
	received := make(chan slackPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got slackPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		received <- got
	}))
	defer srv.Close()

	NewSlackNotifier(srv.URL).Notify(context.Background(), Message{
		Severity: SeverityHigh,
		Title:    "All channels failed",
		Text:     "content item 42",
	})

	select {
	case got := <-received:
		assert.True(t, strings.HasPrefix(got.Text, "[high] All channels failed"))
		assert.Contains(t, got.Text, "content item 42")
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never received the notification")
	}
}

func TestSlackNotifierDoesNotWaitForWebhook(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	n := NewSlackNotifier(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	for i := 0; i < slackQueueSize+10; i++ {
		n.Notify(ctx, Message{Severity: SeverityHigh, Title: "stuck webhook"})
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

type recorder struct{ msgs []Message }

func (r *recorder) Notify(_ context.Context, msg Message) { r.msgs = append(r.msgs, msg) }

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi{a, nil, b}.Notify(context.Background(), Message{Title: "x"})
	assert.Len(t, a.msgs, 1)
	assert.Len(t, b.msgs, 1)
}

package service

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
)

// Credentials are the decrypted secrets of one client on one platform.
type Credentials struct {
	AccountID      string
	Username       string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
	Extra          map[string]string
}

type PublishRequest struct {
	ContentItemID int64
	Channel       models.Channel
	Title         string
	Message       string
	Link          string
	Media         []models.MediaRef
	Credentials   Credentials
}

// FirstMedia returns the first attached media of the given kind.
func (r *PublishRequest) FirstMedia(kind models.MediaKind) (models.MediaRef, bool) {
	for _, m := range r.Media {
		if m.Kind == kind {
			return m, true
		}
	}
	return models.MediaRef{}, false
}

type PublishResult struct {
	RemoteID string
	Message  string
	Response string
	Header   http.Header
}

// PlatformAdapter publishes one content item to one channel. Any error it
// returns is a *retry.Error.
type PlatformAdapter interface {
	Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error)
}

type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Channel]PlatformAdapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.Channel]PlatformAdapter)}
}

func (r *Registry) Register(channel models.Channel, adapter PlatformAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[channel] = adapter
}

func (r *Registry) Get(channel models.Channel) (PlatformAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[channel]
	if !ok {
		return nil, retry.New(retry.CodeInvalidChannel, "no adapter registered for "+string(channel))
	}
	return a, nil
}

func requireToken(c Credentials) error {
	if c.AccessToken == "" {
		return retry.New(retry.CodeMissingCredential, "access token is missing")
	}
	return nil
}

func requireAccount(c Credentials) error {
	if err := requireToken(c); err != nil {
		return err
	}
	if c.AccountID == "" {
		return retry.New(retry.CodeMissingCredential, "account id is missing")
	}
	return nil
}

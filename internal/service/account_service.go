package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	config "github.com/franpass87/FP-Social-Auto-Publisher-sub000/configs"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/repository"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/transfer"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/pkg/utils"
	"golang.org/x/oauth2"
)

var ErrUnsupportedPlatform = errors.New("unsupported platform")

type AccountService interface {
	Connect(ctx context.Context, ac *transfer.AccountConnection) (int64, error)
	List(ctx context.Context, clientID int64) ([]*models.SocialAccount, error)
	Credentials(ctx context.Context, clientID int64, platform string) (*Credentials, error)
	RefreshToken(ctx context.Context, sa *models.SocialAccount) error
}

type accountService struct {
	cfg    config.Platforms
	secret []byte
	sa     repository.SocialAccountRepository
	client *platformClient
	now    func() time.Time
}

func NewAccountService(cfg config.Platforms, secretKey string, sa repository.SocialAccountRepository) AccountService {
	return &accountService{
		cfg:    cfg,
		secret: []byte(secretKey),
		sa:     sa,
		client: newPlatformClient("oauth", cfg.Timeout),
		now:    time.Now,
	}
}

func knownPlatform(p string) bool {
	for _, c := range models.AllChannels {
		if c.Platform() == p {
			return true
		}
	}
	return false
}

func (s *accountService) Connect(ctx context.Context, ac *transfer.AccountConnection) (int64, error) {
	if ac == nil || ac.ClientID == 0 {
		err := errors.New("client id is not valid")
		slog.Info(err.Error())
		return 0, err
	}
	if !knownPlatform(ac.Platform) {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, ac.Platform)
	}
	if ac.AccessToken == "" {
		err := errors.New("access token cannot be empty")
		slog.Info(err.Error())
		return 0, err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(ac.AccessToken), s.secret)
	if err != nil {
		return 0, err
	}
	var encryptedRefreshToken string
	if ac.RefreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(ac.RefreshToken), s.secret)
		if err != nil {
			return 0, err
		}
	}

	return s.sa.Upsert(ctx, &models.SocialAccount{
		ClientID:        ac.ClientID,
		Platform:        ac.Platform,
		AccountID:       ac.AccountID,
		AccountName:     ac.AccountName,
		AccountUsername: ac.AccountUsername,
		AccessToken:     encryptedAccessToken,
		RefreshToken:    encryptedRefreshToken,
		TokenExpiresAt:  ac.TokenExpiresAt,
		Extra:           ac.Extra,
	})
}

func (s *accountService) List(ctx context.Context, clientID int64) ([]*models.SocialAccount, error) {
	if clientID == 0 {
		err := errors.New("client id is not valid")
		slog.Info(err.Error())
		return nil, err
	}
	return s.sa.ListByClientID(ctx, clientID)
}

// Credentials loads and decrypts the account of a client on a platform.
// Failures are classified so the dispatcher can record them per channel.
func (s *accountService) Credentials(ctx context.Context, clientID int64, platform string) (*Credentials, error) {
	acc, err := s.sa.GetByClientPlatform(ctx, clientID, platform)
	if err != nil {
		return nil, retry.Wrap(retry.CodeConnectionFailed, err)
	}
	if acc == nil {
		return nil, retry.New(retry.CodeAuthenticationFailed, "no "+platform+" account connected")
	}

	accessToken, err := utils.Decrypt(acc.AccessToken, s.secret)
	if err != nil {
		return nil, &retry.Error{Code: retry.CodeAuthenticationFailed, Message: "stored access token cannot be decrypted", Err: err}
	}
	var refreshToken string
	if acc.RefreshToken != "" {
		refreshToken, err = utils.Decrypt(acc.RefreshToken, s.secret)
		if err != nil {
			return nil, &retry.Error{Code: retry.CodeAuthenticationFailed, Message: "stored refresh token cannot be decrypted", Err: err}
		}
	}

	return &Credentials{
		AccountID:      acc.AccountID,
		Username:       acc.AccountUsername,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		TokenExpiresAt: acc.TokenExpiresAt,
		Extra:          acc.Extra,
	}, nil
}

// RefreshToken exchanges the stored refresh token for a new access token.
// Platforms whose tokens do not expire are left alone.
func (s *accountService) RefreshToken(ctx context.Context, sa *models.SocialAccount) error {
	var (
		token *oauth2.Token
		err   error
	)
	switch sa.Platform {
	case "youtube":
		token, err = s.refreshYoutube(ctx, sa)
	case "tiktok":
		token, err = s.refreshTiktok(ctx, sa)
	case "instagram":
		token, err = s.refreshInstagram(ctx, sa)
	default:
		return nil
	}
	if err != nil {
		slog.Info(err.Error(), "platform", sa.Platform, "account_id", sa.ID)
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), s.secret)
	if err != nil {
		return err
	}
	updated := models.SocialAccount{
		AccessToken:    encryptedAccessToken,
		TokenExpiresAt: token.Expiry,
	}
	if token.RefreshToken != "" {
		updated.RefreshToken, err = utils.Encrypt([]byte(token.RefreshToken), s.secret)
		if err != nil {
			return err
		}
	}

	return s.sa.SetToken(ctx, sa.ID, sa.AccessToken, &updated)
}

func (s *accountService) decryptRefreshToken(sa *models.SocialAccount) (string, error) {
	encrypted := sa.RefreshToken
	if encrypted == "" {
		encrypted = sa.AccessToken
	}
	return utils.Decrypt(encrypted, s.secret)
}

func (s *accountService) refreshYoutube(ctx context.Context, sa *models.SocialAccount) (*oauth2.Token, error) {
	refreshToken, err := s.decryptRefreshToken(sa)
	if err != nil {
		return nil, err
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client.http)
	return youtubeOAuthConfig(s.cfg).TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
}

func (s *accountService) refreshTiktok(ctx context.Context, sa *models.SocialAccount) (*oauth2.Token, error) {
	refreshToken, err := s.decryptRefreshToken(sa)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.postForm(ctx, strings.TrimRight(s.cfg.TiktokAPIURL, "/")+"/oauth/token/", url.Values{
		"client_key":    {s.cfg.TiktokClientKey},
		"client_secret": {s.cfg.TiktokClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
	if err != nil {
		return nil, err
	}

	var tokenResponse transfer.TiktokTokenResponse
	if err := json.Unmarshal(resp.Body, &tokenResponse); err != nil {
		return nil, err
	}
	if tokenResponse.AccessToken == "" {
		return nil, errors.New("tiktok refresh returned no access token")
	}
	return &oauth2.Token{
		AccessToken:  tokenResponse.AccessToken,
		RefreshToken: tokenResponse.RefreshToken,
		Expiry:       s.now().Add(time.Duration(tokenResponse.ExpiresIn) * time.Second),
	}, nil
}

func (s *accountService) refreshInstagram(ctx context.Context, sa *models.SocialAccount) (*oauth2.Token, error) {
	accessToken, err := utils.Decrypt(sa.AccessToken, s.secret)
	if err != nil {
		return nil, err
	}

	endpoint := s.cfg.InstagramRefreshURL + "?" + url.Values{
		"grant_type":   {"ig_refresh_token"},
		"access_token": {accessToken},
	}.Encode()
	resp, err := s.client.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var result transfer.InstagramRefreshResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, errors.New("instagram refresh returned no access token")
	}
	return &oauth2.Token{
		AccessToken: result.AccessToken,
		Expiry:      s.now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}, nil
}

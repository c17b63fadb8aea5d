package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/repository"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/pkg/utils"
)

const maxKeysPerClient = 5

var (
	ErrKeyNotFound  = errors.New("key doesn't exist")
	ErrKeyLimit     = fmt.Errorf("only %d API keys can be created", maxKeysPerClient)
	ErrClientName   = errors.New("client name cannot be empty")
	ErrClientAbsent = errors.New("client doesn't exist")
)

type ApiKeyService interface {
	CreateClient(ctx context.Context, name string) (*models.Client, string, error)
	Create(ctx context.Context, clientID int64) (string, error)
	List(ctx context.Context, clientID int64) ([]*models.ApiKey, error)
	GetClientID(ctx context.Context, apiKey string) (int64, error)
	RemoveAPIKey(ctx context.Context, clientID, keyID int64) error
}

type apiKeyService struct {
	k repository.ApiKeyRepository
	c repository.ClientRepository
}

func NewApiKeyService(k repository.ApiKeyRepository, c repository.ClientRepository) ApiKeyService {
	return &apiKeyService{
		k: k,
		c: c,
	}
}

// CreateClient registers a client and issues its first key.
func (s *apiKeyService) CreateClient(ctx context.Context, name string) (*models.Client, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		slog.Info(ErrClientName.Error())
		return nil, "", ErrClientName
	}

	id, err := s.c.Create(ctx, name)
	if err != nil {
		return nil, "", err
	}
	key, err := s.Create(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return &models.Client{ID: id, Name: name}, key, nil
}

// Create issues a new key. The plaintext is returned once and never stored.
func (s *apiKeyService) Create(ctx context.Context, clientID int64) (string, error) {
	client, err := s.c.GetByID(ctx, clientID)
	if err != nil {
		return "", err
	}
	if client == nil {
		return "", ErrClientAbsent
	}

	keys, err := s.k.ListByClientID(ctx, clientID)
	if err != nil {
		return "", err
	}
	if len(keys) >= maxKeysPerClient {
		slog.Info(ErrKeyLimit.Error(), "client_id", clientID)
		return "", ErrKeyLimit
	}

	key, err := utils.GenerateRandomKey(24)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("error generating API key")
	}

	_, err = s.k.Create(ctx, &models.ApiKey{
		ClientID: clientID,
		KeyHash:  utils.HashKey(key),
		Prefix:   key[:6],
	})
	if err != nil {
		return "", fmt.Errorf("error saving API key")
	}
	return key, nil
}

func (s *apiKeyService) GetClientID(ctx context.Context, apiKey string) (int64, error) {
	clientID, isExist, err := s.k.GetClientIDByHash(ctx, utils.HashKey(apiKey))
	if err != nil {
		return 0, err
	}
	if !isExist {
		return 0, ErrKeyNotFound
	}
	return clientID, nil
}

func (s *apiKeyService) List(ctx context.Context, clientID int64) ([]*models.ApiKey, error) {
	apiKeys, err := s.k.ListByClientID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("error getting API keys")
	}
	return apiKeys, nil
}

func (s *apiKeyService) RemoveAPIKey(ctx context.Context, clientID, keyID int64) error {
	var err error

	if clientID == 0 {
		err = errors.New("client id is not valid")
		slog.Info(err.Error())
		return err
	}
	if keyID == 0 {
		err = errors.New("key id is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.k.CheckByClientID(ctx, keyID, clientID)
	if err != nil {
		return err
	}
	if !isValid {
		slog.Info(ErrKeyNotFound.Error())
		return ErrKeyNotFound
	}

	return s.k.Remove(ctx, keyID)
}

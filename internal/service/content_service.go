package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/repository"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/transfer"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var ErrContentNotFound = errors.New("content item not found")

// MediaUploader stores an uploaded file and returns its public URL.
type MediaUploader interface {
	Upload(ctx context.Context, key string, file []byte, contentType string) (string, error)
}

type ContentService interface {
	Create(ctx context.Context, clientID int64, cc *transfer.ContentCreation, files []*multipart.FileHeader) (int64, error)
	Get(ctx context.Context, id int64) (*models.ContentItem, error)
	List(ctx context.Context, clientID int64) ([]*models.ContentItem, error)
	Status(ctx context.Context, id int64) (*transfer.StatusReport, error)
}

type contentService struct {
	db       *sql.DB
	items    repository.ContentItemRepository
	media    repository.ContentMediaRepository
	attempts repository.AttemptLogRepository
	uploader MediaUploader
}

func NewContentService(
	db *sql.DB,
	items repository.ContentItemRepository,
	media repository.ContentMediaRepository,
	attempts repository.AttemptLogRepository,
	uploader MediaUploader) ContentService {
	return &contentService{
		db:       db,
		items:    items,
		media:    media,
		attempts: attempts,
		uploader: uploader,
	}
}

func (s *contentService) Create(ctx context.Context, clientID int64, cc *transfer.ContentCreation, files []*multipart.FileHeader) (id int64, err error) {
	if cc == nil {
		err = errors.New("content creation data is nil")
		slog.Error(err.Error())
		return 0, err
	}
	if clientID == 0 {
		err = errors.New("client id is not valid")
		slog.Info(err.Error())
		return 0, err
	}
	if strings.TrimSpace(cc.Title) == "" {
		err = errors.New("title cannot be empty")
		slog.Info(err.Error())
		return 0, err
	}

	item, err := parseContentCreation(clientID, cc)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	id, err = s.items.Create(ctx, tx, item)
	if err != nil {
		return 0, fmt.Errorf("error creating content item: %w", err)
	}

	if err = s.processFiles(ctx, tx, id, files); err != nil {
		return 0, fmt.Errorf("error processing files: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

func parseContentCreation(clientID int64, cc *transfer.ContentCreation) (*models.ContentItem, error) {
	item := &models.ContentItem{
		ClientID:  clientID,
		Title:     strings.TrimSpace(cc.Title),
		Body:      cc.Body,
		Permalink: cc.Permalink,
		Status:    models.StatusDraft,
	}

	var channels []string
	if err := json.Unmarshal([]byte(cc.Channels), &channels); err != nil {
		return nil, fmt.Errorf("invalid channels format: %w", err)
	}
	if len(channels) == 0 {
		return nil, errors.New("no channels selected")
	}
	seen := make(map[models.Channel]bool, len(channels))
	for _, raw := range channels {
		ch, err := models.ParseChannel(raw)
		if err != nil {
			return nil, err
		}
		if !seen[ch] {
			seen[ch] = true
			item.Channels = append(item.Channels, ch)
		}
	}

	if cc.Labels != "" {
		if err := json.Unmarshal([]byte(cc.Labels), &item.Labels); err != nil {
			return nil, fmt.Errorf("invalid labels format: %w", err)
		}
	}

	if cc.Overrides != "" {
		var overrides map[string]string
		if err := json.Unmarshal([]byte(cc.Overrides), &overrides); err != nil {
			return nil, fmt.Errorf("invalid overrides format: %w", err)
		}
		item.Overrides = make(map[models.Channel]string, len(overrides))
		for raw, text := range overrides {
			ch, err := models.ParseChannel(raw)
			if err != nil {
				return nil, err
			}
			item.Overrides[ch] = text
		}
	}

	if cc.DueDate != "" {
		due, err := time.Parse("2006-01-02", cc.DueDate)
		if err != nil {
			return nil, fmt.Errorf("invalid due date format: %w", err)
		}
		item.DueDate = &due
	}
	return item, nil
}

func (s *contentService) processFiles(ctx context.Context, tx *sql.Tx, itemID int64, files []*multipart.FileHeader) error {
	allowedTypes := map[string]struct{}{
		"mp4": {}, "mov": {}, "jpeg": {}, "png": {}, "jpg": {}, "webp": {},
	}

	for i, file := range files {
		fileBytes, err := readFile(file)
		if err != nil {
			return err
		}

		fileType, err := filetype.Match(fileBytes)
		if err != nil || fileType == types.Unknown {
			return fmt.Errorf("unsupported file type %s", file.Filename)
		}
		if _, ok := allowedTypes[fileType.Extension]; !ok {
			return fmt.Errorf("file type %s is not allowed", fileType.Extension)
		}

		key, err := gonanoid.New()
		if err != nil {
			return err
		}
		key = key + "." + fileType.Extension

		url, err := s.uploader.Upload(ctx, key, fileBytes, fileType.MIME.Value)
		if err != nil {
			return fmt.Errorf("error uploading file: %w", err)
		}

		kind := models.MediaImage
		if fileType.MIME.Type == "video" {
			kind = models.MediaVideo
		}
		ref := models.MediaRef{
			Kind:         kind,
			URL:          url,
			StorageKey:   key,
			MimeType:     fileType.MIME.Value,
			DisplayOrder: i,
		}
		if _, err := s.media.Create(ctx, tx, itemID, &ref); err != nil {
			return fmt.Errorf("error saving media file: %w", err)
		}
	}
	return nil
}

func readFile(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("error reading file content: %w", err)
	}
	return b, nil
}

func (s *contentService) Get(ctx context.Context, id int64) (*models.ContentItem, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrContentNotFound
	}
	item.Media, err = s.media.ListByContentItemID(ctx, id)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *contentService) List(ctx context.Context, clientID int64) ([]*models.ContentItem, error) {
	if clientID == 0 {
		err := errors.New("client id is not valid")
		slog.Info(err.Error())
		return nil, err
	}
	return s.items.ListByClientID(ctx, clientID)
}

// Status is a pure read: the item's lifecycle status, the per channel
// outcome and every attempt made so far.
func (s *contentService) Status(ctx context.Context, id int64) (*transfer.StatusReport, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrContentNotFound
	}

	logs, err := s.attempts.ListByContentItemID(ctx, id)
	if err != nil {
		return nil, err
	}

	published := item.PublishLog
	if published == nil {
		published = map[models.Channel]string{}
	}
	return &transfer.StatusReport{
		ContentItemID:   item.ID,
		PostStatus:      item.Status,
		ScheduledAt:     item.ScheduledAt,
		PublishedStatus: published,
		Logs:            logs,
	}, nil
}

package service

import (
	"bytes"
	"context"
	"mime/multipart"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/repository"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type fakeUploader struct {
	keys  []string
	types []string
}

func (f *fakeUploader) Upload(ctx context.Context, key string, file []byte, contentType string) (string, error) {
	f.keys = append(f.keys, key)
	f.types = append(f.types, contentType)
	return "https://media.example.com/" + key, nil
}

func multipartFiles(t *testing.T, name string, content []byte) []*multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("files", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	return form.File["files"]
}

func newContentService(t *testing.T) (ContentService, sqlmock.Sqlmock, *fakeUploader) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	up := &fakeUploader{}
	s := NewContentService(db,
		repository.NewContentItemRepository(db),
		repository.NewContentMediaRepository(db),
		repository.NewAttemptLogRepository(db),
		up)
	return s, mock, up
}

func TestContentCreateWithMedia(t *testing.T) {
	s, mock, up := newContentService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO content_items").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectQuery("INSERT INTO content_media").
		WithArgs(int64(5), "image", sqlmock.AnyArg(), sqlmock.AnyArg(), "image/png", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectCommit()

	id, err := s.Create(context.Background(), 7, &transfer.ContentCreation{
		Title:     "Launch",
		Body:      "We are live",
		Channels:  `["facebook","instagram","facebook"]`,
		Labels:    `["promo"]`,
		Overrides: `{"instagram":"Link in bio"}`,
		DueDate:   "2025-04-01",
	}, multipartFiles(t, "cover.png", pngHeader))
	require.NoError(t, err)

	assert.Equal(t, int64(5), id)
	require.Len(t, up.keys, 1)
	assert.Contains(t, up.keys[0], ".png")
	assert.Equal(t, []string{"image/png"}, up.types)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentCreateRollsBackOnBadFile(t *testing.T) {
	s, mock, up := newContentService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO content_items").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(6)))
	mock.ExpectRollback()

	_, err := s.Create(context.Background(), 7, &transfer.ContentCreation{
		Title:    "Launch",
		Channels: `["blog"]`,
	}, multipartFiles(t, "notes.txt", []byte("just text")))
	require.Error(t, err)

	assert.Empty(t, up.keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentCreateValidation(t *testing.T) {
	s, _, _ := newContentService(t)
	ctx := context.Background()

	_, err := s.Create(ctx, 7, &transfer.ContentCreation{Channels: `["blog"]`}, nil)
	assert.Error(t, err)

	_, err = s.Create(ctx, 7, &transfer.ContentCreation{Title: "x", Channels: `[]`}, nil)
	assert.Error(t, err)

	_, err = s.Create(ctx, 7, &transfer.ContentCreation{Title: "x", Channels: `["friendster"]`}, nil)
	assert.Error(t, err)

	_, err = s.Create(ctx, 0, &transfer.ContentCreation{Title: "x", Channels: `["blog"]`}, nil)
	assert.Error(t, err)
}

func TestParseContentCreationDedupesChannels(t *testing.T) {
	item, err := parseContentCreation(1, &transfer.ContentCreation{
		Title:    " Title ",
		Channels: `["tiktok","tiktok","blog"]`,
	})
	require.NoError(t, err)
	assert.Equal(t, "Title", item.Title)
	assert.Equal(t, []models.Channel{models.ChannelTiktok, models.ChannelBlog}, item.Channels)
	assert.Equal(t, models.StatusDraft, item.Status)
}

func expectStatusQueries(mock sqlmock.Sqlmock, created time.Time) {
	mock.ExpectQuery("FROM content_items ci").
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "client_id", "name", "title", "body", "permalink", "due_date", "labels", "channels",
			"overrides", "scheduled_at", "status", "publish_log", "created_at", "updated_at",
		}).AddRow(
			int64(11), int64(7), "Acme", "Launch", "", "", nil, "{}", "{facebook,instagram}",
			[]byte(`{}`), nil, "published",
			[]byte(`{"facebook":"Published to Facebook (123)","instagram":"instagram needs an image or a video"}`),
			created, created,
		))
	mock.ExpectQuery("FROM channel_attempt_logs").
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content_item_id", "channel", "status", "message", "remote_id", "response", "created_at"}).
			AddRow(int64(1), int64(11), "facebook", "success", "Published to Facebook (123)", "123", "{}", created).
			AddRow(int64(2), int64(11), "instagram", "error", "instagram needs an image or a video", "", "", created))
}

func TestContentStatusIsIdempotent(t *testing.T) {
	s, mock, _ := newContentService(t)
	created := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	expectStatusQueries(mock, created)
	expectStatusQueries(mock, created)

	first, err := s.Status(context.Background(), 11)
	require.NoError(t, err)
	second, err := s.Status(context.Background(), 11)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, models.StatusPublished, first.PostStatus)
	require.Len(t, first.Logs, 2)
	assert.Equal(t, models.AttemptSuccess, first.Logs[0].Status)
	assert.Equal(t, models.AttemptError, first.Logs[1].Status)
	assert.Equal(t, "Published to Facebook (123)", first.PublishedStatus[models.ChannelFacebook])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentStatusNotFound(t *testing.T) {
	s, mock, _ := newContentService(t)
	mock.ExpectQuery("FROM content_items ci").WithArgs(int64(99)).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.Status(context.Background(), 99)
	assert.ErrorIs(t, err, ErrContentNotFound)
}

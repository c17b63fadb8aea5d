package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	cfg "github.com/franpass87/FP-Social-Auto-Publisher-sub000/configs"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
)

// R2Service stores media in Cloudflare R2 and streams it back for
// platforms that need the bytes rather than a URL.
type R2Service struct {
	config cfg.R2
	http   *http.Client

	once   sync.Once
	client *s3.Client
	err    error
}

func NewR2Service(c cfg.R2, httpClient *http.Client) *R2Service {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &R2Service{config: c, http: httpClient}
}

func (r *R2Service) configured() bool {
	return r.config.AccountID != "" && r.config.BucketName != ""
}

func (r *R2Service) r2Client(ctx context.Context) (*s3.Client, error) {
	r.once.Do(func() {
		awsCfg, err := config.LoadDefaultConfig(ctx,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r.config.AccessKey, r.config.SecretKey, "")),
			config.WithRegion("auto"),
		)
		if err != nil {
			slog.Info(err.Error())
			r.err = err
			return
		}
		r.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r.config.AccountID))
		})
	})
	return r.client, r.err
}

// Upload stores file under key and returns its public URL.
func (r *R2Service) Upload(ctx context.Context, key string, file []byte, contentType string) (string, error) {
	client, err := r.r2Client(ctx)
	if err != nil {
		return "", err
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return strings.TrimRight(r.config.PublicURL, "/") + "/" + key, nil
}

// OpenMedia reads media from the bucket when it has a storage key, and from
// its public URL otherwise.
func (r *R2Service) OpenMedia(ctx context.Context, ref models.MediaRef) (io.ReadCloser, error) {
	if ref.StorageKey != "" && r.configured() {
		client, err := r.r2Client(ctx)
		if err != nil {
			return nil, retry.Wrap(retry.CodeConnectionFailed, err)
		}
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(r.config.BucketName),
			Key:    aws.String(ref.StorageKey),
		})
		if err != nil {
			var missing *types.NoSuchKey
			if errors.As(err, &missing) {
				return nil, retry.New(retry.CodeFileNotFound, "media "+ref.StorageKey+" not found in bucket")
			}
			return nil, retry.Wrap(retry.CodeNetworkError, err)
		}
		return out.Body, nil
	}

	if ref.URL == "" {
		return nil, retry.New(retry.CodeFileNotFound, "media has neither a storage key nor a url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, retry.Wrap(retry.CodeValidation, err)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		resp.Body.Close()
		return nil, retry.New(retry.CodeFileNotFound, "media "+ref.URL+" not found")
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &retry.Error{Code: retry.CodeNetworkError, Message: fmt.Sprintf("downloading media: HTTP %d", resp.StatusCode)}
	}
	return resp.Body, nil
}

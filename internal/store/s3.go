package store

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"snaplink/models"
)

// S3 stores captures in an S3-compatible bucket (R2 in production). The
// object key doubles as the ExternalID used for deletes, and the public
// locator is built from a printf-style URL template.
type S3 struct {
	client    *s3.Client
	bucket    string
	publicURL string
	timeout   time.Duration
}

type S3Options struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	PublicURL       string
	Timeout         time.Duration
}

func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
		},
	}
	httpClient := &http.Client{Transport: tr}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithHTTPClient(httpClient),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.AccessKeySecret, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", opts.AccountID))
	})

	return &S3{
		client:    client,
		bucket:    opts.Bucket,
		publicURL: opts.PublicURL,
		timeout:   opts.Timeout,
	}, nil
}

func (s *S3) Put(ctx context.Context, sessionID, captureType string, data []byte) (models.ImageRef, error) {
	now := time.Now()
	key := fmt.Sprintf("captures/%s/%s.jpg", sessionID, objectName(captureType, now))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return models.ImageRef{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	return models.ImageRef{
		Locator:    cleanURL(fmt.Sprintf(s.publicURL, key)),
		ExternalID: key,
		CapturedAt: now,
	}, nil
}

func (s *S3) Delete(ctx context.Context, ref models.ImageRef) error {
	if ref.ExternalID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref.ExternalID),
	})
	return err
}

func cleanURL(urlStr string) string {
	urlStr = strings.ReplaceAll(urlStr, " ", "%20")
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return urlStr
	}
	return parsedURL.String()
}

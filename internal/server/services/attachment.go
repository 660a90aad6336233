package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/notemist/notemist/internal/common"
	sc "github.com/notemist/notemist/internal/server/config"
	"github.com/notemist/notemist/internal/server/models"
	"github.com/notemist/notemist/internal/server/repositories/repomanager"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// Attachment upload states stored on the note row.
const (
	AttachmentStatusPending  = "pending"
	AttachmentStatusUploaded = "uploaded"
)

// AttachmentService brokers presigned object-storage URLs for note
// attachments. The server never proxies attachment bytes; clients talk to
// the S3-compatible backend directly.
type AttachmentService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
}

// NewAttachmentService constructs an AttachmentService using repositories
// and server config.
func NewAttachmentService(db *sql.DB, repomanager repomanager.RepositoryManager, config *sc.Config) *AttachmentService {
	return &AttachmentService{
		db:          db,
		repomanager: repomanager,
		config:      config,
	}
}

// GetRandomStorageKey returns a date-partitioned random object key.
func GetRandomStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("users/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *AttachmentService) getPresignClient() (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,     // MINIO_ROOT_USER
			s.config.S3RootPassword, // MINIO_ROOT_PASSWORD
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	})

	return newS3PresignClient(client), nil
}

func (s *AttachmentService) getPresignedPutURL(ctx context.Context, key string) (string, error) {
	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}

func (s *AttachmentService) getPresignedGetURL(ctx context.Context, key string) (string, error) {
	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket

	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}

func (s *AttachmentService) resolveNote(ctx context.Context, username, noteID string) (*models.User, *models.Note, error) {
	user, err := s.repomanager.Users(s.db).GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, common.ErrUnknownUser
	}
	note, err := s.repomanager.Notes(s.db).Get(ctx, user.ID, noteID)
	if err != nil {
		return nil, nil, err
	}
	return user, note, nil
}

// RequestUpload assigns a fresh storage key to the note, marks the
// attachment pending, and returns the key with a presigned PUT URL the
// client uploads to.
func (s *AttachmentService) RequestUpload(ctx context.Context, username, noteID string) (string, string, error) {
	user, _, err := s.resolveNote(ctx, username, noteID)
	if err != nil {
		return "", "", err
	}

	key := GetRandomStorageKey()

	url, err := s.getPresignedPutURL(ctx, key)
	if err != nil {
		return "", "", err
	}

	if err := s.repomanager.Notes(s.db).SetAttachment(ctx, user.ID, noteID, key, AttachmentStatusPending); err != nil {
		return "", "", fmt.Errorf("error recording attachment: %v", err)
	}

	return key, url, nil
}

// MarkUploaded flips the note's attachment to uploaded after the client
// finishes its PUT. A note without a pending attachment yields
// ErrorNotFound.
func (s *AttachmentService) MarkUploaded(ctx context.Context, username, noteID string) error {
	user, note, err := s.resolveNote(ctx, username, noteID)
	if err != nil {
		return err
	}
	if note.AttachmentKey == "" {
		return common.ErrorNotFound
	}

	err = s.repomanager.Notes(s.db).SetAttachment(ctx, user.ID, noteID, note.AttachmentKey, AttachmentStatusUploaded)
	if err != nil {
		return fmt.Errorf("error updating attachment: %v", err)
	}
	return nil
}

// GetDownloadURL returns a presigned GET URL for the note's uploaded
// attachment.
func (s *AttachmentService) GetDownloadURL(ctx context.Context, username, noteID string) (string, error) {
	_, note, err := s.resolveNote(ctx, username, noteID)
	if err != nil {
		return "", err
	}
	if note.AttachmentKey == "" || note.AttachmentStatus != AttachmentStatusUploaded {
		return "", common.ErrorNotFound
	}

	return s.getPresignedGetURL(ctx, note.AttachmentKey)
}

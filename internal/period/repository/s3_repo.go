package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nholding/cycle-book/internal/period/domain"
	awsclient "github.com/nholding/cycle-book/internal/repository"
	"github.com/nholding/cycle-book/internal/utils"
)

// entryKeyVersion prefixes every entry business key. Bump it when the key fields change.
const entryKeyVersion = "E1"

// S3API is the subset of the S3 client used by S3PeriodRepository.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3PeriodRepository stores every PeriodEntry as its own JSON object:
//
//	<prefix>/<owner>/<periodID>/<businessKey>.json
//
// The business key is derived from the entry contents, so saving the same entry
// again overwrites the same object.
type S3PeriodRepository struct {
	client S3API
	bucket string
	prefix string
}

func NewS3PeriodRepository(client S3API, bucket, prefix string) *S3PeriodRepository {
	return &S3PeriodRepository{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// NewS3PeriodRepositoryFromConfig builds the repository on top of the shared AWS S3 client.
func NewS3PeriodRepositoryFromConfig(ctx context.Context, cfg *awsclient.Config) (*S3PeriodRepository, error) {
	s3Client, err := awsclient.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed creating the AWS S3 Client: %w", err)
	}
	return NewS3PeriodRepository(s3Client.Client, s3Client.BucketName, cfg.S3Prefix), nil
}

// EntryKey returns the object key an entry is stored under.
func (r *S3PeriodRepository) EntryKey(owner string, entry domain.PeriodEntry) string {
	key := utils.GenerateBusinessKey(entryKeyVersion, map[string]string{
		"id":     entry.ID,
		"status": string(entry.Status),
		"start":  entry.StartDate.String(),
		"end":    entry.EndDate.String(),
	})
	return path.Join(r.ownerPrefix(owner), entry.ID, key+".json")
}

func (r *S3PeriodRepository) SavePeriodEntry(ctx context.Context, owner string, entry domain.PeriodEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry of period %s: %w", entry.ID, err)
	}

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(r.EntryKey(owner, entry)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put entry of period %s: %w", entry.ID, err)
	}
	return nil
}

// LoadPeriods lists every entry object of owner, decodes it and folds the entries into periods.
func (r *S3PeriodRepository) LoadPeriods(ctx context.Context, owner string) ([]*domain.Period, error) {
	var entries []domain.PeriodEntry

	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(r.ownerPrefix(owner) + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list entries of %s: %w", owner, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			entry, err := r.readEntry(ctx, key)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
	}

	return domain.FoldEntries(entries)
}

func (r *S3PeriodRepository) readEntry(ctx context.Context, key string) (domain.PeriodEntry, error) {
	var entry domain.PeriodEntry

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return entry, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return entry, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return entry, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return entry, nil
}

func (r *S3PeriodRepository) ownerPrefix(owner string) string {
	if r.prefix == "" {
		return owner
	}
	return r.prefix + "/" + owner
}

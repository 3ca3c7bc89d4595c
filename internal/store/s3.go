package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const createdAtMetaKey = "created_at"

type S3Store struct {
	bucket   string
	region   string
	baseURL  string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Store wraps an S3 client for one bucket. baseURL, when non-empty,
// overrides the virtual-hosted URL used by PublicURL (e.g. a CDN domain).
func NewS3Store(bucket, region, baseURL string, client *s3.Client) *S3Store {
	return &S3Store{
		bucket:   bucket,
		region:   region,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var infos []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			info := ObjectInfo{Key: aws.ToString(obj.Key)}
			if obj.LastModified != nil {
				info.CreatedAt = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

func (s *S3Store) Head(ctx context.Context, key string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{}, ErrNotFound
		}
		return ObjectInfo{}, err
	}

	info := ObjectInfo{Key: key, CreatedAt: parseCreatedAt(out.Metadata)}
	if info.CreatedAt.IsZero() && out.LastModified != nil {
		// Objects written by earlier tooling carry no created_at metadata;
		// LastModified is equivalent for write-once artifacts.
		info.CreatedAt = *out.LastModified
	}
	return info, nil
}

func (s *S3Store) Put(ctx context.Context, key string, obj Object) error {
	meta := map[string]string{}
	if !obj.CreatedAt.IsZero() {
		meta[createdAtMetaKey] = strconv.FormatInt(obj.CreatedAt.Unix(), 10)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(obj.Body),
		ContentType: aws.String(obj.ContentType),
		Metadata:    meta,
		ACL:         types.ObjectCannedACLPublicRead,
	}

	_, err := s.uploader.Upload(ctx, input)
	return err
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (s *S3Store) PublicURL(key string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

func parseCreatedAt(meta map[string]string) time.Time {
	if meta == nil {
		return time.Time{}
	}
	val, ok := meta[createdAtMetaKey]
	if !ok {
		return time.Time{}
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}

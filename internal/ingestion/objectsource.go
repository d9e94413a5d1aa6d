package ingestion

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
)

// ObjectSource serves documents from an S3-compatible object store
// (MinIO in the reference deployment), one store bucket per corpus
// bucket.
type ObjectSource struct {
	client *s3.Client
}

// NewObjectSource builds an object-store document source from
// configuration. MinIO requires path-style addressing.
func NewObjectSource(ctx context.Context, cfg config.ObjectStoreConfig) (*ObjectSource, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.ResolveAccessKey(), cfg.ResolveSecretKey(), "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to configure object store client; %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &ObjectSource{client: client}, nil
}

// NewObjectSourceFromClient wraps an existing S3 client. Used in tests.
func NewObjectSourceFromClient(client *s3.Client) *ObjectSource {
	return &ObjectSource{client: client}
}

// ListDocuments returns the recognized document keys in the corpus
// bucket in stable name order.
func (s *ObjectSource) ListDocuments(ctx context.Context, b bucket.Bucket) ([]string, error) {
	var names []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.String()),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list bucket %s; %w", b, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if bucket.RecognizedExtension(key) {
				names = append(names, key)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// FetchDocument downloads one object's bytes.
func (s *ObjectSource) FetchDocument(ctx context.Context, b bucket.Bucket, name string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.String()),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s/%s; %w", b, name, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s body; %w", b, name, err)
	}
	return data, nil
}

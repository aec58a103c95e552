package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	cryptoutil "detailpay/internal/platform/crypto"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3 struct {
	client objectPutter
	bucket string
	crypto *cryptoutil.Service
}

// NewS3 loads the default AWS credential chain. A non-empty endpoint targets an
// S3-compatible store such as R2 or MinIO.
func NewS3(ctx context.Context, bucket, region, endpoint string, crypto *cryptoutil.Service) (*S3, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{client: client, bucket: bucket, crypto: crypto}, nil
}

func (a *S3) Archive(ctx context.Context, doc Document) (string, error) {
	key, err := objectKey(doc)
	if err != nil {
		return "", err
	}
	key, body, err := seal(a.crypto, key, doc.Body)
	if err != nil {
		return "", err
	}
	contentType := doc.ContentType
	if contentType == "" {
		contentType = ContentTypePDF
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"payee":     doc.PayeeName,
			"reference": doc.ReferenceKey,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s in bucket %s: %w", key, a.bucket, err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}

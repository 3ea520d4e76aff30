// Package archive ships reconciliation snapshots to object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	json "github.com/goccy/go-json"

	"github.com/coachpo/orderbroker/internal/domain/order"
)

// Snapshot is one reconciliation pass: the statuses observed and the ids that failed.
type Snapshot struct {
	Venue   string             `json:"venue"`
	TakenAt time.Time          `json:"takenAt"`
	Records []order.FillRecord `json:"records"`
	Failed  map[string]string  `json:"failed,omitempty"`
}

// Archiver stores snapshots.
type Archiver interface {
	Archive(ctx context.Context, snapshot Snapshot) (string, error)
}

// S3Config locates the bucket and credentials.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Archiver writes each snapshot as a JSON object keyed by venue and time.
type S3Archiver struct {
	client s3iface.S3API
	bucket string
	prefix string
}

// NewS3Archiver wraps an existing client.
func NewS3Archiver(client s3iface.S3API, bucket, prefix string) (*S3Archiver, error) {
	if client == nil {
		return nil, fmt.Errorf("archive: s3 client required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("archive: bucket required")
	}
	return &S3Archiver{
		client: client,
		bucket: strings.TrimSpace(bucket),
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
	}, nil
}

// NewS3Client opens a session for cfg. Static credentials are used when both keys are set,
// otherwise the default AWS credential chain applies.
func NewS3Client(cfg S3Config) (*s3.S3, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("archive: create session: %w", err)
	}
	return s3.New(sess), nil
}

// Archive uploads snapshot and returns the object key.
func (a *S3Archiver) Archive(ctx context.Context, snapshot Snapshot) (string, error) {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("archive: encode snapshot: %w", err)
	}
	key := a.objectKey(snapshot)
	_, err = a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("archive: put %s: %w", key, err)
	}
	return key, nil
}

func (a *S3Archiver) objectKey(snapshot Snapshot) string {
	taken := snapshot.TakenAt.UTC()
	venue := snapshot.Venue
	if venue == "" {
		venue = "unknown"
	}
	name := fmt.Sprintf("fills-%s.json", taken.Format("20060102T150405.000000Z"))
	return path.Join(a.prefix, venue, taken.Format("2006/01/02"), name)
}

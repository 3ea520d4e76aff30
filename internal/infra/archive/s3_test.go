package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	json "github.com/goccy/go-json"

	"github.com/coachpo/orderbroker/internal/domain/order"
)

type fakeS3 struct {
	s3iface.S3API
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3ArchiverUploadsSnapshot(t *testing.T) {
	client := &fakeS3{}
	archiver, err := NewS3Archiver(client, "fills-bucket", "/broker/")
	if err != nil {
		t.Fatalf("NewS3Archiver returned error: %v", err)
	}
	taken := time.Date(2024, 5, 6, 7, 8, 9, 123456000, time.UTC)
	snapshot := Snapshot{
		Venue:   "talos",
		TakenAt: taken,
		Records: []order.FillRecord{{OrderID: "a", Status: order.StatusFilled, ObservedAt: taken}},
		Failed:  map[string]string{"b": "timeout"},
	}
	key, err := archiver.Archive(context.Background(), snapshot)
	if err != nil {
		t.Fatalf("Archive returned error: %v", err)
	}
	if key != "broker/talos/2024/05/06/fills-20240506T070809.123456Z.json" {
		t.Fatalf("unexpected key %s", key)
	}
	if len(client.inputs) != 1 || aws.StringValue(client.inputs[0].Bucket) != "fills-bucket" {
		t.Fatalf("unexpected put inputs %+v", client.inputs)
	}
	var decoded Snapshot
	if err := json.Unmarshal(client.bodies[0], &decoded); err != nil {
		t.Fatalf("decode uploaded body: %v", err)
	}
	if len(decoded.Records) != 1 || decoded.Records[0].Status != order.StatusFilled || decoded.Failed["b"] != "timeout" {
		t.Fatalf("unexpected uploaded snapshot %+v", decoded)
	}
}

func TestS3ArchiverPropagatesErrors(t *testing.T) {
	archiver, _ := NewS3Archiver(&fakeS3{err: errors.New("access denied")}, "bucket", "")
	if _, err := archiver.Archive(context.Background(), Snapshot{TakenAt: time.Now()}); err == nil {
		t.Fatal("expected upload error")
	}
}

func TestNewS3ArchiverValidates(t *testing.T) {
	if _, err := NewS3Archiver(nil, "bucket", ""); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewS3Archiver(&fakeS3{}, " ", ""); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

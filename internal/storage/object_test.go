package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeHead struct {
	err    error
	bucket string
	key    string
}

func (f *fakeHead) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.bucket, f.key = *in.Bucket, *in.Key
	if f.err != nil {
		return nil, f.err
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri, bucket, key string
		wantErr          bool
	}{
		{uri: "s3://media/loops/intro.mp4", bucket: "media", key: "loops/intro.mp4"},
		{uri: "s3://media/", wantErr: true},
		{uri: "https://media/x.png", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, key, err := ParseURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.bucket || key != tt.key {
				t.Fatalf("got %q %q", bucket, key)
			}
		})
	}
}

func TestS3StoreStat(t *testing.T) {
	head := &fakeHead{}
	store := NewS3Store(head)
	if err := store.Stat(context.Background(), "media", "a.png"); err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if head.bucket != "media" || head.key != "a.png" {
		t.Fatalf("request = %q %q", head.bucket, head.key)
	}

	head.err = &types.NotFound{}
	if err := store.Stat(context.Background(), "media", "gone.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

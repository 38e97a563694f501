// Package snapshot publishes tagged document versions to S3-compatible
// object storage so labeled releases survive a process restart.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Uploader struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and ensures the bucket exists.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Uploader, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	u := &Uploader{client: client, bucket: bucket}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := u.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *Uploader) ensureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", u.bucket, err)
	}
	log.Printf("snapshot: created bucket %s", u.bucket)
	return nil
}

// UploadTagSnapshot stores the tagged content at documents/{doc}/tags/{tag}.txt.
// Re-tagging is rejected upstream, so an existing object is never overwritten
// with different content.
func (u *Uploader) UploadTagSnapshot(ctx context.Context, documentID, tag, content string) error {
	objectName := fmt.Sprintf("documents/%s/tags/%s.txt", documentID, tag)
	reader := strings.NewReader(content)
	_, err := u.client.PutObject(ctx, u.bucket, objectName, reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return fmt.Errorf("upload tag snapshot %s: %w", objectName, err)
	}
	return nil
}

// FetchTagSnapshot retrieves a previously uploaded tag snapshot.
func (u *Uploader) FetchTagSnapshot(ctx context.Context, documentID, tag string) (string, error) {
	objectName := fmt.Sprintf("documents/%s/tags/%s.txt", documentID, tag)
	obj, err := u.client.GetObject(ctx, u.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("fetch tag snapshot %s: %w", objectName, err)
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("read tag snapshot %s: %w", objectName, err)
	}
	return string(raw), nil
}

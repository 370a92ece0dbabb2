package formdetector

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
)

// MinIOResolver resolves form filenames to object URLs in an S3/MinIO
// bucket, grounded on the teacher's MinIO client wiring
// (unified-rag-service/main.go: minio.New + BucketExists/MakeBucket).
// Objects are keyed "<collection_id>/<doc_id>/<filename>".
type MinIOResolver struct {
	client *minio.Client
	bucket string
}

// NewMinIOResolver wraps an already-connected MinIO client.
func NewMinIOResolver(client *minio.Client, bucket string) *MinIOResolver {
	return &MinIOResolver{client: client, bucket: bucket}
}

// Resolve checks the object exists before returning its placeholder URL;
// the external file-serving collaborator expands this into a signed URL or
// proxy path (spec §4.H: "URLs are constructed by the external collaborator").
func (r *MinIOResolver) Resolve(ctx context.Context, collectionID, docID, filename string) (string, error) {
	key := fmt.Sprintf("%s/%s/%s", collectionID, docID, filename)
	if _, err := r.client.StatObject(ctx, r.bucket, key, minio.StatObjectOptions{}); err != nil {
		return "", fmt.Errorf("form object %s not found in bucket %s: %w", key, r.bucket, err)
	}
	return fmt.Sprintf("minio://%s/%s", r.bucket, key), nil
}

var _ FormResolver = (*MinIOResolver)(nil)

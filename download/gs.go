package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/airbusgeo/eocatalog/service"
)

// GS downloads assets from google storage buckets (gs:// locations). A
// location ending with "/" is a product directory fetched object by object.
type GS struct {
	client *storage.Client
}

// NewGS creates the collaborator with the ambient credentials
func NewGS(ctx context.Context) (*GS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGS: %w", err)
	}
	return &GS{client: client}, nil
}

// Name implements Downloader
func (d *GS) Name() string {
	return "GoogleStorage"
}

// Fetch implements Downloader
func (d *GS) Fetch(ctx context.Context, url, localPath string) error {
	bucket, key, err := parseBucketURL(url)
	if err != nil {
		return fmt.Errorf("Fetch: %w", err)
	}
	if strings.HasSuffix(key, "/") {
		return d.fetchPrefix(ctx, bucket, key, localPath)
	}
	return d.fetchObject(ctx, bucket, key, localPath)
}

func (d *GS) fetchObject(ctx context.Context, bucket, key, localPath string) error {
	r, err := d.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return ErrProductNotFound{Product: "gs://" + bucket + "/" + key}
		}
		return service.MakeTemporary(fmt.Errorf("fetchObject[gs://%s/%s]: %w", bucket, key, err))
	}
	defer r.Close()
	if err := os.MkdirAll(filepath.Dir(localPath), 0766); err != nil {
		return fmt.Errorf("fetchObject: %w", err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("fetchObject: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(localPath)
		return service.MakeTemporary(fmt.Errorf("fetchObject[gs://%s/%s]: %w", bucket, key, err))
	}
	return nil
}

func (d *GS) fetchPrefix(ctx context.Context, bucket, prefix, localDir string) error {
	query := &storage.Query{Prefix: prefix}
	query.SetAttrSelection([]string{"Name"})
	it := d.client.Bucket(bucket).Objects(ctx, query)
	found := false
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return service.MakeTemporary(fmt.Errorf("fetchPrefix[gs://%s/%s]: %w", bucket, prefix, err))
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		found = true
		if err := d.fetchObject(ctx, bucket, attrs.Name, filepath.Join(localDir, strings.TrimPrefix(attrs.Name, prefix))); err != nil {
			return err
		}
	}
	if !found {
		return ErrProductNotFound{Product: "gs://" + bucket + "/" + prefix}
	}
	return nil
}

package download

import (
	"context"
	"fmt"
	neturl "net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/airbusgeo/eocatalog/service"
)

// S3 downloads assets from object-store buckets (s3:// locations). A location
// ending with "/" is a product directory: every object under the prefix is
// fetched, keeping the layout.
type S3 struct {
	client     *s3.Client
	downloader *manager.Downloader
}

// NewS3 creates the collaborator. Empty credentials fall back to the
// environment configuration.
func NewS3(ctx context.Context, accessKey, secretKey string) (*S3, error) {
	var options []func(*awsconfig.LoadOptions) error
	if accessKey != "" {
		options = append(options, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("NewS3: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3{client: client, downloader: manager.NewDownloader(client)}, nil
}

// Name implements Downloader
func (d *S3) Name() string {
	return "S3"
}

// Fetch implements Downloader
func (d *S3) Fetch(ctx context.Context, url, localPath string) error {
	bucket, key, err := parseBucketURL(url)
	if err != nil {
		return fmt.Errorf("Fetch: %w", err)
	}
	if strings.HasSuffix(key, "/") {
		return d.fetchPrefix(ctx, bucket, key, localPath)
	}
	return d.fetchObject(ctx, bucket, key, localPath)
}

func (d *S3) fetchObject(ctx context.Context, bucket, key, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0766); err != nil {
		return fmt.Errorf("fetchObject: %w", err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("fetchObject: %w", err)
	}
	defer f.Close()
	if _, err := d.downloader.Download(ctx, f, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}); err != nil {
		os.Remove(localPath)
		return service.MakeTemporary(fmt.Errorf("fetchObject[s3://%s/%s]: %w", bucket, key, err))
	}
	return nil
}

func (d *S3) fetchPrefix(ctx context.Context, bucket, prefix, localDir string) error {
	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	found := false
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return service.MakeTemporary(fmt.Errorf("fetchPrefix[s3://%s/%s]: %w", bucket, prefix, err))
		}
		for _, object := range page.Contents {
			key := aws.ToString(object.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			found = true
			if err := d.fetchObject(ctx, bucket, key, filepath.Join(localDir, strings.TrimPrefix(key, prefix))); err != nil {
				return err
			}
		}
	}
	if !found {
		return ErrProductNotFound{Product: "s3://" + bucket + "/" + prefix}
	}
	return nil
}

// parseBucketURL splits an s3:// or gs:// url into bucket and key
func parseBucketURL(url string) (bucket, key string, err error) {
	parsed, err := neturl.Parse(url)
	if err != nil {
		return "", "", err
	}
	if parsed.Host == "" {
		return "", "", fmt.Errorf("missing bucket in %s", url)
	}
	return parsed.Host, strings.TrimPrefix(parsed.Path, "/"), nil
}

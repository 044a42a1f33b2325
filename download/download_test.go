package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/eocatalog/common"
	"github.com/airbusgeo/eocatalog/service"
)

func TestResolveURL(t *testing.T) {
	p := common.NewProduct("peps", "S2_MSI_L1C")
	p.LocationURLTemplate = "{base}/collections/S2ST/42/download"
	url := ResolveURL(p, "https://example.org/resource/")
	if url != "https://example.org/resource/collections/S2ST/42/download" {
		t.Errorf("unexpected url: %s", url)
	}

	p.LocationURLTemplate = "https://example.org/dl/42"
	if ResolveURL(p, "https://other.example.org") != "https://example.org/dl/42" {
		t.Error("explicit locations must be kept verbatim")
	}
}

func TestManagerUnknownScheme(t *testing.T) {
	p := common.NewProduct("peps", "S2_MSI_L1C")
	p.LocationURLTemplate = "s3://bucket/key"
	m := NewManager("")
	if err := m.Download(context.Background(), p, t.TempDir()); err == nil {
		t.Error("expecting an error on an unhandled scheme")
	}
}

func TestManagerEmptyLocation(t *testing.T) {
	p := common.NewProduct("peps", "S2_MSI_L1C")
	m := NewManager("")
	err := m.Download(context.Background(), p, t.TempDir())
	var notFound ErrProductNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("expecting ErrProductNotFound, got %v", err)
	}
}

type flakyDownloader struct {
	failures int
	err      error
	calls    int
}

func (d *flakyDownloader) Name() string { return "flaky" }

func (d *flakyDownloader) Fetch(ctx context.Context, url, localPath string) error {
	d.calls++
	if d.calls <= d.failures {
		return d.err
	}
	return nil
}

func TestManagerRetriesTemporary(t *testing.T) {
	p := common.NewProduct("peps", "S2_MSI_L1C")
	p.LocationURLTemplate = "flaky://host/asset"
	p.LocalFilename = "asset.zip"

	d := &flakyDownloader{failures: 1, err: service.MakeTemporary(fmt.Errorf("truncated transfer"))}
	m := NewManager("")
	m.Register("flaky", d)
	if err := m.Download(context.Background(), p, t.TempDir()); err != nil {
		t.Fatalf("a temporary failure must be retried, got %v", err)
	}
	if d.calls != 2 {
		t.Errorf("expecting 2 fetch attempts, got %d", d.calls)
	}
}

func TestManagerTemporaryExhausted(t *testing.T) {
	p := common.NewProduct("peps", "S2_MSI_L1C")
	p.LocationURLTemplate = "flaky://host/asset"

	d := &flakyDownloader{failures: 10, err: service.MakeTemporary(fmt.Errorf("truncated transfer"))}
	m := NewManager("")
	m.Register("flaky", d)
	if err := m.Download(context.Background(), p, t.TempDir()); err == nil {
		t.Error("expecting an error once the attempts are exhausted")
	}
	if d.calls != 3 {
		t.Errorf("expecting 3 fetch attempts, got %d", d.calls)
	}
}

func TestManagerPermanentNotRetried(t *testing.T) {
	p := common.NewProduct("peps", "S2_MSI_L1C")
	p.LocationURLTemplate = "flaky://host/asset"

	d := &flakyDownloader{failures: 10, err: fmt.Errorf("bad request")}
	m := NewManager("")
	m.Register("flaky", d)
	if err := m.Download(context.Background(), p, t.TempDir()); err == nil {
		t.Error("expecting the permanent failure to be returned")
	}
	if d.calls != 1 {
		t.Errorf("a permanent failure must not be retried, got %d attempts", d.calls)
	}
}

func TestManagerFatalNotRetried(t *testing.T) {
	p := common.NewProduct("peps", "S2_MSI_L1C")
	p.LocationURLTemplate = "flaky://host/asset"

	d := &flakyDownloader{failures: 10, err: service.MakeFatal(service.MakeTemporary(fmt.Errorf("corrupted state")))}
	m := NewManager("")
	m.Register("flaky", d)
	if err := m.Download(context.Background(), p, t.TempDir()); err == nil {
		t.Error("expecting the fatal failure to be returned")
	}
	if d.calls != 1 {
		t.Errorf("a fatal failure must not be retried, got %d attempts", d.calls)
	}
}

func TestManagerHTTPDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "payload")
	}))
	defer server.Close()

	p := common.NewProduct("peps", "S2_MSI_L1C")
	p.LocationURLTemplate = "{base}/dl/42"
	p.LocalFilename = "42.zip"

	m := NewManager(server.URL)
	httpDownloader := &HTTP{}
	m.Register("http", httpDownloader)
	m.Register("https", httpDownloader)

	dir := t.TempDir()
	if err := m.Download(context.Background(), p, dir); err != nil {
		t.Fatalf("%v", err)
	}
	payload, err := os.ReadFile(filepath.Join(dir, "42.zip"))
	if err != nil {
		t.Fatalf("%v", err)
	}
	if string(payload) != "payload" {
		t.Errorf("unexpected payload: %s", payload)
	}
}

func TestHTTPNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	d := &HTTP{}
	err := d.Fetch(context.Background(), server.URL+"/gone", filepath.Join(t.TempDir(), "gone"))
	var notFound ErrProductNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("expecting ErrProductNotFound, got %v", err)
	}
}

func TestParseBucketURL(t *testing.T) {
	bucket, key, err := parseBucketURL("s3://tiles/31/T/CJ/2018/1/1/0/")
	if err != nil {
		t.Fatalf("%v", err)
	}
	if bucket != "tiles" || key != "31/T/CJ/2018/1/1/0/" {
		t.Errorf("unexpected parse: %s %s", bucket, key)
	}
	if _, _, err := parseBucketURL("s3:///nobucket"); err == nil {
		t.Error("expecting an error on a missing bucket")
	}
}

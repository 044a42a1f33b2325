package download

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	neturl "net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/airbusgeo/eocatalog/service"
	"github.com/airbusgeo/eocatalog/service/log"
)

// FTP downloads assets over ftp(s). Hosts on port 990 use implicit TLS.
type FTP struct {
	User     string
	Password string
}

// Name implements Downloader
func (d *FTP) Name() string {
	return "FTP"
}

// Fetch implements Downloader
func (d *FTP) Fetch(ctx context.Context, url, localPath string) error {
	parsed, err := neturl.Parse(url)
	if err != nil {
		return fmt.Errorf("Fetch: %w", err)
	}
	host := parsed.Host
	if !strings.Contains(host, ":") {
		host += ":21"
	}

	options := []ftp.DialOption{ftp.DialWithTimeout(5 * time.Second)}
	if strings.HasSuffix(host, ":990") {
		options = append(options, ftp.DialWithTLS(&tls.Config{InsecureSkipVerify: true}))
	}
	c, err := ftp.Dial(host, options...)
	if err != nil {
		return service.MakeTemporary(fmt.Errorf("Fetch.Dial: %w", err))
	}
	defer c.Quit()

	user := d.User
	if user == "" {
		user = "anonymous"
	}
	if err := c.Login(user, d.Password); err != nil {
		return fmt.Errorf("Fetch.Login: %w", err)
	}

	path := strings.TrimPrefix(parsed.Path, "/")
	size, _ := c.FileSize(path)
	r, err := c.Retr(path)
	if err != nil {
		return ErrProductNotFound{Product: url}
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0766); err != nil {
		return fmt.Errorf("Fetch: %w", err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("Fetch.Create: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		os.Remove(localPath)
		return service.MakeTemporary(fmt.Errorf("Fetch.Copy: %w", err))
	}
	log.Logger(ctx).Sugar().Debugf("%s: %s fetched", url, fmtBytes(n))
	if size > 0 && n != size {
		os.Remove(localPath)
		return service.MakeTemporary(fmt.Errorf("Fetch: incomplete transfer (%d/%d bytes)", n, size))
	}
	return nil
}

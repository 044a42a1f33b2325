package download

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cavaliercoder/grab"

	"github.com/airbusgeo/eocatalog/auth"
	"github.com/airbusgeo/eocatalog/service"
	"github.com/airbusgeo/eocatalog/service/log"
)

// HTTP downloads assets over http(s) with resumable requests
type HTTP struct {
	Authn auth.Authenticator
	// CopyAuthOnRedirect forwards the Authorization header across redirects
	// (some providers redirect the download to a signed mirror)
	CopyAuthOnRedirect bool
}

// Name implements Downloader
func (d *HTTP) Name() string {
	return "HTTP"
}

// Fetch implements Downloader
func (d *HTTP) Fetch(ctx context.Context, url, localPath string) error {
	req, err := grab.NewRequest(localPath, url)
	if err != nil {
		return fmt.Errorf("Fetch.NewRequest: %w", err)
	}
	req = req.WithContext(ctx)
	if d.Authn != nil {
		if err := d.Authn.Authenticate(req.HTTPRequest); err != nil {
			return fmt.Errorf("Fetch.Authenticate: %w", err)
		}
	}

	client := grab.NewClient()
	if d.CopyAuthOnRedirect {
		client.HTTPClient.CheckRedirect = checkRedirectAndCopyAuth
	}
	resp := client.Do(req)

	displayProgress(ctx, url, resp, 0.05)

	if err := resp.Err(); err != nil {
		err = fmt.Errorf("Fetch[%s]: %w", url, err)
		if resp.HTTPResponse == nil {
			return service.MakeTemporary(err)
		}
		switch resp.HTTPResponse.StatusCode {
		case 408, 429, 500, 501, 502, 503, 504:
			return service.MakeTemporary(err)
		case 404:
			return ErrProductNotFound{Product: url}
		default:
			return err
		}
	}
	return nil
}

func checkRedirectAndCopyAuth(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if authorization, ok := via[0].Header["Authorization"]; ok {
		req.Header.Add("Authorization", authorization[0])
	}
	return nil
}

// displayProgress logs the download progress every progressPeriod
func displayProgress(ctx context.Context, prefix string, resp *grab.Response, progressPeriod float64) {
	t := time.NewTicker(time.Second)
	defer t.Stop()

	progress, lastBytes, seconds := 0.0, int64(0), int64(0)
	for {
		select {
		case <-t.C:
			seconds++
			if resp.Progress() > progress {
				log.Logger(ctx).Sugar().Debugf("%s: %.2f%% %s/%s (%s/s)", prefix, 100*resp.Progress(),
					fmtBytes(resp.BytesComplete()), fmtBytes(resp.Size), fmtBytes((resp.BytesComplete()-lastBytes)/seconds))
				seconds = 0
				progress += progressPeriod
				lastBytes = resp.BytesComplete()
			}

		case <-resp.Done:
			return
		}
	}
}

func fmtBytes(bytes int64) string {
	v := float64(bytes)
	switch {
	case v > 1<<30:
		return fmt.Sprintf("%.2fGo", v/(1<<30))
	case v > 1<<20:
		return fmt.Sprintf("%.2fMo", v/(1<<20))
	case v > 1<<10:
		return fmt.Sprintf("%.2fko", v/(1<<10))
	default:
		return fmt.Sprintf("%.2fo", v)
	}
}

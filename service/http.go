package service

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"time"

	"golang.org/x/time/rate"
)

// limiter throttles all outgoing catalog requests. Unlimited by default,
// SetRequestRate is called once at startup.
var limiter = rate.NewLimiter(rate.Inf, 1)

// SetRequestRate caps the rate of outgoing requests (requests per second)
func SetRequestRate(rps float64, burst int) {
	if rps <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// GetBodyRetryReq: executes the request with N retries in case of temporary errors.
// 4xx statuses are permanent, 5xx statuses are retried with exponential backoff.
func GetBodyRetryReq(req *http.Request, nbRetries int) ([]byte, error) {
	var e *neturl.Error
	var body []byte
	var err error
	var resp *http.Response

	client := &http.Client{}
	for i := 0; i < nbRetries+1; i++ {
		time.Sleep(((1 << i) - 1) * time.Second) // Exponential backoff, starting at 0
		if err = limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
		resp, err = client.Do(req)
		if err != nil {
			if !errors.As(err, &e) || !e.Temporary() {
				return nil, err
			}
			continue
		}
		defer resp.Body.Close()
		if resp.StatusCode != 200 {
			body, _ = io.ReadAll(resp.Body)
			err = fmt.Errorf("%s: %v", resp.Status, string(body))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, err
			}
			continue
		}
		if body, err = io.ReadAll(resp.Body); err == nil {
			return body, nil
		}
	}
	return nil, err
}

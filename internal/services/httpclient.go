package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"videoscribe/internal/models"
)

const (
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxResponseBytes = 32 << 20
)

// fetcher performs paced GET requests with retry and maps failures onto the
// models error kinds.
type fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	retry   RetryConfig
	headers map[string]string
}

func newFetcher(timeout time.Duration, rps float64, headers map[string]string) *fetcher {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &fetcher{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		retry:   DefaultRetryConfig,
		headers: headers,
	}
}

func (f *fetcher) get(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := RetryHTTP(ctx, f.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", browserUserAgent)
		for k, v := range f.headers {
			req.Header.Set(k, v)
		}
		return f.client.Do(req)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: GET %s: %v", models.ErrNetwork, url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: GET %s", models.ErrNotFound, url)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: GET %s: status %d", models.ErrNetwork, url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", models.ErrNetwork, url, err)
	}
	return body, nil
}

// cookieHeader builds a Cookie header from a Netscape cookie file, keeping
// only cookies whose domain ends with domainSuffix.
func cookieHeader(path, domainSuffix string) (string, error) {
	if path == "" {
		return "", nil
	}
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open cookie file: %w", err)
	}
	defer file.Close()

	var pairs []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "#HttpOnly_")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}
		if !strings.HasSuffix(strings.TrimPrefix(fields[0], "."), domainSuffix) {
			continue
		}
		pairs = append(pairs, fields[5]+"="+fields[6])
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read cookie file: %w", err)
	}
	if len(pairs) == 0 {
		return "", errors.New("cookie file has no matching cookies")
	}
	return strings.Join(pairs, "; "), nil
}

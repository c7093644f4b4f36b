package marketdata

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const maxResponseBytes = 2 << 20

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// jsonClient performs cached, rate-limited GETs against public JSON APIs.
type jsonClient struct {
	http      *http.Client
	cache     *gocache.Cache
	limiter   *hostLimiter
	userAgent string
}

func newJSONClient(httpClient *http.Client, ttl time.Duration, perSecond float64, userAgent string) *jsonClient {
	var c *gocache.Cache
	if ttl > 0 {
		c = gocache.New(ttl, 2*ttl)
	}
	return &jsonClient{
		http:      httpClient,
		cache:     c,
		limiter:   newHostLimiter(perSecond, 3),
		userAgent: userAgent,
	}
}

func cacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// getJSON decodes the body of rawURL into out. Successful bodies are cached
// by URL; failures are never cached.
func (c *jsonClient) getJSON(ctx context.Context, rawURL string, out any) error {
	key := cacheKey(rawURL)
	if c.cache != nil {
		if body, ok := c.cache.Get(key); ok {
			return json.Unmarshal(body.([]byte), out)
		}
	}
	if err := c.limiter.Wait(ctx, rawURL); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{URL: redact(rawURL), Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", redact(rawURL), err)
	}
	if c.cache != nil {
		c.cache.SetDefault(key, body)
	}
	return nil
}

// redact drops credentials from a URL before it reaches logs or errors.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("apiKey") {
		q.Set("apiKey", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

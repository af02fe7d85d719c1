package tzkt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ZilDuck/zerosum-market-resolver/internal/dev"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrNotFound = errors.New("tzkt: not found")
)

// HttpError is returned for any non 2xx answer the retries could not recover.
type HttpError struct {
	Status int
	Url    string
	Body   string
}

func (e HttpError) Error() string {
	return fmt.Sprintf("tzkt: %d from %s: %s", e.Status, e.Url, e.Body)
}

// A restClient is a rate limited JSON client for the TzKT indexer REST API.
type restClient struct {
	url        string
	httpClient *retryablehttp.Client
	limiter    *rate.Limiter
	timeout    int
	debug      bool
}

// NewClient takes the api base including /v1. rateLimit is in requests per second, 0 disables limiting.
func NewClient(baseUrl string, timeout int, rateLimit float64, retries int, debug bool) (*restClient, error) {
	if len(baseUrl) == 0 {
		return nil, errors.New("bad call missing argument host")
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	retryClient.RetryMax = retries
	retryClient.RetryWaitMin = 250 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second

	limiter := rate.NewLimiter(rate.Inf, 1)
	if rateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(rateLimit), 1)
	}

	return &restClient{
		url:        strings.TrimRight(baseUrl, "/"),
		httpClient: retryClient,
		limiter:    limiter,
		timeout:    timeout,
		debug:      debug,
	}, nil
}

// get fetches path relative to the api base and decodes the JSON body into out.
// Numbers are kept as json.Number.
func (c *restClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.timeout)*time.Second)
		defer cancel()
	}

	u := c.url + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	requestId := dev.NewRequestId()
	zap.L().With(zap.String("requestId", requestId), zap.String("url", u)).Debug("Tzkt: Request")

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Add("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		zap.L().With(zap.String("requestId", requestId), zap.Error(err)).Warn("Tzkt: Request failure")
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if c.debug {
		zap.L().With(zap.String("requestId", requestId), zap.String("response", string(data))).Debug("Tzkt: Response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		return HttpError{Status: resp.StatusCode, Url: u, Body: truncate(string(data), 256)}
	}
	// TzKT answers 204 for a key that does not exist
	if resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("tzkt: decoding %s: %w", path, err)
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

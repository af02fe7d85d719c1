package tezos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ZilDuck/zerosum-market-resolver/internal/dev"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// RPCError is a non 2xx answer from a node. Nodes report Michelson failures
// (bad arguments, failed views) as 4xx/5xx with a JSON error list in Body.
type RPCError struct {
	Status int
	Path   string
	Body   string
}

func (e RPCError) Error() string {
	return fmt.Sprintf("node: %d from %s: %s", e.Status, e.Path, e.Body)
}

// A rpcClient talks JSON to one or more equivalent node RPC endpoints,
// moving to the next endpoint when one cannot be reached.
type rpcClient struct {
	urls       []string
	httpClient *retryablehttp.Client
	timeout    int
	debug      bool
}

func NewClient(urls []string, timeout int, retries int, debug bool) (*rpcClient, error) {
	cleaned := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			cleaned = append(cleaned, u)
		}
	}
	if len(cleaned) == 0 {
		return nil, errors.New("bad call missing argument host")
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	retryClient.RetryMax = retries
	retryClient.RetryWaitMin = 250 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second

	return &rpcClient{
		urls:       cleaned,
		httpClient: retryClient,
		timeout:    timeout,
		debug:      debug,
	}, nil
}

func (c *rpcClient) get(ctx context.Context, path string, out interface{}) error {
	return c.call(ctx, http.MethodGet, path, nil, out)
}

func (c *rpcClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	return c.call(ctx, http.MethodPost, path, body, out)
}

func (c *rpcClient) call(ctx context.Context, method, path string, body interface{}, out interface{}) (err error) {
	var payload []byte
	if body != nil {
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	requestId := dev.NewRequestId()
	zap.L().With(zap.String("requestId", requestId), zap.String("method", method), zap.String("path", path)).Debug("Node: RPC Request")
	if c.debug && payload != nil {
		zap.L().With(zap.String("requestId", requestId), zap.String("request", string(payload))).Debug("Node: RPC Request")
	}

	for _, base := range c.urls {
		var data []byte
		data, err = c.do(ctx, method, base+path, payload)
		if err == nil {
			if c.debug {
				zap.L().With(zap.String("requestId", requestId), zap.String("response", string(data))).Debug("Node: RPC Response")
			}
			return json.Unmarshal(data, out)
		}

		var rpcErr RPCError
		if errors.As(err, &rpcErr) && rpcErr.Status < 500 {
			// the node understood the request, another node will answer the same
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		zap.L().With(zap.String("requestId", requestId), zap.String("node", base), zap.Error(err)).Warn("Node: RPC Failure")
	}

	return err
}

func (c *rpcClient) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.timeout)*time.Second)
		defer cancel()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Content-Type", "application/json;charset=utf-8")
	req.Header.Add("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 300 {
		msg := string(data)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return nil, RPCError{Status: resp.StatusCode, Path: url, Body: msg}
	}

	return data, nil
}

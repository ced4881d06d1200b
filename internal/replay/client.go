package replay

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/PentesterFlow/dateprobe/internal/candidate"
	"github.com/PentesterFlow/dateprobe/internal/errors"
	"github.com/PentesterFlow/dateprobe/internal/logger"
)

// ClientConfig holds configuration for the verification client.
type ClientConfig struct {
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
	UserAgent     string        `json:"user_agent" yaml:"user_agent"`
	SkipTLSVerify bool          `json:"skip_tls_verify" yaml:"skip_tls_verify"`
	// RequestsPerSecond throttles verification replays. Targets are third
	// party sites; verification must stay gentle.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	// MaxBodyBytes bounds how much of a response is read.
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes"`
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:           20 * time.Second,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		SkipTLSVerify:     true,
		RequestsPerSecond: 2,
		MaxBodyBytes:      2 << 20,
	}
}

// Sample is the evidence a successful verification produced.
type Sample struct {
	Count   int    `json:"count"`
	Preview string `json:"preview"`
	Status  int    `json:"status"`
}

// Client replays candidates over plain HTTP and verifies the responses.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	retrier *errors.Retrier
	config  ClientConfig
	log     *logger.Logger
}

// NewClient creates a verification client with a shared cookie jar: session
// cookies picked up by one replay carry to the next, matching how the
// browser session behaves.
func NewClient(config ClientConfig, log *logger.Logger) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.SkipTLSVerify,
		},
	}

	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 2
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 2 << 20
	}
	if log == nil {
		log = logger.Global()
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
			Jar:       jar,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		retrier: errors.NewDefaultRetrier(),
		config:  config,
		log:     log.WithComponent("replay"),
	}, nil
}

// Verify replays a candidate with the requested range and interprets the
// response. It succeeds only when the endpoint returns at least one item.
func (c *Client) Verify(ctx context.Context, cand *candidate.Candidate, start, end time.Time) (*Sample, error) {
	urlStr, body := Build(cand, start, end)

	startedAt := time.Now()
	respBody, status, err := c.do(ctx, cand.Method, urlStr, cand.BodyKind, body)
	if err != nil {
		return nil, err
	}

	count, err := Interpret(respBody)
	if err != nil {
		if exErr, ok := err.(*errors.ExtractError); ok {
			exErr.URL = cand.URL
			return nil, exErr
		}
		return nil, errors.NewVerificationError(cand.URL, "uninterpretable response", err)
	}

	c.log.ReplayEvent(cand.Method, urlStr, status, count, time.Since(startedAt))

	if count == 0 {
		return nil, errors.NewVerificationError(cand.URL, "response contains no items", nil)
	}

	preview := string(respBody)
	if len(preview) > 500 {
		preview = preview[:500]
	}
	return &Sample{Count: count, Preview: preview, Status: status}, nil
}

// do executes one replay with rate limiting and transient-error retries.
func (c *Client) do(ctx context.Context, method, urlStr string, bodyKind candidate.BodyKind, body map[string]any) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, errors.NewCancelledError(urlStr, "rate_wait")
	}

	type result struct {
		body   []byte
		status int
	}

	res, retryRes := errors.DoWithResult(ctx, c.retrier, "replay", urlStr,
		func(ctx context.Context) (result, error) {
			req, err := c.buildRequest(ctx, method, urlStr, bodyKind, body)
			if err != nil {
				return result{}, errors.NewParseError(urlStr, "build_request", err)
			}

			resp, err := c.http.Do(req)
			if err != nil {
				return result{}, errors.Categorize(err, urlStr)
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes))
			if err != nil {
				return result{}, errors.Categorize(err, urlStr)
			}

			if httpErr := errors.CategorizeHTTPStatus(resp.StatusCode, urlStr); httpErr != nil {
				return result{}, httpErr
			}
			return result{body: data, status: resp.StatusCode}, nil
		})

	if !retryRes.Success {
		return nil, 0, retryRes.LastError
	}
	return res.body, res.status, nil
}

// buildRequest assembles the HTTP request with browser-like headers. The
// Referer points at the candidate's own origin, which many of these
// endpoints require.
func (c *Client) buildRequest(ctx context.Context, method, urlStr string, bodyKind candidate.BodyKind, body map[string]any) (*http.Request, error) {
	var reader io.Reader
	contentType := ""

	switch bodyKind {
	case candidate.BodyJSON:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
		contentType = "application/json;charset=UTF-8"
	case candidate.BodyForm:
		vals := url.Values{}
		for k, v := range body {
			if arr, ok := v.([]any); ok {
				for _, el := range arr {
					vals.Add(k, toString(el))
				}
				continue
			}
			vals.Set(k, toString(v))
		}
		reader = strings.NewReader(vals.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if u, err := url.Parse(urlStr); err == nil {
		origin := u.Scheme + "://" + u.Host
		req.Header.Set("Referer", origin+"/")
		if method == http.MethodPost {
			req.Header.Set("Origin", origin)
		}
	}
	return req, nil
}

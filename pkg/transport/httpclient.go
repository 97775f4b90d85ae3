package transport

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/richard-senior/podds/internal/logger"
	"golang.org/x/time/rate"
)

// Options configures a Client
type Options struct {
	Timeout       time.Duration
	RatePerMinute int               // 0 means unlimited
	Headers       map[string]string // sent with every request
	CABundlePath  string            // extra PEM roots, e.g. a corporate proxy bundle
}

// Client is a rate limited HTTP client that understands compressed responses
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	headers map[string]string
}

// StatusError is returned for non 2xx responses
type StatusError struct {
	URL        string
	StatusCode int
	Title      string // <title> of an HTML error page, when there was one
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("request to %s returned status %d", e.URL, e.StatusCode)
	if e.Title != "" {
		return msg + ": " + e.Title
	}
	if e.Body != "" {
		return msg + ": " + e.Body
	}
	return msg
}

// NewClient returns a client with the given options
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	c := &Client{
		http: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{RootCAs: rootCAs(opts.CABundlePath)},
				Proxy:           http.ProxyFromEnvironment,
			},
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		headers: opts.Headers,
	}
	if opts.RatePerMinute > 0 {
		perSecond := rate.Limit(float64(opts.RatePerMinute) / 60.0)
		burst := max(1, opts.RatePerMinute/10)
		c.limiter = rate.NewLimiter(perSecond, burst)
	}
	return c
}

// rootCAs returns the system pool plus any extra bundle
func rootCAs(bundlePath string) *x509.CertPool {
	pool, err := x509.SystemCertPool()
	if err != nil {
		logger.Warn("Failed to get system cert pool", err)
		pool = x509.NewCertPool()
	}
	if bundlePath == "" {
		return pool
	}
	pem, err := os.ReadFile(bundlePath)
	if err != nil {
		logger.Warn("Proceeding without extra CA bundle", bundlePath, err)
		return pool
	}
	if !pool.AppendCertsFromPEM(pem) {
		logger.Warn("Failed to append CA bundle", bundlePath)
	}
	return pool
}

// Get fetches url and returns the decoded body. Non 2xx responses become *StatusError.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("User-Agent", "podds/1.0")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{URL: url, StatusCode: resp.StatusCode}
		if strings.Contains(resp.Header.Get("Content-Type"), "html") {
			se.Title = htmlTitle(data)
		} else {
			se.Body = truncate(strings.TrimSpace(string(data)), 200)
		}
		return nil, se
	}
	return data, nil
}

// GetJSON fetches url and decodes the JSON body into out
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	data, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return nil
}

// readBody reads the response, undoing any Content-Encoding
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.ReadCloser = resp.Body
	contentEncoding := resp.Header.Get("Content-Encoding")
	switch contentEncoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		reader = gz
		defer gz.Close()
	case "deflate":
		reader = flate.NewReader(resp.Body)
		defer reader.Close()
	case "br":
		reader = io.NopCloser(brotli.NewReader(resp.Body))
	default:
		if contentEncoding != "" {
			logger.Warn("Unknown content encoding:", contentEncoding)
		}
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return data, nil
}

// htmlTitle extracts the <title> of an HTML document, falling back to the first heading
func htmlTitle(data []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// client.go
package vsac

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/SanteonNL/vsacsync/cmd/vsacsync/cql"
	"github.com/hashicorp/go-retryablehttp"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Client downloads ValueSet expansions from VSAC and keeps one cache file
// per OID in the cache directory.
type Client struct {
	cfg        Config
	credential string
	httpClient *http.Client
	log        zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &Error{Msg: "API key is required"}
	}
	if cfg.CacheDir == "" {
		return nil, &Error{Msg: "cache directory is required"}
	}

	format, err := ParseFormat(string(cfg.Format))
	if err != nil {
		return nil, &Error{Msg: "invalid configuration", Err: err}
	}
	cfg.Format = format

	// Set defaults if not provided
	if cfg.BaseURL == "" {
		cfg.BaseURL = cfg.Format.defaultBaseURL()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryMax == 0 {
		cfg.RetryMax = 3
	}
	if cfg.RetryWaitMin == 0 {
		cfg.RetryWaitMin = 1 * time.Second
	}
	if cfg.RetryWaitMax == 0 {
		cfg.RetryWaitMax = 30 * time.Second
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, &Error{Msg: "invalid base URL", Err: err}
	}
	if err := checkCacheDir(cfg.CacheDir); err != nil {
		return nil, &Error{Msg: "unusable cache directory " + cfg.CacheDir, Err: err}
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = retryLogger{log: log}
	retryClient.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
	}

	return &Client{
		cfg:        cfg,
		credential: credential(cfg.APIKey),
		httpClient: retryClient.StandardClient(),
		log:        log,
	}, nil
}

// credential returns the Basic auth value for apiKey. Keys that are already
// base64 of "apikey:<secret>" are used as they are.
func credential(apiKey string) string {
	key := strings.TrimSpace(apiKey)
	if raw, err := base64.StdEncoding.DecodeString(key); err == nil && strings.HasPrefix(string(raw), "apikey:") {
		return key
	}
	return base64.StdEncoding.EncodeToString([]byte("apikey:" + key))
}

// DownloadMultiple downloads the ValueSet of every reference, whose Value is
// an OID, in input order. A cached entry is used unless forceRefresh is set.
//
// With continueOnError a failed entry gets an empty result and the batch goes
// on; without it the first failure is returned. An *Error is always returned
// immediately. The returned Results are non-nil even when err is set.
func (c *Client) DownloadMultiple(ctx context.Context, refs []cql.Reference, forceRefresh, continueOnError bool) (*Results, error) {
	results := &Results{items: make([]Result, len(refs))}
	for i, ref := range refs {
		results.items[i] = Result{Name: ref.Name, OID: ref.Value}
	}

	memo, err := lru.New[string, []Code](max(len(refs), 1))
	if err != nil {
		return results, &Error{Msg: "failed to create memo", Err: err}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)

	for i, ref := range refs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := c.download(gctx, ref, forceRefresh, memo)
			results.items[i] = res
			if err == nil {
				return nil
			}
			if IsFatal(err) {
				return err
			}
			if c.cfg.Verbose {
				c.log.Warn().Str("name", ref.Name).Str("oid", ref.Value).Err(err).Msg("Failed to download ValueSet")
			}
			if !continueOnError {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func (c *Client) download(ctx context.Context, ref cql.Reference, force bool, memo *lru.Cache[string, []Code]) (Result, error) {
	res := Result{Name: ref.Name, OID: ref.Value}
	oid := ref.Value

	fail := func(err error) (Result, error) {
		res.Err = err
		return res, err
	}

	if !cql.IsOID(oid) {
		return fail(&ItemError{OID: oid, Op: "fetch", Err: fmt.Errorf("invalid OID")})
	}

	if codes, ok := memo.Get(oid); ok {
		res.Codes = codes
		res.Cached = true
		return res, nil
	}

	decision := Decide(c.cfg.CacheDir, oid, c.cfg.Format, force, c.cfg.MaxAge, time.Now())
	if decision.Hit {
		codes, err := c.readCache(decision.Path)
		if err == nil && len(codes) == 0 {
			err = fmt.Errorf("no codes in cached expansion")
		}
		if err == nil {
			c.logReady(ref, "cache", len(codes))
			memo.Add(oid, codes)
			res.Codes = codes
			res.Cached = true
			return res, nil
		}
		c.log.Debug().Str("oid", oid).Err(err).Msg("Cached ValueSet unusable, downloading")
	}

	body, err := c.fetch(ctx, oid)
	if err != nil {
		return fail(err)
	}

	codes, err := Decode(c.cfg.Format, body)
	if err != nil {
		return fail(&ItemError{OID: oid, Op: "decode", Err: err})
	}

	if err := writeFileAtomic(decision.Path, body); err != nil {
		return fail(&ItemError{OID: oid, Op: "write cache", Err: err})
	}

	c.logReady(ref, "remote", len(codes))
	memo.Add(oid, codes)
	res.Codes = codes
	return res, nil
}

func (c *Client) logReady(ref cql.Reference, source string, n int) {
	if !c.cfg.Verbose {
		return
	}
	c.log.Info().
		Str("name", ref.Name).
		Str("oid", ref.Value).
		Str("source", source).
		Int("codes", n).
		Msg("ValueSet ready")
}

func (c *Client) readCache(path string) ([]Code, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Decode(c.cfg.Format, data)
}

func (c *Client) endpoint(oid string) (string, error) {
	if c.cfg.Format == FormatSVS {
		u, err := url.Parse(strings.TrimSuffix(c.cfg.BaseURL, "/") + "/RetrieveMultipleValueSets")
		if err != nil {
			return "", err
		}
		u.RawQuery = url.Values{"id": []string{oid}}.Encode()
		return u.String(), nil
	}
	return url.JoinPath(c.cfg.BaseURL, "ValueSet", oid, "$expand")
}

// fetch returns the raw response body for oid. Rejected credentials are an
// *Error; everything else is an *ItemError.
func (c *Client) fetch(ctx context.Context, oid string) ([]byte, error) {
	uri, err := c.endpoint(oid)
	if err != nil {
		return nil, &ItemError{OID: oid, Op: "fetch", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, &ItemError{OID: oid, Op: "fetch", Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", "Basic "+c.credential)
	req.Header.Set("Accept", c.cfg.Format.accept())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ItemError{OID: oid, Op: "fetch", Err: fmt.Errorf("HTTP request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ItemError{OID: oid, Op: "fetch", Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Msg: fmt.Sprintf("VSAC rejected the API key for ValueSet %s (status %d)", oid, resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &ItemError{OID: oid, Op: "fetch", Err: fmt.Errorf("server returned status %d: %s", resp.StatusCode, truncate(body, 200))}
	case len(body) == 0:
		return nil, &ItemError{OID: oid, Op: "fetch", Err: fmt.Errorf("received empty response from server")}
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

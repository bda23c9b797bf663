package tind

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/caltechlibrary/checkit/internal/cache"
	"github.com/caltechlibrary/checkit/internal/model"
	"github.com/caltechlibrary/checkit/internal/util"
	"github.com/caltechlibrary/checkit/internal/worker"
)

const (
	// ajaxPath is the DataTables endpoint behind the catalog's list pages.
	ajaxPath = "/lists/dt_api"

	// searchChunkSize caps how many barcodes go into one search expression.
	// It matches the page length the endpoint accepts.
	searchChunkSize = 1000

	// noCopiesMarker appears on holdings pages of items without copies.
	noCopiesMarker = "This record has no copies."
)

// sleepFunc is the function used to wait between retries.
// It is a variable so tests can replace it.
var sleepFunc = time.Sleep

// Client talks to a TIND catalog on behalf of one signed-in user. It keeps
// the session cookies for the run, rate-limits requests per host, retries
// transient failures, and caches item records and holdings pages.
type Client struct {
	httpClient *http.Client
	baseURL    string
	loginURL   string
	ssoURL     string
	userAgent  string
	user       string
	password   string

	limiter  *worker.Limiter
	store    cache.Cache
	cacheTTL time.Duration
	attempts int
	backoff  time.Duration

	mu       sync.Mutex
	loggedIn bool
	missing  map[string]bool
}

// NewClient builds a catalog client from the run configuration. The cache
// may be nil, in which case every lookup goes to the network.
func NewClient(cfg *model.Config, user, password string, store cache.Cache) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	proxy := util.NewProxyFunc(cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxy

	attempts := cfg.Retry.Attempts
	if attempts < 1 {
		attempts = 1
	}

	return &Client{
		httpClient: &http.Client{
			Jar:       jar,
			Timeout:   cfg.HTTP.Timeout,
			Transport: transport,
		},
		baseURL:   strings.TrimRight(cfg.TIND.BaseURL, "/"),
		loginURL:  cfg.TIND.LoginURL,
		ssoURL:    cfg.TIND.SSOURL,
		userAgent: cfg.HTTP.UserAgent,
		user:      user,
		password:  password,
		limiter:   worker.NewLimiter(cfg.HTTP.RatePerSec, cfg.HTTP.Burst),
		store:     store,
		cacheTTL:  cfg.Cache.TTL,
		attempts:  attempts,
		backoff:   cfg.Retry.Backoff,
		missing:   make(map[string]bool),
	}, nil
}

// Login signs in to the catalog through the institutional single sign-on
// flow and keeps the resulting session for later lookups. It returns an
// AuthenticationError when the identity provider rejects the credentials.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

func (c *Client) loginLocked(ctx context.Context) error {
	if c.loggedIn {
		return nil
	}
	if c.user == "" || c.password == "" {
		return NewAuthenticationError("missing user name or password")
	}

	slog.Debug("signing in to catalog", "url", c.loginURL, "user", c.user)

	// Opening the sign-in page redirects to the identity provider, which
	// sets the session cookie the later steps are keyed on.
	resp, err := c.do(ctx, http.MethodGet, c.loginURL, nil, nil)
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return NewServiceError("sign-in page returned status %d", resp.status)
	}

	sid := c.sessionID()
	if sid == "" {
		return NewServiceError("sign-in page did not establish a session")
	}

	form := url.Values{
		"j_username":       {c.user},
		"j_password":       {c.password},
		"_eventId_proceed": {""},
	}

	// The identity provider walks the sign-in through two execution steps.
	for _, step := range []string{"e1s1", "e1s2"} {
		stepURL := fmt.Sprintf("%s;jsessionid=%s?execution=%s", c.ssoURL, sid, step)
		resp, err = c.postForm(ctx, stepURL, form)
		if err != nil {
			return err
		}
		switch {
		case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
			return NewAuthenticationError("identity provider rejected the credentials")
		case resp.status != http.StatusOK:
			return NewServiceError("sign-in step %s returned status %d", step, resp.status)
		}
	}

	// A failed sign-in renders the form again with a password reset link.
	if bytes.Contains(resp.body, []byte("Forgot your password")) {
		return NewAuthenticationError("incorrect user name or password")
	}

	saml, err := parseSAMLForm(resp.body)
	if err != nil {
		return NewServiceError("sign-in hand-off: %v", err)
	}

	action, err := resolveURL(resp.finalURL, saml.Action)
	if err != nil {
		return NewServiceError("sign-in hand-off: %v", err)
	}

	resp, err = c.postForm(ctx, action, url.Values{
		"SAMLResponse": {saml.SAMLResponse},
		"RelayState":   {saml.RelayState},
	})
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return NewServiceError("sign-in hand-off returned status %d", resp.status)
	}

	slog.Debug("signed in to catalog", "user", c.user)
	c.loggedIn = true
	return nil
}

func (c *Client) ensureSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

// Lookup finds the item with the given barcode and returns one record per
// copy the catalog holds of that item, the requested copy included. It
// returns a LookupError when the catalog has no such barcode.
func (c *Client) Lookup(ctx context.Context, barcode string) ([]model.HoldingRecord, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	rec, err := c.record(ctx, barcode)
	if err != nil {
		return nil, err
	}

	rows, err := c.holdings(ctx, rec.TindID.String())
	if err != nil {
		return nil, err
	}

	return mergeHoldings(rec, rows), nil
}

// Prefetch searches the catalog for all the given barcodes in bulk and
// caches the records it finds, so later Lookup calls skip one round trip
// each. It returns how many of the barcodes the catalog knows.
func (c *Client) Prefetch(ctx context.Context, barcodes []string) (int, error) {
	if err := c.ensureSession(ctx); err != nil {
		return 0, err
	}

	pending := make([]string, 0, len(barcodes))
	for _, barcode := range barcodes {
		if _, ok := c.cachedRecord(barcode); ok {
			continue
		}
		pending = append(pending, barcode)
	}
	if len(pending) == 0 {
		return len(barcodes), nil
	}

	found, err := c.searchRecords(ctx, pending)
	if err != nil {
		return 0, err
	}

	known := make(map[string]bool, len(found))
	for _, rec := range found {
		known[rec.Barcode] = true
	}

	c.mu.Lock()
	for _, barcode := range pending {
		if !known[barcode] {
			c.missing[barcode] = true
		}
	}
	c.mu.Unlock()

	return len(barcodes) - len(pending) + len(found), nil
}

// itemRecord is one row of the catalog's item table as the DataTables
// endpoint returns it.
type itemRecord struct {
	Barcode      string      `json:"barcode"`
	TindID       json.Number `json:"id_bibrec"`
	Status       string      `json:"status"`
	CallNumber   string      `json:"call_no"`
	CopyNumber   string      `json:"description"`
	LocationCode string      `json:"location_code"`
	LocationName string      `json:"location_name"`
	ItemType     string      `json:"item_type"`
}

func (r itemRecord) holdingRecord() model.HoldingRecord {
	return model.HoldingRecord{
		Barcode:      r.Barcode,
		Status:       r.Status,
		CallNumber:   r.CallNumber,
		CopyNumber:   r.CopyNumber,
		LocationCode: r.LocationCode,
		LocationName: r.LocationName,
		TindID:       r.TindID.String(),
		ItemType:     r.ItemType,
	}
}

// record returns the item record for a barcode, from cache when possible.
func (c *Client) record(ctx context.Context, barcode string) (*itemRecord, error) {
	if rec, ok := c.cachedRecord(barcode); ok {
		return rec, nil
	}

	c.mu.Lock()
	miss := c.missing[barcode]
	c.mu.Unlock()
	if miss {
		return nil, NewLookupError(barcode)
	}

	found, err := c.searchRecords(ctx, []string{barcode})
	if err != nil {
		return nil, err
	}

	for i := range found {
		if found[i].Barcode == barcode {
			return &found[i], nil
		}
	}

	c.mu.Lock()
	c.missing[barcode] = true
	c.mu.Unlock()

	return nil, NewLookupError(barcode)
}

func (c *Client) cachedRecord(barcode string) (*itemRecord, bool) {
	if c.store == nil {
		return nil, false
	}
	data, ok := c.store.Get(cache.Key("record", barcode))
	if !ok {
		return nil, false
	}
	var rec itemRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

func (c *Client) cacheRecord(rec itemRecord) {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	c.store.Set(cache.Key("record", rec.Barcode), data, c.cacheTTL)
}

// ajax request and response shapes for the DataTables endpoint.
type ajaxSearch struct {
	Value string `json:"value"`
	Regex bool   `json:"regex"`
}

type ajaxColumn struct {
	Data       string     `json:"data"`
	Name       string     `json:"name"`
	Searchable bool       `json:"searchable"`
	Orderable  bool       `json:"orderable"`
	Search     ajaxSearch `json:"search"`
}

type ajaxOrder struct {
	Column int    `json:"column"`
	Dir    string `json:"dir"`
}

type ajaxPayload struct {
	Columns   []ajaxColumn `json:"columns"`
	Order     []ajaxOrder  `json:"order"`
	Search    ajaxSearch   `json:"search"`
	Length    int          `json:"length"`
	Draw      int          `json:"draw"`
	Start     int          `json:"start"`
	TableName string       `json:"table_name"`
}

type ajaxReply struct {
	RecordsTotal int          `json:"recordsTotal"`
	Data         []itemRecord `json:"data"`
}

// searchRecords queries the item table for the given barcodes, in chunks the
// endpoint accepts, and caches every record it returns.
func (c *Client) searchRecords(ctx context.Context, barcodes []string) ([]itemRecord, error) {
	var found []itemRecord
	for start := 0; start < len(barcodes); start += searchChunkSize {
		end := start + searchChunkSize
		if end > len(barcodes) {
			end = len(barcodes)
		}
		chunk, err := c.searchChunk(ctx, barcodes[start:end])
		if err != nil {
			return nil, err
		}
		found = append(found, chunk...)
	}
	for _, rec := range found {
		c.cacheRecord(rec)
	}
	return found, nil
}

func (c *Client) searchChunk(ctx context.Context, barcodes []string) ([]itemRecord, error) {
	expr := barcodes[0]
	if len(barcodes) > 1 {
		expr = "(" + strings.Join(barcodes, " OR ") + ")"
	}

	payload := ajaxPayload{
		Columns: []ajaxColumn{{
			Data:       "barcode",
			Name:       "barcode",
			Searchable: true,
			Orderable:  true,
		}},
		Order:     []ajaxOrder{{Column: 0, Dir: "asc"}},
		Search:    ajaxSearch{Value: "barcode:" + expr},
		Length:    searchChunkSize,
		Draw:      1,
		Start:     0,
		TableName: "crcITEM",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode search: %w", err)
	}

	header := http.Header{
		"Content-Type":     {"application/json"},
		"X-Requested-With": {"XMLHttpRequest"},
	}

	slog.Debug("searching catalog", "barcodes", len(barcodes))

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+ajaxPath, header, body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.status == http.StatusNotFound || resp.status == http.StatusGone:
		return nil, nil
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		return nil, NewAuthenticationError("catalog rejected the session")
	case resp.status != http.StatusOK:
		return nil, NewServiceError("catalog search returned status %d", resp.status)
	}

	var reply ajaxReply
	if err := json.Unmarshal(resp.body, &reply); err != nil {
		return nil, NewServiceError("catalog search returned malformed data: %v", err)
	}
	if reply.RecordsTotal != len(reply.Data) {
		return nil, NewServiceError("catalog search reported %d records but returned %d",
			reply.RecordsTotal, len(reply.Data))
	}

	return reply.Data, nil
}

// holdings returns the copies listed on an item's holdings page, from cache
// when possible. Items without a copies table yield no rows.
func (c *Client) holdings(ctx context.Context, tindID string) ([]holdingRow, error) {
	key := cache.Key("holdings", tindID)
	if c.store != nil {
		if data, ok := c.store.Get(key); ok {
			var rows []holdingRow
			if err := json.Unmarshal(data, &rows); err == nil {
				return rows, nil
			}
		}
	}

	pageURL := fmt.Sprintf("%s/record/%s/holdings", c.baseURL, tindID)
	resp, err := c.do(ctx, http.MethodGet, pageURL, nil, nil)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.status == http.StatusNotFound || resp.status == http.StatusGone:
		return nil, nil
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		return nil, NewAuthenticationError("catalog rejected the session")
	case resp.status != http.StatusOK:
		return nil, NewServiceError("holdings page returned status %d", resp.status)
	}

	var rows []holdingRow
	if !bytes.Contains(resp.body, []byte(noCopiesMarker)) {
		rows, err = parseHoldingsTable(resp.body)
		if err != nil {
			return nil, NewServiceError("holdings page for record %s: %v", tindID, err)
		}
	}

	if c.store != nil {
		if data, err := json.Marshal(rows); err == nil {
			c.store.Set(key, data, c.cacheTTL)
		}
	}

	return rows, nil
}

// mergeHoldings combines an item record with the rows of its holdings page
// into one record per copy. The requested copy keeps the item record's own
// field values; sibling copies take theirs from the page, inheriting the
// codes the page does not show.
func mergeHoldings(rec *itemRecord, rows []holdingRow) []model.HoldingRecord {
	if len(rows) == 0 {
		h := rec.holdingRecord()
		h.HoldingsTotal = 1
		return []model.HoldingRecord{h}
	}

	records := make([]model.HoldingRecord, 0, len(rows)+1)
	seen := false
	for _, row := range rows {
		if row.Barcode == rec.Barcode {
			records = append(records, rec.holdingRecord())
			seen = true
			continue
		}
		h := model.HoldingRecord{
			Barcode:      row.Barcode,
			Status:       row.Status,
			CallNumber:   row.CallNumber,
			CopyNumber:   row.Copy,
			LocationCode: rec.LocationCode,
			LocationName: row.Location,
			TindID:       rec.TindID.String(),
			ItemType:     rec.ItemType,
		}
		if h.CallNumber == "" {
			h.CallNumber = rec.CallNumber
		}
		if h.LocationName == "" {
			h.LocationName = rec.LocationName
		}
		records = append(records, h)
	}
	if !seen {
		records = append([]model.HoldingRecord{rec.holdingRecord()}, records...)
	}
	for i := range records {
		records[i].HoldingsTotal = len(records)
	}
	return records
}

// httpResponse is the read-out of one catalog request after retries.
type httpResponse struct {
	status   int
	body     []byte
	finalURL string
}

func (c *Client) postForm(ctx context.Context, rawURL string, form url.Values) (*httpResponse, error) {
	header := http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}
	return c.do(ctx, http.MethodPost, rawURL, header, []byte(form.Encode()))
}

// do performs one HTTP request against the catalog, honoring the per-host
// rate limit and retrying transient failures with exponential backoff. It
// returns a TransientNetworkError once the attempts are exhausted.
func (c *Client) do(ctx context.Context, method, rawURL string, header http.Header, body []byte) (*httpResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			wait := c.backoff * time.Duration(1<<(attempt-2))
			slog.Warn("retrying catalog request",
				"url", rawURL,
				"attempt", attempt,
				"wait", wait,
				"error", lastErr)
			sleepFunc(wait)
		}

		if err := c.limiter.Wait(ctx, rawURL); err != nil {
			return nil, err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		for key, values := range header {
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !isRetryableNetworkError(err) {
				return nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
			}
			lastErr = err
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if isRetryableStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("unexpected status: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
			continue
		}

		slog.Debug("catalog request", "method", method, "url", rawURL, "status", resp.StatusCode)

		return &httpResponse{
			status:   resp.StatusCode,
			body:     data,
			finalURL: resp.Request.URL.String(),
		}, nil
	}

	return nil, NewTransientNetworkError(rawURL, c.attempts, lastErr)
}

// sessionID returns the identity provider's session cookie, if set.
func (c *Client) sessionID() string {
	u, err := url.Parse(c.ssoURL)
	if err != nil {
		return ""
	}
	for _, ck := range c.httpClient.Jar.Cookies(u) {
		if ck.Name == "JSESSIONID" {
			return ck.Value
		}
	}
	return ""
}

// isRetryableNetworkError reports whether a transport error is worth
// retrying, such as a timeout or a dropped connection.
func isRetryableNetworkError(err error) bool {
	msg := err.Error()
	retryable := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"EOF",
	}
	for _, marker := range retryable {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// isRetryableStatus reports whether a response status is worth retrying.
func isRetryableStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

// resolveURL resolves a possibly relative form action against the page URL
// it came from.
func resolveURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse page url %q: %w", base, err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse form action %q: %w", ref, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

package tind

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caltechlibrary/checkit/internal/cache"
	"github.com/caltechlibrary/checkit/internal/model"
)

// fakeCatalog serves the parts of a TIND instance the client touches: the
// single sign-on hand-off, the DataTables search endpoint, and holdings
// pages.
type fakeCatalog struct {
	user     string
	password string

	items    map[string]itemRecord
	holdings map[string][]holdingRow
	noCopies map[string]bool

	// searchFailures answers that many initial search calls with 503.
	searchFailures int32
	// badTotal makes search replies report one record too many.
	badTotal bool

	searches     atomic.Int32
	holdingsHits atomic.Int32
	logins       atomic.Int32
}

func newFakeCatalog(t *testing.T) (*fakeCatalog, *httptest.Server) {
	f := &fakeCatalog{
		user:     "librarian@library.caltech.edu",
		password: "opensesame",
		items:    make(map[string]itemRecord),
		holdings: make(map[string][]holdingRow),
		noCopies: make(map[string]bool),
	}
	server := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeCatalog) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/youraccount/shibboleth"):
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "fake-session", Path: "/"})
		_, _ = fmt.Fprint(w, "<html><body>Sign in</body></html>")
	case strings.HasPrefix(path, "/idp/sso"):
		f.handleSSO(w, r)
	case path == "/youraccount/login":
		f.logins.Add(1)
		_, _ = fmt.Fprint(w, "<html><body>Welcome</body></html>")
	case path == ajaxPath:
		f.handleSearch(w, r)
	case strings.HasPrefix(path, "/record/") && strings.HasSuffix(path, "/holdings"):
		f.handleHoldings(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeCatalog) handleSSO(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.URL.Path, ";jsessionid=fake-session") {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	switch r.URL.Query().Get("execution") {
	case "e1s1":
		_, _ = fmt.Fprint(w, "<html><body>Continue</body></html>")
	case "e1s2":
		if r.FormValue("j_username") != f.user || r.FormValue("j_password") != f.password {
			_, _ = fmt.Fprint(w, `<html><body><a href="/reset">Forgot your password?</a></body></html>`)
			return
		}
		_, _ = fmt.Fprint(w, `<html><body><form action="/youraccount/login" method="post">
<input type="hidden" name="SAMLResponse" value="c2lnbmVk"/>
<input type="hidden" name="RelayState" value="relay"/>
</form></body></html>`)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeCatalog) handleSearch(w http.ResponseWriter, r *http.Request) {
	n := f.searches.Add(1)
	if n <= f.searchFailures {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var payload ajaxPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.TableName != "crcITEM" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	expr := strings.TrimPrefix(payload.Search.Value, "barcode:")
	expr = strings.Trim(expr, "()")

	reply := ajaxReply{Data: []itemRecord{}}
	for _, barcode := range strings.Split(expr, " OR ") {
		if rec, ok := f.items[barcode]; ok {
			reply.Data = append(reply.Data, rec)
		}
	}
	reply.RecordsTotal = len(reply.Data)
	if f.badTotal {
		reply.RecordsTotal++
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reply)
}

func (f *fakeCatalog) handleHoldings(w http.ResponseWriter, r *http.Request) {
	f.holdingsHits.Add(1)
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/record/"), "/holdings")

	if f.noCopies[id] {
		_, _ = fmt.Fprint(w, "<html><body>This record has no copies.</body></html>")
		return
	}
	rows, ok := f.holdings[id]
	if !ok {
		http.NotFound(w, r)
		return
	}

	var sb strings.Builder
	sb.WriteString("<html><body><table><tr><td>nav</td></tr></table><table>")
	sb.WriteString("<tr><th>Institution</th><th>Library</th><th>Call No.</th><th>Location</th>" +
		"<th>Description</th><th>Loan period</th><th>Due date</th><th>Status</th><th>Requests</th><th>Barcode</th></tr>")
	for _, row := range rows {
		fmt.Fprintf(&sb, "<tr><td>Caltech</td><td>SFL</td><td>%s</td><td>%s</td><td>%s</td>"+
			"<td>Normal</td><td></td><td>%s</td><td>0</td><td>%s</td></tr>",
			row.CallNumber, row.Location, row.Copy, row.Status, row.Barcode)
	}
	sb.WriteString("</table></body></html>")
	_, _ = fmt.Fprint(w, sb.String())
}

func newTestClient(t *testing.T, server *httptest.Server, store cache.Cache) *Client {
	cfg := model.DefaultConfig()
	cfg.TIND.BaseURL = server.URL
	cfg.TIND.LoginURL = server.URL + "/youraccount/shibboleth"
	cfg.TIND.SSOURL = server.URL + "/idp/sso"
	cfg.HTTP.Timeout = 5 * time.Second
	cfg.HTTP.RatePerSec = 1000
	cfg.HTTP.Burst = 100
	cfg.Retry.Backoff = time.Millisecond

	client, err := NewClient(cfg, "librarian@library.caltech.edu", "opensesame", store)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func testItem() itemRecord {
	return itemRecord{
		Barcode:      "35047019298421",
		TindID:       json.Number("735973"),
		Status:       "on shelf",
		CallNumber:   "QA76.73 .G63 2015",
		CopyNumber:   "c.1",
		LocationCode: "sfl",
		LocationName: "SFL basement",
		ItemType:     "Book",
	}
}

func TestClientLogin(t *testing.T) {
	fake, server := newFakeCatalog(t)
	client := newTestClient(t, server, nil)

	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if fake.logins.Load() != 1 {
		t.Errorf("Expected 1 hand-off post, got %d", fake.logins.Load())
	}

	// A second call reuses the session.
	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Second Login returned error: %v", err)
	}
	if fake.logins.Load() != 1 {
		t.Errorf("Expected session reuse, got %d hand-off posts", fake.logins.Load())
	}
}

func TestClientLogin_WrongPassword(t *testing.T) {
	_, server := newFakeCatalog(t)

	cfg := model.DefaultConfig()
	cfg.TIND.BaseURL = server.URL
	cfg.TIND.LoginURL = server.URL + "/youraccount/shibboleth"
	cfg.TIND.SSOURL = server.URL + "/idp/sso"
	cfg.HTTP.RatePerSec = 1000
	cfg.HTTP.Burst = 100

	client, err := NewClient(cfg, "librarian@library.caltech.edu", "wrong", nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	err = client.Login(context.Background())
	if !IsAuthenticationError(err) {
		t.Fatalf("Expected AuthenticationError, got %v", err)
	}
}

func TestClientLogin_MissingCredentials(t *testing.T) {
	fake, server := newFakeCatalog(t)

	cfg := model.DefaultConfig()
	cfg.TIND.BaseURL = server.URL

	client, err := NewClient(cfg, "", "", nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	if err := client.Login(context.Background()); !IsAuthenticationError(err) {
		t.Fatalf("Expected AuthenticationError, got %v", err)
	}
	if fake.logins.Load() != 0 {
		t.Error("Expected no requests without credentials")
	}
}

func TestClientLookup(t *testing.T) {
	fake, server := newFakeCatalog(t)
	rec := testItem()
	fake.items[rec.Barcode] = rec
	fake.holdings["735973"] = []holdingRow{
		{Barcode: "35047018911974", Status: "on loan", CallNumber: "QA76.73 .G63 2015", Copy: "c.2", Location: "SFL basement"},
		{Barcode: rec.Barcode, Status: "on shelf", CallNumber: "QA76.73 .G63 2015", Copy: "copy 1", Location: "SFL basement"},
	}

	client := newTestClient(t, server, nil)
	records, err := client.Lookup(context.Background(), rec.Barcode)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	sibling := records[0]
	if sibling.Barcode != "35047018911974" {
		t.Errorf("Sibling barcode = %q", sibling.Barcode)
	}
	if sibling.Status != "on loan" {
		t.Errorf("Sibling status = %q", sibling.Status)
	}
	if sibling.TindID != "735973" {
		t.Errorf("Sibling TindID = %q", sibling.TindID)
	}
	if sibling.LocationCode != "sfl" {
		t.Errorf("Sibling location code = %q, want inherited from the record", sibling.LocationCode)
	}
	if sibling.ItemType != "Book" {
		t.Errorf("Sibling item type = %q", sibling.ItemType)
	}

	requested := records[1]
	if requested.Barcode != rec.Barcode {
		t.Errorf("Requested barcode = %q", requested.Barcode)
	}
	if requested.CopyNumber != "c.1" {
		t.Errorf("Requested copy = %q, want the record's own value", requested.CopyNumber)
	}

	for _, record := range records {
		if record.HoldingsTotal != 2 {
			t.Errorf("HoldingsTotal = %d, want 2", record.HoldingsTotal)
		}
	}
}

func TestClientLookup_UnknownBarcode(t *testing.T) {
	fake, server := newFakeCatalog(t)
	client := newTestClient(t, server, nil)

	_, err := client.Lookup(context.Background(), "35047000000000")
	if !IsLookupError(err) {
		t.Fatalf("Expected LookupError, got %v", err)
	}
	if fake.searches.Load() != 1 {
		t.Fatalf("Expected 1 search, got %d", fake.searches.Load())
	}

	// The miss is remembered for the rest of the run.
	_, err = client.Lookup(context.Background(), "35047000000000")
	if !IsLookupError(err) {
		t.Fatalf("Expected LookupError, got %v", err)
	}
	if fake.searches.Load() != 1 {
		t.Errorf("Expected no second search, got %d", fake.searches.Load())
	}
}

func TestClientLookup_NoCopiesPage(t *testing.T) {
	fake, server := newFakeCatalog(t)
	rec := testItem()
	fake.items[rec.Barcode] = rec
	fake.noCopies["735973"] = true

	client := newTestClient(t, server, nil)
	records, err := client.Lookup(context.Background(), rec.Barcode)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].Barcode != rec.Barcode || records[0].HoldingsTotal != 1 {
		t.Errorf("Unexpected record: %+v", records[0])
	}
}

func TestClientLookup_UsesCache(t *testing.T) {
	fake, server := newFakeCatalog(t)
	rec := testItem()
	fake.items[rec.Barcode] = rec
	fake.holdings["735973"] = []holdingRow{
		{Barcode: rec.Barcode, Status: "on shelf", CallNumber: rec.CallNumber, Copy: "c.1", Location: "SFL basement"},
	}

	client := newTestClient(t, server, cache.NewMemoryCache(time.Hour, time.Hour))

	for i := 0; i < 2; i++ {
		records, err := client.Lookup(context.Background(), rec.Barcode)
		if err != nil {
			t.Fatalf("Lookup %d returned error: %v", i+1, err)
		}
		if len(records) != 1 {
			t.Fatalf("Lookup %d: expected 1 record, got %d", i+1, len(records))
		}
	}

	if fake.searches.Load() != 1 {
		t.Errorf("Expected 1 search, got %d", fake.searches.Load())
	}
	if fake.holdingsHits.Load() != 1 {
		t.Errorf("Expected 1 holdings fetch, got %d", fake.holdingsHits.Load())
	}
}

func TestClientPrefetch(t *testing.T) {
	fake, server := newFakeCatalog(t)
	rec := testItem()
	fake.items[rec.Barcode] = rec
	other := testItem()
	other.Barcode = "35047016806341"
	other.TindID = json.Number("466498")
	fake.items[other.Barcode] = other
	fake.noCopies["735973"] = true
	fake.noCopies["466498"] = true

	client := newTestClient(t, server, cache.NewMemoryCache(time.Hour, time.Hour))

	found, err := client.Prefetch(context.Background(), []string{rec.Barcode, other.Barcode, "35047000000000"})
	if err != nil {
		t.Fatalf("Prefetch returned error: %v", err)
	}
	if found != 2 {
		t.Errorf("Prefetch found = %d, want 2", found)
	}
	if fake.searches.Load() != 1 {
		t.Fatalf("Expected 1 bulk search, got %d", fake.searches.Load())
	}

	// Prefetched records resolve without another search.
	if _, err := client.Lookup(context.Background(), rec.Barcode); err != nil {
		t.Fatalf("Lookup after Prefetch returned error: %v", err)
	}
	if fake.searches.Load() != 1 {
		t.Errorf("Expected no extra search after Prefetch, got %d", fake.searches.Load())
	}

	// Known misses fail without another search.
	if _, err := client.Lookup(context.Background(), "35047000000000"); !IsLookupError(err) {
		t.Fatalf("Expected LookupError, got %v", err)
	}
	if fake.searches.Load() != 1 {
		t.Errorf("Expected no search for a known miss, got %d", fake.searches.Load())
	}
}

func TestClientSearch_RetryThenSuccess(t *testing.T) {
	fake, server := newFakeCatalog(t)
	rec := testItem()
	fake.items[rec.Barcode] = rec
	fake.noCopies["735973"] = true
	fake.searchFailures = 2

	origSleep := sleepFunc
	sleepFunc = func(d time.Duration) {}
	defer func() { sleepFunc = origSleep }()

	client := newTestClient(t, server, nil)
	records, err := client.Lookup(context.Background(), rec.Barcode)
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if fake.searches.Load() != 3 {
		t.Errorf("Expected 3 search attempts, got %d", fake.searches.Load())
	}
}

func TestClientSearch_RetriesExhausted(t *testing.T) {
	fake, server := newFakeCatalog(t)
	fake.searchFailures = 100

	origSleep := sleepFunc
	sleepFunc = func(d time.Duration) {}
	defer func() { sleepFunc = origSleep }()

	client := newTestClient(t, server, nil)
	_, err := client.Lookup(context.Background(), "35047019298421")
	if !IsTransientNetworkError(err) {
		t.Fatalf("Expected TransientNetworkError, got %v", err)
	}
	if fake.searches.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", fake.searches.Load())
	}
}

func TestClientSearch_CountMismatch(t *testing.T) {
	fake, server := newFakeCatalog(t)
	rec := testItem()
	fake.items[rec.Barcode] = rec
	fake.badTotal = true

	client := newTestClient(t, server, nil)
	_, err := client.Lookup(context.Background(), rec.Barcode)
	if !IsServiceError(err) {
		t.Fatalf("Expected ServiceError, got %v", err)
	}
}

func TestMergeHoldings_RequestedMissingFromTable(t *testing.T) {
	rec := testItem()
	rows := []holdingRow{
		{Barcode: "35047018911974", Status: "lost", CallNumber: rec.CallNumber, Copy: "c.2", Location: "SFL basement"},
	}

	records := mergeHoldings(&rec, rows)
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Barcode != rec.Barcode {
		t.Errorf("Expected the requested copy first, got %q", records[0].Barcode)
	}
	for _, record := range records {
		if record.HoldingsTotal != 2 {
			t.Errorf("HoldingsTotal = %d, want 2", record.HoldingsTotal)
		}
	}
}

func TestResolveURL(t *testing.T) {
	got, err := resolveURL("https://idp.caltech.edu/idp/profile/SAML2/Redirect/SSO", "/youraccount/login?SAML")
	if err != nil {
		t.Fatalf("resolveURL returned error: %v", err)
	}
	if got != "https://idp.caltech.edu/youraccount/login?SAML" {
		t.Errorf("resolveURL = %q", got)
	}

	got, err = resolveURL("https://idp.caltech.edu/idp/sso", "https://caltech.tind.io/youraccount/login")
	if err != nil {
		t.Fatalf("resolveURL returned error: %v", err)
	}
	if got != "https://caltech.tind.io/youraccount/login" {
		t.Errorf("resolveURL = %q", got)
	}
}

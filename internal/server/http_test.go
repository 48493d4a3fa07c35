package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/sanonone/pageselect/pkg/core/types"
	"github.com/sanonone/pageselect/pkg/engine"
)

const testToken = "test-secret-token"

const fixture = `
pages:
  - uid: 1
    title: Home
    doktype: 1
  - uid: 2
    pid: 1
    title: About
    doktype: 1
  - uid: 3
    pid: 2
    title: Team
    doktype: 1
  - uid: 4
    pid: 1
    title: Storage
    doktype: 254
`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	opts := engine.DefaultOptions(t.TempDir())
	opts.AutoSaveInterval = 0
	opts.AofRewritePercentage = 0
	eng, err := engine.Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { eng.Close() })

	ts := httptest.NewServer(NewServer(eng, "", testToken, nil).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthzAndAuth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/pages/1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("protected expected 401, got %d", resp.StatusCode)
	}

	if resp := do(t, ts, http.MethodGet, "/pages/1", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown page with token expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	metricsBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(metricsBody), "pageselect_http_requests_total") {
		t.Error("metrics endpoint does not expose the request counter")
	}
}

func TestPageLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/pages/import", strings.NewReader(fixture))
	var imported ImportResponse
	json.NewDecoder(resp.Body).Decode(&imported)
	if resp.StatusCode != http.StatusOK || imported.Imported != 4 {
		t.Fatalf("import: status %d, %+v", resp.StatusCode, imported)
	}

	page, _ := json.Marshal(types.Page{UID: 5, PID: 1, Title: "Contact", DokType: types.DokTypeDefault})
	if resp := do(t, ts, http.MethodPut, "/pages", bytes.NewReader(page)); resp.StatusCode != http.StatusOK {
		t.Fatalf("put: status %d", resp.StatusCode)
	}

	resp = do(t, ts, http.MethodGet, "/pages/5", nil)
	var got types.Page
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Title != "Contact" || got.PID != 1 {
		t.Errorf("get: %+v", got)
	}

	if resp := do(t, ts, http.MethodDelete, "/pages/5", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("delete: status %d", resp.StatusCode)
	}
	if resp := do(t, ts, http.MethodDelete, "/pages/5", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete: status %d", resp.StatusCode)
	}

	bad := []struct {
		method, path, body string
	}{
		{http.MethodPut, "/pages", `{"uid":0}`},
		{http.MethodPut, "/pages", `{not json`},
		{http.MethodGet, "/pages/abc", ""},
		{http.MethodPost, "/pages/import", "pages:\n  - uid: 1\n    bogus: 1\n"},
	}
	for _, b := range bad {
		if resp := do(t, ts, b.method, b.path, strings.NewReader(b.body)); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s %s %q: status %d, want 400", b.method, b.path, b.body, resp.StatusCode)
		}
	}
}

func TestSelectionEndpoint(t *testing.T) {
	ts := newTestServer(t)
	do(t, ts, http.MethodPost, "/pages/import", strings.NewReader(fixture))

	body := `{"uids_recursive":"1","exclude":"3","doktypes":[1]}`
	resp := do(t, ts, http.MethodPost, "/selection", strings.NewReader(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var sel SelectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sel); err != nil {
		t.Fatal(err)
	}
	if got := types.UIDs(sel.Pages); !slices.Equal(got, []uint32{1, 2}) || sel.Count != 2 {
		t.Errorf("pages = %v, count = %d", got, sel.Count)
	}
	want := "uid IN (1,2,4,3) AND NOT uid IN (3) AND doktype IN (1)"
	if sel.Filter != want {
		t.Errorf("filter = %q, want %q", sel.Filter, want)
	}
}

func TestSystemEndpoints(t *testing.T) {
	ts := newTestServer(t)
	do(t, ts, http.MethodPost, "/pages/import", strings.NewReader(fixture))

	for _, path := range []string{"/system/aof-rewrite", "/system/save"} {
		if resp := do(t, ts, http.MethodPost, path, nil); resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status %d", path, resp.StatusCode)
		}
	}
	if resp := do(t, ts, http.MethodGet, "/system/save", nil); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /system/save: status %d, want 405", resp.StatusCode)
	}
}

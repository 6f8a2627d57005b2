package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"geeo.io/QuadServer/quad"
	"geeo.io/QuadServer/strategy"
)

var allCaps = JWTTokenCaps{Insert: true, Query: true, Consume: true, HTTP: true, MaxView: [2]float64{100, 100}}

func newTestServer(t *testing.T, dev bool) (*httptest.Server, *PointIndex) {
	t.Helper()
	cfg := testConfig()
	cfg.Dev = dev
	idx := newTestIndex(t, cfg)
	srv := httptest.NewServer(newHandler(cfg, idx, newNullPersister(), NewWSRouter(idx, nil)))
	t.Cleanup(srv.Close)
	return srv, idx
}

func doRequest(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("X-GEEO-TOKEN", token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decodeBody(t *testing.T, res *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func TestHTTPPing(t *testing.T) {
	srv, _ := newTestServer(t, false)
	res := doRequest(t, http.MethodGet, srv.URL+"/api/v1/ping", "", "")
	if res.StatusCode != http.StatusOK {
		t.Errorf("ping answered %d", res.StatusCode)
	}
}

func TestHTTPTokens(t *testing.T) {
	srv, _ := newTestServer(t, false)
	url := srv.URL + "/api/v1/points"
	body := `{"x":1,"y":1}`

	res := doRequest(t, http.MethodPost, url, "", body)
	if res.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token should be 401, got %d", res.StatusCode)
	}
	var jsonErr JSONError
	decodeBody(t, res, &jsonErr)
	if jsonErr.Error == "" {
		t.Error("401 should have an error body")
	}

	res = doRequest(t, http.MethodPost, url, testToken(t, "", JWTTokenCaps{Insert: true}), body)
	if res.StatusCode != http.StatusUnauthorized {
		t.Errorf("a token without the HTTP cap should be 401, got %d", res.StatusCode)
	}

	res = doRequest(t, http.MethodPost, url, testToken(t, "", JWTTokenCaps{Query: true, HTTP: true}), body)
	if res.StatusCode != http.StatusForbidden {
		t.Errorf("a token without the insert cap should be 403, got %d", res.StatusCode)
	}

	res = doRequest(t, http.MethodGet, srv.URL+"/api/v1/query?x=0&y=0&w=1&h=1", testToken(t, "", JWTTokenCaps{Insert: true, HTTP: true}), "")
	if res.StatusCode != http.StatusForbidden {
		t.Errorf("a token without the query cap should be 403, got %d", res.StatusCode)
	}

	// the token can also be passed as a parameter
	res = doRequest(t, http.MethodGet, srv.URL+"/api/v1/stats?token="+testToken(t, "", allCaps), "", "")
	if res.StatusCode != http.StatusOK {
		t.Errorf("token parameter refused with %d", res.StatusCode)
	}
}

func TestHTTPInsertAndQuery(t *testing.T) {
	srv, idx := newTestServer(t, false)
	token := testToken(t, "", allCaps)

	batch, _ := json.Marshal(JSONInsert{Points: scenarioPoints})
	res := doRequest(t, http.MethodPost, srv.URL+"/api/v1/points", token, string(batch))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("insert answered %d", res.StatusCode)
	}
	var result JSONInsertResult
	decodeBody(t, res, &result)
	if result.Inserted != len(scenarioPoints) || result.Rejected != 0 {
		t.Errorf("wrong insert result %+v", result)
	}

	res = doRequest(t, http.MethodPost, srv.URL+"/api/v1/points", token, `{"x":200,"y":5}`)
	decodeBody(t, res, &result)
	if res.StatusCode != http.StatusCreated || result.Inserted != 0 || result.Rejected != 1 {
		t.Errorf("out of bounds point: %d %+v", res.StatusCode, result)
	}
	if idx.count() != len(scenarioPoints) {
		t.Errorf("index holds %d points", idx.count())
	}

	for _, body := range []string{`{}`, `{"x":1}`, `not json`} {
		res = doRequest(t, http.MethodPost, srv.URL+"/api/v1/points", token, body)
		if res.StatusCode != http.StatusBadRequest {
			t.Errorf("%s should be refused, got %d", body, res.StatusCode)
		}
	}

	res = doRequest(t, http.MethodGet, srv.URL+"/api/v1/query?x=20&y=20&w=30&h=30", token, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("query answered %d", res.StatusCode)
	}
	var query JSONQueryResult
	decodeBody(t, res, &query)
	if len(query.Points) != 4 || query.Query != quad.NewRect(20.0, 20.0, 30.0, 30.0) || query.Visited == 0 {
		t.Errorf("wrong query result %+v", query)
	}

	for _, params := range []string{"", "?x=0&y=0&w=10", "?x=a&y=0&w=10&h=10", "?x=0&y=0&w=0&h=10"} {
		res = doRequest(t, http.MethodGet, srv.URL+"/api/v1/query"+params, token, "")
		if res.StatusCode != http.StatusBadRequest {
			t.Errorf("query %q should be refused, got %d", params, res.StatusCode)
		}
	}

	res = doRequest(t, http.MethodGet, srv.URL+"/api/v1/points", token, "")
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /v1/points should be 405, got %d", res.StatusCode)
	}
}

func TestHTTPTreeAndStats(t *testing.T) {
	srv, idx := newTestServer(t, false)
	idx.addPoints(scenarioPoints)
	token := testToken(t, "", allCaps)

	res := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tree", token, "")
	var tree struct {
		Nodes []JSONNode `json:"nodes"`
	}
	decodeBody(t, res, &tree)
	if len(tree.Nodes) != 9 || tree.Nodes[0].Depth != 0 {
		t.Errorf("wrong tree dump %+v", tree)
	}

	res = doRequest(t, http.MethodGet, srv.URL+"/api/v1/stats", token, "")
	var stats quad.Stats
	decodeBody(t, res, &stats)
	if stats != idx.stats() {
		t.Errorf("expected %+v, got %+v", idx.stats(), stats)
	}
}

func TestHTTPRender(t *testing.T) {
	srv, idx := newTestServer(t, false)
	idx.addPoints(scenarioPoints)
	token := testToken(t, "", allCaps)

	for _, params := range []string{"", "?x=20&y=20&w=30&h=30"} {
		res := doRequest(t, http.MethodGet, srv.URL+"/api/v1/render.pdf"+params, token, "")
		if res.StatusCode != http.StatusOK || res.Header.Get("Content-Type") != "application/pdf" {
			t.Errorf("render %q answered %d %s", params, res.StatusCode, res.Header.Get("Content-Type"))
			continue
		}
		b, err := io.ReadAll(res.Body)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(string(b), "%PDF-") {
			t.Errorf("render %q isn't a PDF", params)
		}
	}

	res := doRequest(t, http.MethodGet, srv.URL+"/api/v1/render.pdf?x=1", token, "")
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("partial rect should be refused, got %d", res.StatusCode)
	}
}

func TestHTTPStrategies(t *testing.T) {
	srv, idx := newTestServer(t, false)
	idx.addPoints(scenarioPoints)
	token := testToken(t, "", allCaps)

	res := doRequest(t, http.MethodGet, srv.URL+"/api/v1/strategies/window?size=30&step=10&threshold=3", token, "")
	var windows struct {
		Windows []strategy.Window[float64] `json:"windows"`
	}
	decodeBody(t, res, &windows)
	if len(windows.Windows) == 0 || windows.Windows[0].Count != 3 {
		t.Errorf("wrong windows %+v", windows)
	}

	for _, params := range []string{"?size=-1", "?step=x", "?size=1&step=1"} {
		res = doRequest(t, http.MethodGet, srv.URL+"/api/v1/strategies/window"+params, token, "")
		if params == "?size=1&step=1" {
			// 100 x 100 windows fit under the limit
			if res.StatusCode != http.StatusOK {
				t.Errorf("window %q answered %d", params, res.StatusCode)
			}
			continue
		}
		if res.StatusCode != http.StatusBadRequest {
			t.Errorf("window %q should be refused, got %d", params, res.StatusCode)
		}
	}

	res = doRequest(t, http.MethodGet, srv.URL+"/api/v1/strategies/clusters?eps=15&min=2", token, "")
	var clusters struct {
		Clusters strategy.Clusters[float64] `json:"clusters"`
	}
	decodeBody(t, res, &clusters)
	if len(clusters.Clusters) != 1 || clusters.Clusters[0] == nil || len(clusters.Clusters[0].Points) != len(scenarioPoints) {
		t.Errorf("wrong clusters %+v", clusters)
	}

	res = doRequest(t, http.MethodGet, srv.URL+"/api/v1/strategies/clusters?eps=0", token, "")
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("eps=0 should be refused, got %d", res.StatusCode)
	}
}

func TestHTTPLogLevel(t *testing.T) {
	srv, _ := newTestServer(t, false)
	defer log.SetLevel(log.GetLevel())

	res := doRequest(t, http.MethodPost, srv.URL+"/api/v1/log?level=warn", "", "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Errorf("no bearer should be 401, got %d", res.StatusCode)
	}
	res = doRequest(t, http.MethodGet, srv.URL+"/api/v1/log?level=warn&bearer="+WebhookBearerToken, "", "")
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET should be 405, got %d", res.StatusCode)
	}
	res = doRequest(t, http.MethodPost, srv.URL+"/api/v1/log?level=verbose&bearer="+WebhookBearerToken, "", "")
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown level should be 400, got %d", res.StatusCode)
	}
	res = doRequest(t, http.MethodPost, srv.URL+"/api/v1/log?level=warn&bearer="+WebhookBearerToken, "", "")
	if res.StatusCode != http.StatusOK || log.GetLevel() != logrus.WarnLevel {
		t.Errorf("level wasn't set: %d %v", res.StatusCode, log.GetLevel())
	}
}

func TestHTTPPrivateAndDevRoutes(t *testing.T) {
	srv, _ := newTestServer(t, false)
	res := doRequest(t, http.MethodGet, srv.URL+"/api/private/jsondump?bearer="+WebhookBearerToken, "", "")
	if res.StatusCode != http.StatusNotImplemented {
		t.Errorf("the null persister can't dump, got %d", res.StatusCode)
	}
	res = doRequest(t, http.MethodGet, srv.URL+"/api/dev/token", "", "")
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("dev routes should be off, got %d", res.StatusCode)
	}

	dev, _ := newTestServer(t, true)
	res = doRequest(t, http.MethodGet, dev.URL+"/api/dev/token?viewId=me", "", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev token answered %d", res.StatusCode)
	}
	b, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	token, err := parseJWTToken(string(b))
	if err != nil {
		t.Fatal(err)
	}
	if token.ViewID != "me" || !token.Capabilities.HTTP || !token.Capabilities.Insert {
		t.Errorf("wrong dev token %+v", token)
	}
}

func TestHTTPCORS(t *testing.T) {
	srv, _ := newTestServer(t, false)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/query", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "X-GEEO-TOKEN")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Error("preflight should be allowed")
	}
}

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"testing"

	"geeo.io/QuadServer/quad"
)

func TestBoltDBReplay(t *testing.T) {
	file := filepath.Join(t.TempDir(), "test.db")

	pers, err := newBoltDBPersister(file)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := NewPointIndex(pers, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	idx.addPoints(scenarioPoints)
	idx.addPoints([]quad.Point[float64]{{X: 150, Y: 150}})
	pers.close()

	pers, err = newBoltDBPersister(file)
	if err != nil {
		t.Fatal(err)
	}
	defer pers.close()

	for _, variant := range []string{"list", "array"} {
		cfg := testConfig()
		cfg.Variant = variant
		replayed, err := NewPointIndex(pers, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if replayed.count() != len(scenarioPoints) {
			t.Errorf("%s: expected %d points after replay, got %d", variant, len(scenarioPoints), replayed.count())
		}
		if replayed.stats() != idx.stats() {
			t.Errorf("%s: replaying in insertion order should rebuild the same tree", variant)
		}
	}
}

func TestBoltDBLargeReplay(t *testing.T) {
	pers, err := newBoltDBPersister(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer pers.close()

	points := make([]quad.Point[float64], 0, 3*loadBatchSize+7)
	for i := 0; i < cap(points); i++ {
		points = append(points, quad.NewPoint(float64(i%100), float64(i/100)))
	}
	if err := pers.persistPoints(points); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Capacity = 64
	idx, err := NewPointIndex(pers, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if idx.count() != len(points) {
		t.Errorf("expected %d points, got %d", len(points), idx.count())
	}
}

func TestBoltDBJSONDump(t *testing.T) {
	pers, err := newBoltDBPersister(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer pers.close()

	points := []quad.Point[float64]{{X: 1, Y: 2}, {X: 3.5, Y: 4}}
	if err := pers.persistPoints(points); err != nil {
		t.Fatal(err)
	}

	dump, err := pers.(*boltDBPersister).JSONDump()
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Points []quad.Point[float64] `json:"points"`
	}
	if err := json.Unmarshal(dump, &decoded); err != nil {
		t.Fatalf("%s isn't valid JSON: %v", dump, err)
	}
	if !reflect.DeepEqual(decoded.Points, points) {
		t.Errorf("expected %v, got %v", points, decoded.Points)
	}

	rec := httptest.NewRecorder()
	pers.JSONDumpHandleFunc(rec, httptest.NewRequest(http.MethodGet, "/api/private/jsondump", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("dump without bearer should be refused, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	pers.JSONDumpHandleFunc(rec, httptest.NewRequest(http.MethodGet, "/api/private/jsondump?bearer="+WebhookBearerToken, nil))
	if rec.Code != http.StatusOK || rec.Body.String() != string(dump) {
		t.Errorf("unexpected dump answer %d %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/private/backup", nil)
	req.Header.Set("Authorization", WebhookBearerToken)
	rec = httptest.NewRecorder()
	pers.BackupHandleFunc(rec, req)
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Errorf("backup failed with %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/octet-stream" {
		t.Errorf("wrong backup content type %q", rec.Header().Get("Content-Type"))
	}
}

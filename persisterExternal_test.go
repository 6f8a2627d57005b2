package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"geeo.io/QuadServer/quad"
)

// These tests need running servers, they're skipped unless
// TEST_REDIS_ADDR or TEST_POSTGRES_DSN are set

func checkPersisterReplay(t *testing.T, pers Persister) {
	t.Helper()
	points := []quad.Point[float64]{{X: 10, Y: 10}, {X: 20.5, Y: 30.25}, {X: 99, Y: 0}}
	if err := pers.persistPoints(points); err != nil {
		t.Fatal(err)
	}
	idx, err := NewPointIndex(pers, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if idx.count() != len(points) {
		t.Errorf("expected %d points after replay, got %d", len(points), idx.count())
	}
	found, _ := idx.query(quad.NewRect(20.0, 30.0, 1.0, 1.0))
	if len(found) != 1 || found[0] != points[1] {
		t.Errorf("replayed point not found: %v", found)
	}
}

func TestRedisPersister(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR isn't set")
	}
	pers, err := newRedisPersister(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer pers.close()

	rp := pers.(*redisPersister)
	rp.key = fmt.Sprintf("quadserver:test:%d", time.Now().UnixNano())
	defer rp.rdb.Del(context.Background(), rp.key)

	checkPersisterReplay(t, pers)
}

func TestPostgresPersister(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN isn't set")
	}
	pers, err := newPostgresPersister(dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer pers.close()

	// migrations are idempotent
	if err := runMigrations(dsn); err != nil {
		t.Fatal(err)
	}

	if _, err := pers.(*postgresPersister).db.Exec("DELETE FROM points"); err != nil {
		t.Fatal(err)
	}
	checkPersisterReplay(t, pers)
}

func TestMigrateUpClosesDatabase(t *testing.T) {
	// sql.Open doesn't connect, so no server is needed here
	open := func() *sql.DB {
		db, err := sql.Open("postgres", "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1")
		if err != nil {
			t.Fatal(err)
		}
		return db
	}
	checkClosed := func(db *sql.DB) {
		t.Helper()
		if err := db.Ping(); err == nil || !strings.Contains(err.Error(), "database is closed") {
			t.Errorf("db should be closed, ping returned %v", err)
		}
	}

	db := open()
	if err := migrateUp(db, fstest.MapFS{}); err == nil {
		t.Error("an empty source should fail")
	}
	checkClosed(db)

	db = open()
	if err := migrateUp(db, migrationsFS); err == nil {
		t.Error("an unreachable database should fail")
	}
	checkClosed(db)
}

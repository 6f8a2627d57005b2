package main

import (
	"bytes"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"geeo.io/QuadServer/quad"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type postgresPersister struct {
	db *sql.DB
}

func newPostgresPersister(dsn string) (Persister, error) {
	if err := runMigrations(dsn); err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("Database connected.")
	return &postgresPersister{db: db}, nil
}

// runMigrations applies the embedded migrations on their own connection
func runMigrations(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	return migrateUp(db, migrationsFS)
}

// migrateUp owns db: it is closed before returning, on success or not.
func migrateUp(db *sql.DB, fsys fs.FS) error {
	src, err := iofs.New(fsys, "migrations")
	if err != nil {
		db.Close()
		return fmt.Errorf("could not read migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		src.Close()
		db.Close()
		return fmt.Errorf("could not start migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		src.Close()
		driver.Close() // closes db too
		return fmt.Errorf("could not start migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Info("Migrations applied")
	return nil
}

func (p *postgresPersister) readPointsInto(idx *PointIndex) error {
	log.Info("Loading points from postgres")
	before := time.Now()

	rows, err := p.db.Query("SELECT x, y FROM points ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()

	points := []quad.Point[float64]{}
	for rows.Next() {
		var point quad.Point[float64]
		if err := rows.Scan(&point.X, &point.Y); err != nil {
			return err
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	idx._loadPoints(points)

	log.Infof("Postgres: loaded %d points in %fs", len(points), time.Since(before).Seconds())
	return nil
}

func (p *postgresPersister) persistPoints(points []quad.Point[float64]) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO points (x, y) VALUES ($1, $2)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, point := range points {
		if _, err := stmt.Exec(point.X, point.Y); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (p *postgresPersister) close() {
	p.db.Close()
}

// BackupHandleFunc isn't available on postgres, use pg_dump
func (p *postgresPersister) BackupHandleFunc(w http.ResponseWriter, req *http.Request) {
	if !checkBearer(req) {
		w.WriteHeader(http.StatusUnauthorized)
		log.Warn("Unauthorized attempt to backup DB")
		return
	}
	http.Error(w, ErrNotImplemented.Error(), http.StatusNotImplemented)
}

func (p *postgresPersister) JSONDumpHandleFunc(w http.ResponseWriter, req *http.Request) {
	if !checkBearer(req) {
		w.WriteHeader(http.StatusUnauthorized)
		log.Warn("Unauthorized attempt to dump DB")
		return
	}
	rows, err := p.db.QueryContext(req.Context(), "SELECT x, y FROM points ORDER BY id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	points := []quad.Point[float64]{}
	for rows.Next() {
		var point quad.Point[float64]
		if err := rows.Scan(&point.X, &point.Y); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		points = append(points, point)
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(struct {
		Points []quad.Point[float64] `json:"points"`
	}{points}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

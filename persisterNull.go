package main

import (
	"net/http"

	"geeo.io/QuadServer/quad"
)

// nullPersister keeps nothing, the index starts empty every time
type nullPersister struct{}

func newNullPersister() Persister {
	return &nullPersister{}
}

func (p *nullPersister) readPointsInto(idx *PointIndex) error {
	return nil
}
func (p *nullPersister) persistPoints(points []quad.Point[float64]) error {
	return nil
}

func (p *nullPersister) close() {}

func (p *nullPersister) BackupHandleFunc(w http.ResponseWriter, req *http.Request) {
	http.Error(w, ErrNotImplemented.Error(), http.StatusNotImplemented)
}
func (p *nullPersister) JSONDumpHandleFunc(w http.ResponseWriter, req *http.Request) {
	http.Error(w, ErrNotImplemented.Error(), http.StatusNotImplemented)
}

package main

import (
	"errors"
	"expvar"
	"io"
	"net/http"
	"sync"

	set "github.com/deckarep/golang-set"
	"github.com/mmcloughlin/geohash"

	"geeo.io/QuadServer/quad"
	"geeo.io/QuadServer/render"
	"geeo.io/QuadServer/strategy"
)

// GeohashPrecision is the length of geohash labels on windows and clusters
const GeohashPrecision = 6

var (
	// ErrNotImplemented is returned for actions without an implementation
	ErrNotImplemented = errors.New("Not Implemented")
	// ErrViewNotFound is returned when View can't be found
	ErrViewNotFound = errors.New("View doesn't exist")

	numPoints   = expvar.NewInt("num_points")
	numRejected = expvar.NewInt("num_rejected")
	numQueries  = expvar.NewInt("num_queries")
	numViews    = expvar.NewInt("num_view")
)

// Persister is the interface you should implement to provide persistence to PointIndex
// Points are persisted once accepted by the tree, and replayed into a new
// tree at startup. The tree itself is never stored.
type Persister interface {
	readPointsInto(idx *PointIndex) error
	persistPoints(points []quad.Point[float64]) error
	close()
	BackupHandleFunc(w http.ResponseWriter, req *http.Request)
	JSONDumpHandleFunc(w http.ResponseWriter, req *http.Request)
}

// PointIndex owns the quadtree and the views watching it
type PointIndex struct {
	tree      quad.Quadtree[float64]
	views     map[string]*View
	persister Persister
	geo       bool

	sync.RWMutex
}

func newTree(cfg *Config) (quad.Quadtree[float64], error) {
	var opts []quad.Option
	if cfg.MaxDepth >= 0 {
		opts = append(opts, quad.WithMaxDepth(cfg.MaxDepth))
	}
	switch cfg.Variant {
	case "list":
		return quad.NewListTree(cfg.Boundary, cfg.Capacity, opts...)
	case "array":
		return quad.NewArrayTree(cfg.Boundary, cfg.Capacity, opts...)
	}
	return nil, ErrUnknownVariant
}

// NewPointIndex creates the tree described by cfg and loads the persisted points into it
func NewPointIndex(pers Persister, cfg *Config) (*PointIndex, error) {
	tree, err := newTree(cfg)
	if err != nil {
		return nil, err
	}
	idx := &PointIndex{
		tree:      tree,
		views:     make(map[string]*View),
		persister: pers,
		geo:       cfg.Geo,
	}
	if err := idx.persister.readPointsInto(idx); err != nil {
		return nil, err
	}
	numPoints.Set(int64(idx.tree.Len()))
	numViews.Set(0)
	return idx, nil
}

// addPoints inserts and persists points, and returns the ones the tree accepted
func (idx *PointIndex) addPoints(points []quad.Point[float64]) []quad.Point[float64] {
	idx.Lock()
	defer idx.Unlock()

	accepted := make([]quad.Point[float64], 0, len(points))
	for _, p := range points {
		if idx.tree.Insert(p) {
			accepted = append(accepted, p)
		}
	}
	if rejected := len(points) - len(accepted); rejected > 0 {
		numRejected.Add(int64(rejected))
		log.Debugf("%d points rejected", rejected)
	}
	if len(accepted) == 0 {
		return accepted
	}
	numPoints.Add(int64(len(accepted)))
	if err := idx.persister.persistPoints(accepted); err != nil {
		log.Error("Can't persist points: ", err)
	}
	return accepted
}

// _loadPoints is used by persisters to replay points without persisting them again
func (idx *PointIndex) _loadPoints(points []quad.Point[float64]) int {
	idx.Lock()
	defer idx.Unlock()

	n := 0
	for _, p := range points {
		if idx.tree.Insert(p) {
			n++
		}
	}
	if n != len(points) {
		log.Warnf("%d stored points don't fit in the tree", len(points)-n)
	}
	return n
}

func (idx *PointIndex) query(r quad.Rect[float64]) ([]quad.Point[float64], quad.Trace) {
	idx.RLock()
	defer idx.RUnlock()

	numQueries.Add(1)
	points := idx.tree.Query(r)
	trace := idx.tree.Trace(r)
	return points, trace
}

func (idx *PointIndex) getPointsIn(r *quad.Rect[float64]) set.Set {
	idx.RLock()
	defer idx.RUnlock()

	res := idx.tree.Query(*r)

	resultset := set.NewThreadUnsafeSet() // no need for thread safety
	for _, each := range res {
		resultset.Add(each)
	}
	return resultset
}

func (idx *PointIndex) count() int {
	idx.RLock()
	defer idx.RUnlock()
	return idx.tree.Len()
}

func (idx *PointIndex) stats() quad.Stats {
	idx.RLock()
	defer idx.RUnlock()
	return quad.CollectStats(idx.tree.Root(), idx.tree.Capacity())
}

// JSONNode is one node of a tree dump
type JSONNode struct {
	Boundary quad.Rect[float64]    `json:"boundary"`
	Depth    int                   `json:"depth"`
	Divided  bool                  `json:"divided"`
	Points   []quad.Point[float64] `json:"points"`
}

// treeDump lists the nodes in pre-order, children NE, NW, SE, SW
func (idx *PointIndex) treeDump() []JSONNode {
	idx.RLock()
	defer idx.RUnlock()

	res := []JSONNode{}
	quad.Walk(idx.tree.Root(), func(v quad.View[float64]) bool {
		res = append(res, JSONNode{v.Boundary(), v.Depth(), v.Divided(), v.Points()})
		return true
	})
	return res
}

func (idx *PointIndex) windows(opts strategy.WindowOptions[float64]) ([]strategy.Window[float64], error) {
	idx.RLock()
	defer idx.RUnlock()

	res, err := strategy.SlidingWindow(idx.tree, opts)
	if err != nil {
		return nil, err
	}
	if idx.geo {
		for i := range res {
			c := res[i].Rect.Center()
			res[i].Label = geohash.EncodeWithPrecision(c.Y, c.X, GeohashPrecision)
		}
	}
	return res, nil
}

func (idx *PointIndex) clusters(opts strategy.ClusterOptions[float64]) (strategy.Clusters[float64], error) {
	idx.RLock()
	defer idx.RUnlock()

	res, err := strategy.DBSCAN(idx.tree, opts)
	if err != nil {
		return nil, err
	}
	if idx.geo {
		for label, c := range res {
			if label == strategy.Noise {
				continue
			}
			c.Geohash = geohash.EncodeWithPrecision(c.Centroid.Y, c.Centroid.X, GeohashPrecision)
		}
	}
	return res, nil
}

// renderPDF draws the tree, and the query with its results if q isn't nil
func (idx *PointIndex) renderPDF(w io.Writer, q *quad.Rect[float64]) error {
	idx.RLock()
	defer idx.RUnlock()

	opts := render.PlotOptions[float64]{
		Points: idx.tree.Query(idx.tree.Boundary()),
		Query:  q,
		Title:  "Quadtree",
	}
	if q != nil {
		opts.Found = idx.tree.Query(*q)
	}
	return render.PDF(w, idx.tree.Root(), opts)
}

func (idx *PointIndex) addView(id string, conn *wsConn) *View {
	v := &View{id: &id, ws: conn}

	idx.Lock()
	defer idx.Unlock()

	if _, exists := idx.views[id]; !exists {
		numViews.Add(1)
	}
	idx.views[id] = v
	return v
}

// removeView drops v. A view that was replaced by a newer connection with
// the same id is left alone.
func (idx *PointIndex) removeView(v *View) {
	idx.Lock()
	defer idx.Unlock()

	id := *v.id
	if idx.views[id] == v {
		delete(idx.views, id)
		numViews.Add(-1)
	}
}

// updateViewPosition moves v and returns its previous rect. It fails with
// ErrViewNotFound once v was removed or replaced by a newer connection.
func (idx *PointIndex) updateViewPosition(v *View, pos *quad.Rect[float64]) (*quad.Rect[float64], error) {
	idx.Lock()
	defer idx.Unlock()

	if idx.views[*v.id] != v {
		return nil, ErrViewNotFound
	}
	oldPosition := v.GetRect()
	v.SetRect(pos)
	return oldPosition, nil
}

// getViewsWithPoint returns the views whose rect contains pos
func (idx *PointIndex) getViewsWithPoint(pos quad.Point[float64]) set.Set {
	idx.RLock()
	defer idx.RUnlock()

	res := set.NewThreadUnsafeSet()
	for _, v := range idx.views {
		if r := v.GetRect(); r != nil && r.Contains(pos) {
			res.Add(v)
		}
	}
	return res
}

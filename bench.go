package main

import (
	"math/rand"
	"runtime"
	"time"

	"github.com/dhconnelly/rtreego"

	"geeo.io/QuadServer/quad"
)

const benchQueries = 1000

// rtreePoint wraps a point to satisfy the rtreego.Spatial interface
type rtreePoint struct {
	quad.Point[float64]
}

// Bounds returns a tiny box around the point
func (p rtreePoint) Bounds() rtreego.Rect {
	return rtreego.Point{p.X, p.Y}.ToRect(1e-9)
}

type benchResult struct {
	Name   string
	Insert time.Duration
	Query  time.Duration
	Memory uint64 // heap retained by the index once every point is in
	Found  int    // points returned by all the queries
}

// heapInUse returns the live heap after a collection
func heapInUse() uint64 {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}

type benchIndex interface {
	insert(quad.Point[float64])
	query(quad.Rect[float64]) int
}

type treeBench struct {
	tree quad.Quadtree[float64]
	buf  []quad.Point[float64]
}

func (t *treeBench) insert(p quad.Point[float64]) { t.tree.Insert(p) }
func (t *treeBench) query(r quad.Rect[float64]) int {
	t.buf = t.tree.QueryAppend(t.buf[:0], r)
	return len(t.buf)
}

type rtreeBench struct {
	rt *rtreego.Rtree
}

func (t *rtreeBench) insert(p quad.Point[float64]) { t.rt.Insert(rtreePoint{p}) }
func (t *rtreeBench) query(r quad.Rect[float64]) int {
	bb, err := rtreego.NewRect(rtreego.Point{r.X, r.Y}, []float64{r.Width, r.Height})
	if err != nil {
		return 0
	}
	n := 0
	for _, s := range t.rt.SearchIntersect(bb) {
		// same half-open test as the quadtree
		if r.Contains(s.(rtreePoint).Point) {
			n++
		}
	}
	return n
}

// benchmark inserts n random points in the configured boundary into every
// index, then runs the same random queries on each of them
func benchmark(cfg *Config, n int, seed int64) ([]benchResult, error) {
	rng := rand.New(rand.NewSource(seed))
	b := cfg.Boundary
	points := make([]quad.Point[float64], n)
	for i := range points {
		points[i] = quad.NewPoint(b.X+rng.Float64()*b.Width, b.Y+rng.Float64()*b.Height)
	}
	queries := make([]quad.Rect[float64], benchQueries)
	for i := range queries {
		w, h := b.Width/20, b.Height/20
		queries[i] = quad.NewRect(b.X+rng.Float64()*(b.Width-w), b.Y+rng.Float64()*(b.Height-h), w, h)
	}

	indexes := map[string]benchIndex{"rtree": &rtreeBench{rtreego.NewTree(2, 25, 50)}}
	for _, variant := range []string{"list", "array"} {
		c := *cfg
		c.Variant = variant
		tree, err := newTree(&c)
		if err != nil {
			return nil, err
		}
		indexes[variant] = &treeBench{tree: tree}
	}

	res := []benchResult{}
	for _, name := range []string{"list", "array", "rtree"} {
		idx := indexes[name]
		r := benchResult{Name: name}

		heapBefore := heapInUse()
		before := time.Now()
		for _, p := range points {
			idx.insert(p)
		}
		r.Insert = time.Since(before)
		if heapAfter := heapInUse(); heapAfter > heapBefore {
			r.Memory = heapAfter - heapBefore
		}

		before = time.Now()
		for _, q := range queries {
			r.Found += idx.query(q)
		}
		r.Query = time.Since(before)
		res = append(res, r)
	}
	return res, nil
}

func runBenchmark(cfg *Config, n int) error {
	log.Infof("Benchmarking %d points, %d queries, capacity %d", n, benchQueries, cfg.Capacity)
	res, err := benchmark(cfg, n, time.Now().UnixNano())
	if err != nil {
		return err
	}
	for _, r := range res {
		log.Infof("%-6s insert %12v  query %12v  memory %9.1f KiB  found %d", r.Name, r.Insert, r.Query, float64(r.Memory)/1024, r.Found)
	}
	return nil
}

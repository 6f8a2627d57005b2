package strategy

import (
	"fmt"

	set "github.com/deckarep/golang-set"

	"geeo.io/QuadServer/quad"
)

// Noise is the label of points that belong to no cluster
const Noise = -1

const unvisited = -2

// ClusterOptions configures DBSCAN
type ClusterOptions[T quad.Coord] struct {
	Epsilon    T   `json:"eps"`
	MinSamples int `json:"min"`
}

// Cluster is a group of points sharing a label
type Cluster[T quad.Coord] struct {
	Label    int                 `json:"label"`
	Points   []quad.Point[T]     `json:"points"`
	Centroid quad.Point[float64] `json:"centroid"`
	Geohash  string              `json:"geohash,omitempty"`
}

// Clusters maps labels to clusters. Noise, when present, is under the Noise label.
type Clusters[T quad.Coord] map[int]*Cluster[T]

// DBSCAN clusters every point of q by density.
// The neighbors of a point are the points within Epsilon of it (euclidean,
// the point itself included); a point with at least MinSamples neighbors is
// a core point. Clusters are numbered from 0 in the order their first core
// point appears in q.Query(q.Boundary()).
func DBSCAN[T quad.Coord](q Querier[T], opts ClusterOptions[T]) (Clusters[T], error) {
	if opts.Epsilon <= 0 {
		return nil, fmt.Errorf("strategy: epsilon %v: %w", opts.Epsilon, ErrInvalidEpsilon)
	}
	if opts.MinSamples < 1 {
		return nil, fmt.Errorf("strategy: min samples %d: %w", opts.MinSamples, ErrInvalidMinSamples)
	}

	points := q.Query(q.Boundary())
	index := make(map[quad.Point[T]][]int, len(points))
	for i, p := range points {
		index[p] = append(index[p], i)
	}
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}

	eps2 := float64(opts.Epsilon) * float64(opts.Epsilon)
	region := func(i int) []int {
		p := points[i]
		// Contains is half-open, a 3*eps side keeps p+eps inside the square
		side := opts.Epsilon * 3
		found := q.Query(quad.NewRect(p.X-opts.Epsilon, p.Y-opts.Epsilon, side, side))
		seen := set.NewThreadUnsafeSet()
		res := []int{}
		for _, f := range found {
			if !seen.Add(f) {
				continue
			}
			dx := float64(f.X) - float64(p.X)
			dy := float64(f.Y) - float64(p.Y)
			if dx*dx+dy*dy <= eps2 {
				res = append(res, index[f]...)
			}
		}
		return res
	}

	cluster := 0
	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		neighbors := region(i)
		if len(neighbors) < opts.MinSamples {
			labels[i] = Noise
			continue
		}
		labels[i] = cluster
		queued := set.NewThreadUnsafeSet()
		queued.Add(i)
		seeds := []int{}
		for _, j := range neighbors {
			if queued.Add(j) {
				seeds = append(seeds, j)
			}
		}
		for len(seeds) > 0 {
			j := seeds[0]
			seeds = seeds[1:]
			if labels[j] == Noise {
				labels[j] = cluster // border point
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			more := region(j)
			if len(more) < opts.MinSamples {
				continue
			}
			for _, k := range more {
				if queued.Add(k) {
					seeds = append(seeds, k)
				}
			}
		}
		cluster++
	}

	res := Clusters[T]{}
	for i, label := range labels {
		c, ok := res[label]
		if !ok {
			c = &Cluster[T]{Label: label}
			res[label] = c
		}
		c.Points = append(c.Points, points[i])
	}
	for _, c := range res {
		c.Centroid = centroid(c.Points)
	}
	return res, nil
}

func centroid[T quad.Coord](points []quad.Point[T]) quad.Point[float64] {
	var sx, sy float64
	for _, p := range points {
		sx += float64(p.X)
		sy += float64(p.Y)
	}
	n := float64(len(points))
	return quad.NewPoint(sx/n, sy/n)
}

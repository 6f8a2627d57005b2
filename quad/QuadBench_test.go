package quad

import (
	"math/rand"
	"testing"
)

const (
	numObjInBenchmarks = 100000
)

var benchBounds = NewRect(0, 0, 1<<16, 1<<16)

func benchTree(b *testing.B, build builder, n int) (Quadtree[int], *rand.Rand) {
	rng := rand.New(rand.NewSource(99))
	q := mustBuild(b, build, benchBounds, 8)
	q.BatchInsert(randomPoints(rng, n, benchBounds))
	return q, rng
}

func benchmarkInsert(b *testing.B, build builder) {
	rng := rand.New(rand.NewSource(99))
	points := randomPoints(rng, b.N, benchBounds)
	q := mustBuild(b, build, benchBounds, 8)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Insert(points[i])
	}
}

func BenchmarkListInsert(b *testing.B)  { benchmarkInsert(b, species["list"]) }
func BenchmarkArrayInsert(b *testing.B) { benchmarkInsert(b, species["array"]) }

func benchmarkQuery(b *testing.B, build builder) {
	q, rng := benchTree(b, build, numObjInBenchmarks)
	rects := make([]Rect[int], 1024)
	for i := range rects {
		rects[i] = NewRect(rng.Intn(benchBounds.Width), rng.Intn(benchBounds.Height), 2048, 2048)
	}
	var dst []Point[int]
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dst = q.QueryAppend(dst[:0], rects[i%len(rects)])
	}
}

func BenchmarkListQuery(b *testing.B)  { benchmarkQuery(b, species["list"]) }
func BenchmarkArrayQuery(b *testing.B) { benchmarkQuery(b, species["array"]) }

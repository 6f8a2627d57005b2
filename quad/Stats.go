package quad

// Stats describes the shape of a tree
type Stats struct {
	Nodes    int     `json:"nodes"`
	Leaves   int     `json:"leaves"`
	Divided  int     `json:"divided"`
	Points   int     `json:"points"`
	MaxDepth int     `json:"maxDepth"`
	Capacity int     `json:"capacity"`
	Fill     float64 `json:"fill"` // points / (nodes * capacity)
}

// CollectStats walks the whole tree under v
func CollectStats[T Coord](v View[T], capacity int) Stats {
	s := Stats{Capacity: capacity}
	Walk(v, func(node View[T]) bool {
		s.Nodes++
		if node.Divided() {
			s.Divided++
		} else {
			s.Leaves++
		}
		s.Points += len(node.Points())
		if d := node.Depth(); d > s.MaxDepth {
			s.MaxDepth = d
		}
		return true
	})
	if s.Nodes > 0 && capacity > 0 {
		s.Fill = float64(s.Points) / float64(s.Nodes*capacity)
	}
	return s
}

package render

// DefaultStarvationGrace is how many consecutive starving ticks the direct
// render path tolerates before it gives up on the stream.
const DefaultStarvationGrace = 60

// Guard counts consecutive unhealthy observations.
type Guard struct {
	Limit int
	count int
}

// Observe records one tick. It reports true once more than Limit unhealthy
// ticks happened in a row; a healthy tick resets the count.
func (g *Guard) Observe(healthy bool) bool {
	if healthy {
		g.count = 0
		return false
	}
	g.count++
	return g.count > g.Limit
}

func (g *Guard) Reset() {
	g.count = 0
}

func (g *Guard) Count() int {
	return g.count
}

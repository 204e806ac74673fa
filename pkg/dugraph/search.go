package dugraph

// Direction selects which edges a search follows.
type Direction int

const (
	// Backward follows predecessor edges, from uses toward definitions.
	Backward Direction = iota
	// Forward follows successor edges, from definitions toward uses.
	Forward
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

func (g *Graph) neighbors(id int, dir Direction) []int {
	if dir == Forward {
		return g.succs[id]
	}
	return g.preds[id]
}

// Reaches runs a worklist search from start along dir and reports whether
// it pops a node satisfying match. The start node itself is tested first.
// Each node is explored at most once, so the search terminates on cyclic
// graphs after at most Len() pops.
func Reaches(g *Graph, start int, dir Direction, match func(*Node) bool) bool {
	explored := make(map[int]bool, g.Len())
	fringe := []int{start}
	for len(fringe) > 0 {
		id := fringe[len(fringe)-1]
		fringe = fringe[:len(fringe)-1]
		if explored[id] {
			continue
		}
		explored[id] = true
		if match(g.nodes[id]) {
			return true
		}
		fringe = append(fringe, g.neighbors(id, dir)...)
	}
	return false
}

// Package cluster implements Ward-linkage agglomerative clustering over
// 2-D points. The map's zoom levels and the duplicate finder both consume
// the same dendrogram: the levels cut it at an exact cluster count, the
// duplicate finder cuts it at a linkage-distance threshold.
package cluster

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Point is a planar coordinate (longitude, latitude on the map grid).
type Point struct {
	X float64
	Y float64
}

type merge struct {
	a, b int     // cluster ids being merged
	dist float64 // Ward linkage distance (euclidean scale)
}

// Dendrogram is the full merge tree of a point set. Build it once with
// Ward, then cut it as many times as needed.
type Dendrogram struct {
	n      int
	merges []merge // sorted by ascending linkage distance
}

// Ward builds the dendrogram of points using Ward's minimum-variance
// criterion (nearest-neighbor chain over the Lance-Williams update).
func Ward(points []Point) *Dendrogram {
	n := len(points)
	d := &Dendrogram{n: n}
	if n < 2 {
		return d
	}

	// Squared-euclidean distance matrix between active clusters.
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := points[i].X - points[j].X
			dy := points[i].Y - points[j].Y
			d2 := dx*dx + dy*dy
			dist[i][j] = d2
			dist[j][i] = d2
		}
	}

	size := make([]int, n)
	active := make([]bool, n)
	for i := range size {
		size[i] = 1
		active[i] = true
	}
	remaining := n

	nearest := func(c int) (int, float64) {
		best, bestD := -1, math.Inf(1)
		for j := 0; j < n; j++ {
			if j == c || !active[j] {
				continue
			}
			if dist[c][j] < bestD {
				best, bestD = j, dist[c][j]
			}
		}
		return best, bestD
	}

	var chain []int
	for remaining > 1 {
		if len(chain) == 0 {
			for i := 0; i < n; i++ {
				if active[i] {
					chain = append(chain, i)
					break
				}
			}
		}
		top := chain[len(chain)-1]
		nn, nnDist := nearest(top)
		if len(chain) > 1 && nn == chain[len(chain)-2] {
			// Reciprocal nearest neighbors: merge nn into top.
			chain = chain[:len(chain)-2]
			i, j := top, nn
			d.merges = append(d.merges, merge{a: i, b: j, dist: math.Sqrt(nnDist)})

			ni, nj := float64(size[i]), float64(size[j])
			for k := 0; k < n; k++ {
				if k == i || k == j || !active[k] {
					continue
				}
				nk := float64(size[k])
				upd := ((ni+nk)*dist[k][i] + (nj+nk)*dist[k][j] - nk*dist[i][j]) / (ni + nj + nk)
				dist[k][i] = upd
				dist[i][k] = upd
			}
			size[i] += size[j]
			active[j] = false
			remaining--
		} else {
			chain = append(chain, nn)
		}
	}

	// The chain algorithm emits merges out of distance order.
	sort.SliceStable(d.merges, func(i, j int) bool {
		return d.merges[i].dist < d.merges[j].dist
	})
	return d
}

// find with path compression over the cut's union-find forest.
func find(parent []int, x int) int {
	for parent[x] != x {
		parent[x] = parent[parent[x]]
		x = parent[x]
	}
	return x
}

// labels turns a union-find forest into dense cluster labels, numbered in
// order of first appearance.
func (d *Dendrogram) labels(parent []int) []int {
	labels := make([]int, d.n)
	next := 0
	seen := make(map[int]int, d.n)
	for i := 0; i < d.n; i++ {
		root := find(parent, i)
		l, ok := seen[root]
		if !ok {
			l = next
			seen[root] = l
			next++
		}
		labels[i] = l
	}
	return labels
}

func (d *Dendrogram) newForest() []int {
	parent := make([]int, d.n)
	for i := range parent {
		parent[i] = i
	}
	return parent
}

// CutK cuts the dendrogram into exactly k clusters and returns a label
// per input point. k is clamped to [1, n].
func (d *Dendrogram) CutK(k int) []int {
	if k < 1 {
		k = 1
	}
	parent := d.newForest()
	for i := 0; i < len(d.merges) && d.n-i > k; i++ {
		m := d.merges[i]
		parent[find(parent, m.b)] = find(parent, m.a)
	}
	return d.labels(parent)
}

// CutThreshold applies every merge whose linkage distance is strictly
// below threshold and returns a label per input point. Points closer than
// the threshold therefore end up in the same cluster.
func (d *Dendrogram) CutThreshold(threshold float64) []int {
	parent := d.newForest()
	for _, m := range d.merges {
		if m.dist >= threshold {
			break
		}
		parent[find(parent, m.b)] = find(parent, m.a)
	}
	return d.labels(parent)
}

// Centroid returns the mean point of a cluster.
func Centroid(points []Point) Point {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.X
		ys[i] = p.Y
	}
	return Point{X: stat.Mean(xs, nil), Y: stat.Mean(ys, nil)}
}

// Nearest returns the index of the point closest to target.
func Nearest(points []Point, target Point) int {
	best, bestD := -1, math.Inf(1)
	for i, p := range points {
		dx := p.X - target.X
		dy := p.Y - target.Y
		if d2 := dx*dx + dy*dy; d2 < bestD {
			best, bestD = i, d2
		}
	}
	return best
}

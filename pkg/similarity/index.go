// Package similarity finds tiles with similar content using a k-d tree over
// the flattened tile features.
package similarity

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"volumetiles/pkg/tiling"
)

// Match is one result of a nearest tile query
type Match struct {
	// Tile is the row index in the tile set
	Tile int

	// Slice is the source slice label of the tile
	Slice int

	// Distance is the squared Euclidean distance to the query
	Distance float64
}

// tilePoint satisfies kdtree.Comparable over a tile's feature row
type tilePoint struct {
	index    int
	label    int
	features []float64
}

func (p tilePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(tilePoint)
	return p.features[d] - q.features[d]
}

func (p tilePoint) Dims() int { return len(p.features) }

// Distance returns the squared Euclidean distance between two tiles
func (p tilePoint) Distance(c kdtree.Comparable) float64 {
	q := c.(tilePoint)
	var sum float64
	for i, v := range p.features {
		diff := v - q.features[i]
		sum += diff * diff
	}
	return sum
}

// tilePoints is a collection of tilePoint that satisfies kdtree.Interface
type tilePoints []tilePoint

func (p tilePoints) Index(i int) kdtree.Comparable { return p[i] }
func (p tilePoints) Len() int { return len(p) }
func (p tilePoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p tilePoints) Pivot(d kdtree.Dim) int {
	plane := tilePlane{tilePoints: p, Dim: d}
	return kdtree.Partition(plane, kdtree.MedianOfRandoms(plane, 100))
}

// tilePlane implements sort.Interface and kdtree.SortSlicer for tilePoints
type tilePlane struct {
	tilePoints
	kdtree.Dim
}

func (p tilePlane) Less(i, j int) bool {
	return p.tilePoints[i].features[p.Dim] < p.tilePoints[j].features[p.Dim]
}

func (p tilePlane) Slice(start, end int) kdtree.SortSlicer {
	return tilePlane{tilePoints: p.tilePoints[start:end], Dim: p.Dim}
}

func (p tilePlane) Swap(i, j int) {
	p.tilePoints[i], p.tilePoints[j] = p.tilePoints[j], p.tilePoints[i]
}

// Index answers nearest tile queries over a tile set
type Index struct {
	tree *kdtree.Tree
	dims int
	size int
}

// NewIndex builds an index over every tile in ts. The tile data is referenced,
// not copied, so ts must not be modified while the index is in use.
func NewIndex(ts *tiling.TileSet, labels []int) (*Index, error) {
	if ts.Rows == 0 {
		return nil, fmt.Errorf("cannot index an empty tile set")
	}
	if len(labels) != ts.Rows {
		return nil, fmt.Errorf("label count %d does not match tile count %d", len(labels), ts.Rows)
	}

	points := make(tilePoints, ts.Rows)
	for i := range points {
		points[i] = tilePoint{index: i, label: labels[i], features: ts.Row(i)}
	}

	return &Index{
		tree: kdtree.New(points, false),
		dims: ts.Cols,
		size: ts.Rows,
	}, nil
}

// Len returns the number of indexed tiles
func (idx *Index) Len() int { return idx.size }

// Nearest returns up to k tiles closest to query, nearest first
func (idx *Index) Nearest(query []float64, k int) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(query) != idx.dims {
		return nil, fmt.Errorf("query has %d features, expected %d", len(query), idx.dims)
	}

	keeper := kdtree.NewNKeeper(k)
	idx.tree.NearestSet(keeper, tilePoint{index: -1, features: query})

	matches := make([]Match, 0, k)
	for _, item := range keeper.Heap {
		if item.Comparable == nil {
			continue
		}
		p := item.Comparable.(tilePoint)
		matches = append(matches, Match{Tile: p.index, Slice: p.label, Distance: item.Dist})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Tile < matches[j].Tile
	})
	return matches, nil
}

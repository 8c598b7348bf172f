package index

import (
	"sort"

	"github.com/openterrain/resolver/internal/core/model"
)

// bboxTree is a static bounding-box tree bulk-loaded with sort-tile-recursive
// packing. It is rebuilt from scratch on every index swap, so there is no
// insert/delete path.
const treeFanout = 8

type treeNode struct {
	bounds   model.GeoBounds
	children []*treeNode
	// leaf payload
	col *model.Collection
	ord int // manifest position, to keep candidate order deterministic
}

type bboxTree struct {
	root *treeNode
}

func buildTree(cols []*model.Collection) *bboxTree {
	if len(cols) == 0 {
		return &bboxTree{}
	}
	leaves := make([]*treeNode, len(cols))
	for i, c := range cols {
		leaves[i] = &treeNode{bounds: c.CoverageBounds, col: c, ord: i}
	}
	return &bboxTree{root: pack(leaves)}
}

// pack groups nodes into parents of up to treeFanout children, tiling by
// longitude then latitude, until a single root remains.
func pack(nodes []*treeNode) *treeNode {
	for len(nodes) > 1 {
		sort.Slice(nodes, func(i, j int) bool {
			ci := center(nodes[i].bounds)
			cj := center(nodes[j].bounds)
			if ci[1] != cj[1] {
				return ci[1] < cj[1]
			}
			return ci[0] < cj[0]
		})
		parents := make([]*treeNode, 0, (len(nodes)+treeFanout-1)/treeFanout)
		for start := 0; start < len(nodes); start += treeFanout {
			end := start + treeFanout
			if end > len(nodes) {
				end = len(nodes)
			}
			group := nodes[start:end]
			p := &treeNode{bounds: group[0].bounds, children: append([]*treeNode(nil), group...)}
			for _, ch := range group[1:] {
				p.bounds = union(p.bounds, ch.bounds)
			}
			parents = append(parents, p)
		}
		nodes = parents
	}
	return nodes[0]
}

func center(b model.GeoBounds) [2]float64 {
	return [2]float64{(b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2}
}

func union(a, b model.GeoBounds) model.GeoBounds {
	if b.MinLat < a.MinLat {
		a.MinLat = b.MinLat
	}
	if b.MaxLat > a.MaxLat {
		a.MaxLat = b.MaxLat
	}
	if b.MinLon < a.MinLon {
		a.MinLon = b.MinLon
	}
	if b.MaxLon > a.MaxLon {
		a.MaxLon = b.MaxLon
	}
	return a
}

// search returns all collections containing the point, restored to manifest
// order so the result matches the linear scan exactly.
func (t *bboxTree) search(lat, lon float64) []*model.Collection {
	if t.root == nil {
		return nil
	}
	var hits []*treeNode
	var walk func(n *treeNode)
	walk = func(n *treeNode) {
		if !n.bounds.Contains(lat, lon) {
			return
		}
		if n.col != nil {
			hits = append(hits, n)
			return
		}
		for _, ch := range n.children {
			walk(ch)
		}
	}
	walk(t.root)
	if len(hits) == 0 {
		return nil
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].ord < hits[j].ord })
	out := make([]*model.Collection, len(hits))
	for i, h := range hits {
		out[i] = h.col
	}
	return out
}

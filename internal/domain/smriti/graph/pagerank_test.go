package graph

import (
	"math"
	"testing"
)

func nodesOf(ids ...string) []Node {
	out := make([]Node, len(ids))
	for i, id := range ids {
		out[i] = Node{ID: id, Type: NodeConcept, Label: id}
	}
	return out
}

func TestPageRank_SumsToOne(t *testing.T) {
	nodes := nodesOf("a", "b", "c", "d")
	edges := []Edge{
		CreateEdge("a", "b", "r", 1, nil),
		CreateEdge("b", "c", "r", 1, nil),
		CreateEdge("c", "a", "r", 1, nil),
		CreateEdge("d", "a", "r", 1, nil),
	}
	ranks := PageRank(nodes, edges)

	sum := 0.0
	for _, r := range ranks {
		sum += r
	}
	if math.Abs(sum-1.0) > 1e-4 {
		t.Errorf("ranks must sum to ~1, got %f", sum)
	}
}

func TestPageRank_SymmetricGraphEqualRanks(t *testing.T) {
	nodes := nodesOf("a", "b", "c")
	// Symmetric ring: every node has identical in/out degree.
	edges := []Edge{
		CreateEdge("a", "b", "r", 1, nil), CreateEdge("b", "a", "r", 1, nil),
		CreateEdge("b", "c", "r", 1, nil), CreateEdge("c", "b", "r", 1, nil),
		CreateEdge("c", "a", "r", 1, nil), CreateEdge("a", "c", "r", 1, nil),
	}
	ranks := PageRank(nodes, edges)
	if math.Abs(ranks["a"]-ranks["b"]) > 1e-6 || math.Abs(ranks["b"]-ranks["c"]) > 1e-6 {
		t.Errorf("symmetric graph should yield equal ranks: %+v", ranks)
	}
}

func TestPageRank_OnlyDanglingNodes(t *testing.T) {
	nodes := nodesOf("a", "b", "c")
	ranks := PageRank(nodes, nil)

	sum := 0.0
	for _, r := range ranks {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			t.Fatalf("rank not finite: %f", r)
		}
		sum += r
	}
	if math.Abs(sum-1.0) > 1e-4 {
		t.Errorf("dangling-only ranks must still sum to ~1, got %f", sum)
	}
	if math.Abs(ranks["a"]-ranks["b"]) > 1e-9 {
		t.Error("dangling-only nodes must rank equally")
	}
}

func TestPageRank_SupersededEdgesIgnored(t *testing.T) {
	nodes := nodesOf("hub", "x", "y")
	live := CreateEdge("x", "hub", "r", 1, nil)
	closed, successor := SupersedeEdge(CreateEdge("y", "hub", "r", 1, nil), nil, nil)

	withClosed := PageRank(nodes, []Edge{live, closed, successor})
	withoutClosed := PageRank(nodes, []Edge{live, successor})
	if math.Abs(withClosed["hub"]-withoutClosed["hub"]) > 1e-9 {
		t.Error("superseded versions must not contribute to rank")
	}
}

func TestPageRank_Empty(t *testing.T) {
	if len(PageRank(nil, nil)) != 0 {
		t.Error("empty graph returns empty ranks")
	}
}

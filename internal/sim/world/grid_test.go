package world

import "testing"

func TestWorldToChunk_onBoundaries(t *testing.T) {
	g := Grid{Size: 128}

	cases := []struct {
		pos  Vec2
		want ChunkCoord
	}{
		{Vec2{0, 0}, ChunkCoord{0, 0}},
		{Vec2{127.999, 127.999}, ChunkCoord{0, 0}},
		{Vec2{128.0, 0}, ChunkCoord{1, 0}},
		{Vec2{-0.001, -0.001}, ChunkCoord{-1, -1}},
		{Vec2{-128.0, -128.0}, ChunkCoord{-1, -1}},
		{Vec2{-128.001, 0}, ChunkCoord{-2, 0}},
	}
	for _, c := range cases {
		if got := g.WorldToChunk(c.pos); got != c.want {
			t.Fatalf("WorldToChunk(%+v) = %v, want %v", c.pos, got, c.want)
		}
	}
}

func TestChunkCenter_roundTrips(t *testing.T) {
	g := Grid{Size: 128}
	for _, c := range []ChunkCoord{{0, 0}, {1, 0}, {-1, -1}, {7, -3}} {
		center := g.ChunkCenter(c)
		if got := g.WorldToChunk(center); got != c {
			t.Fatalf("center of %v maps back to %v", c, got)
		}
	}
	if got := g.ChunkCenter(ChunkCoord{0, 0}); got != (Vec2{64, 64}) {
		t.Fatalf("center of origin chunk = %+v, want (64,64)", got)
	}
}

func TestChebyshevDist(t *testing.T) {
	cases := []struct {
		a, b ChunkCoord
		want int
	}{
		{ChunkCoord{0, 0}, ChunkCoord{0, 0}, 0},
		{ChunkCoord{0, 0}, ChunkCoord{1, 0}, 1},
		{ChunkCoord{0, 0}, ChunkCoord{1, 1}, 1},
		{ChunkCoord{0, 0}, ChunkCoord{-3, 2}, 3},
		{ChunkCoord{5, 0}, ChunkCoord{2, 2}, 3},
	}
	for _, c := range cases {
		if got := ChebyshevDist(c.a, c.b); got != c.want {
			t.Fatalf("ChebyshevDist(%v, %v) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

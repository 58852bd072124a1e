package terrain

import (
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

func newTestStreamer(t *testing.T, radius int) *Streamer {
	t.Helper()
	lods, err := NewLODCache(&fakeBuilder{}, 100, 16)
	if err != nil {
		t.Fatalf("NewLODCache: %v", err)
	}
	cfg := StreamConfig{TileSize: 200, Radius: radius, Cadence: time.Second, BaseSubdivisions: 16}
	s, err := NewStreamer(cfg, lods, 7)
	if err != nil {
		t.Fatalf("NewStreamer: %v", err)
	}
	return s
}

func coordSet(s *TileSet) map[GridCoord]bool {
	set := make(map[GridCoord]bool, s.Len())
	for tile := range s.All() {
		set[tile.Coord] = true
	}
	return set
}

func TestStreamOriginRadiusTwo(t *testing.T) {
	s := newTestStreamer(t, 2)
	stats := s.Stream(mgl32.Vec3{})

	want := map[GridCoord]bool{
		{0, 0}: true,
		{-1, 0}: true, {1, 0}: true, {0, -1}: true, {0, 1}: true,
		{-1, -1}: true, {-1, 1}: true, {1, -1}: true, {1, 1}: true,
		{-2, 0}: true, {0, -2}: true,
	}
	if stats.Spawned != len(want) || stats.Active != len(want) {
		t.Fatalf("stats = %+v, want %d spawned and active", stats, len(want))
	}
	got := coordSet(s.Tiles())
	for c := range want {
		if !got[c] {
			t.Errorf("missing tile at %v", c)
		}
	}
	for tile := range s.Tiles().All() {
		if !want[tile.Coord] {
			t.Errorf("unexpected tile at %v", tile.Coord)
		}
		p := tile.Position
		if p.Y() != 0 || int(p.X())%200 != 0 || int(p.Z())%200 != 0 {
			t.Errorf("tile %v at %v is not on the 200-unit grid", tile.Coord, p)
		}
		if tile.Material != 7 {
			t.Errorf("tile %v material = %d, want 7", tile.Coord, tile.Material)
		}
	}
}

func TestStreamMatchesFootprint(t *testing.T) {
	for _, radius := range []int{0, 1, 3, 8} {
		s := newTestStreamer(t, radius)
		p := mgl32.Vec3{1000, 35, -600}
		s.Stream(p)

		fp := Footprint(p, radius, 200)
		if s.Tiles().Len() != len(fp) {
			t.Errorf("radius %d: %d tiles, footprint has %d cells", radius, s.Tiles().Len(), len(fp))
		}
		got := coordSet(s.Tiles())
		for _, c := range fp {
			if !got[c] {
				t.Errorf("radius %d: footprint cell %v has no tile", radius, c)
			}
		}
	}
}

func TestStreamIdempotentWhenStationary(t *testing.T) {
	for _, p := range []mgl32.Vec3{{}, {90, 0, 0}, {-310, 12, 777}} {
		s := newTestStreamer(t, 4)
		s.Stream(p)
		before := make(map[GridCoord]TileID)
		for tile := range s.Tiles().All() {
			before[tile.Coord] = tile.ID
		}
		for range 3 {
			stats := s.Stream(p)
			if stats.Spawned != 0 || stats.Despawned != 0 || stats.Remeshed != 0 {
				t.Fatalf("observer %v: repeated pass changed tiles: %+v", p, stats)
			}
		}
		for tile := range s.Tiles().All() {
			if before[tile.Coord] != tile.ID {
				t.Errorf("observer %v: tile at %v was recreated", p, tile.Coord)
			}
		}
	}
}

func TestStreamEvictsAndRespawnsAfterMove(t *testing.T) {
	s := newTestStreamer(t, 3)
	s.Stream(mgl32.Vec3{})
	far := mgl32.Vec3{200 * 50, 0, 0}
	stats := s.Stream(far)
	if stats.Despawned != len(Footprint(mgl32.Vec3{}, 3, 200)) {
		t.Errorf("despawned %d tiles, want all of the original footprint", stats.Despawned)
	}
	got := coordSet(s.Tiles())
	fp := Footprint(far, 3, 200)
	if len(got) != len(fp) {
		t.Fatalf("%d tiles after move, want %d", len(got), len(fp))
	}
	for _, c := range fp {
		if !got[c] {
			t.Errorf("missing tile at %v after move", c)
		}
	}
}

func TestStreamKeepsInRangeTiles(t *testing.T) {
	s := newTestStreamer(t, 4)
	s.Stream(mgl32.Vec3{})
	ids := make(map[GridCoord]TileID)
	for tile := range s.Tiles().All() {
		ids[tile.Coord] = tile.ID
	}

	// One tile step: most tiles stay in range and keep their identity.
	s.Stream(mgl32.Vec3{200, 0, 0})
	kept := 0
	for tile := range s.Tiles().All() {
		if id, ok := ids[tile.Coord]; ok {
			if id != tile.ID {
				t.Errorf("tile at %v was replaced", tile.Coord)
			}
			kept++
		}
	}
	if kept == 0 {
		t.Fatal("no tiles survived a one-tile move")
	}
	seen := make(map[GridCoord]bool)
	for tile := range s.Tiles().All() {
		if seen[tile.Coord] {
			t.Fatalf("duplicate tile at %v", tile.Coord)
		}
		seen[tile.Coord] = true
	}
}

func TestStreamRemeshesByDistance(t *testing.T) {
	s := newTestStreamer(t, 16)
	s.Stream(mgl32.Vec3{})
	tile, ok := s.Tiles().At(GridCoord{X: 5, Z: 0})
	if !ok {
		t.Fatal("expected tile at (5, 0)")
	}
	// 1000 units away: 1e6 squared, LOD 3.
	if tile.LOD != 3 || tile.Mesh != s.lods.Mesh(3) {
		t.Fatalf("tile LOD = %d mesh = %d, want LOD 3", tile.LOD, tile.Mesh)
	}
	stats := s.Stream(mgl32.Vec3{1000, 0, 0})
	if stats.Remeshed == 0 {
		t.Error("expected remeshed tiles after moving")
	}
	if tile.LOD != 0 || tile.Mesh != s.lods.Mesh(0) {
		t.Errorf("tile LOD = %d mesh = %d after moving onto it, want LOD 0", tile.LOD, tile.Mesh)
	}
	if tile.Position != (mgl32.Vec3{1000, 0, 0}) {
		t.Errorf("tile moved to %v", tile.Position)
	}
}

func TestStreamIgnoresHeight(t *testing.T) {
	a := newTestStreamer(t, 3)
	b := newTestStreamer(t, 3)
	a.Stream(mgl32.Vec3{0, 0, 0})
	b.Stream(mgl32.Vec3{0, 5000, 0})
	for tile := range a.Tiles().All() {
		other, ok := b.Tiles().At(tile.Coord)
		if !ok {
			t.Fatalf("height changed the footprint at %v", tile.Coord)
		}
		if other.LOD != tile.LOD {
			t.Errorf("height changed LOD at %v: %d vs %d", tile.Coord, other.LOD, tile.LOD)
		}
	}
}

func TestTickCadence(t *testing.T) {
	s := newTestStreamer(t, 1)
	p := mgl32.Vec3{}
	if _, ran := s.Tick(16*time.Millisecond, p); !ran {
		t.Fatal("first tick should stream")
	}
	steps := 0
	for {
		steps++
		if _, ran := s.Tick(100*time.Millisecond, p); ran {
			break
		}
		if steps > 20 {
			t.Fatal("cadence never fired")
		}
	}
	if steps != 10 {
		t.Errorf("stream fired after %d ticks of 100ms, want 10", steps)
	}
}

func TestTickZeroCadenceStreamsEveryTick(t *testing.T) {
	lods, _ := NewLODCache(&fakeBuilder{}, 100, 8)
	s, err := NewStreamer(StreamConfig{TileSize: 10, Radius: 1}, lods, 0)
	if err != nil {
		t.Fatalf("NewStreamer: %v", err)
	}
	for i := range 3 {
		if _, ran := s.Tick(time.Millisecond, mgl32.Vec3{}); !ran {
			t.Errorf("tick %d did not stream", i)
		}
	}
}

func TestNewStreamerValidation(t *testing.T) {
	lods, _ := NewLODCache(&fakeBuilder{}, 100, 8)
	bad := []StreamConfig{
		{TileSize: 0, Radius: 1},
		{TileSize: -5, Radius: 1},
		{TileSize: 10, Radius: -1},
		{TileSize: 10, Radius: 1, Cadence: -time.Second},
	}
	for _, cfg := range bad {
		if _, err := NewStreamer(cfg, lods, 0); !errors.Is(err, ErrInvalidStreamConfig) {
			t.Errorf("NewStreamer(%+v) error = %v, want ErrInvalidStreamConfig", cfg, err)
		}
	}
	if _, err := NewStreamer(DefaultStreamConfig(), nil, 0); !errors.Is(err, ErrInvalidStreamConfig) {
		t.Errorf("nil LOD cache error = %v, want ErrInvalidStreamConfig", err)
	}
}

func TestSnapToGrid(t *testing.T) {
	tests := []struct {
		p    mgl32.Vec3
		want GridCoord
	}{
		{mgl32.Vec3{0, 0, 0}, GridCoord{0, 0}},
		{mgl32.Vec3{99, 0, -99}, GridCoord{0, 0}},
		{mgl32.Vec3{100, 0, -100}, GridCoord{1, -1}},
		{mgl32.Vec3{-301, 9, 450}, GridCoord{-2, 2}},
	}
	for _, tt := range tests {
		if got := SnapToGrid(tt.p, 200); got != tt.want {
			t.Errorf("SnapToGrid(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

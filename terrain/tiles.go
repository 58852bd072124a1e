package terrain

import (
	"iter"

	"github.com/go-gl/mathgl/mgl32"
)

// GridCoord is a tile's cell on the streaming grid.
// World position is the coordinate multiplied by the tile size.
type GridCoord struct {
	X, Z int32
}

// Add returns c offset by (dx, dz).
func (c GridCoord) Add(dx, dz int32) GridCoord {
	return GridCoord{X: c.X + dx, Z: c.Z + dz}
}

// World returns the cell's world-space position on the Y=0 plane.
func (c GridCoord) World(tileSize float32) mgl32.Vec3 {
	return mgl32.Vec3{float32(c.X) * tileSize, 0, float32(c.Z) * tileSize}
}

// TileID is a unique, never reused tile identity.
type TileID uint64

// Tile is one streamed terrain patch.
// Position is fixed for the tile's lifetime; only LOD and Mesh change.
type Tile struct {
	ID       TileID
	Coord    GridCoord
	Position mgl32.Vec3
	LOD      int
	Mesh     MeshHandle
	Material MaterialHandle
}

// TileSet is an arena of tiles indexed by grid cell.
// It holds at most one tile per cell.
type TileSet struct {
	tiles  map[GridCoord]*Tile
	nextID TileID
}

// NewTileSet creates an empty tile set.
func NewTileSet() *TileSet {
	return &TileSet{tiles: make(map[GridCoord]*Tile)}
}

// Len returns the number of live tiles.
func (s *TileSet) Len() int { return len(s.tiles) }

// At returns the tile occupying a cell.
func (s *TileSet) At(c GridCoord) (*Tile, bool) {
	t, ok := s.tiles[c]
	return t, ok
}

// All iterates over live tiles in unspecified order.
func (s *TileSet) All() iter.Seq[*Tile] {
	return func(yield func(*Tile) bool) {
		for _, t := range s.tiles {
			if !yield(t) {
				return
			}
		}
	}
}

// spawn creates a tile at an unoccupied cell.
func (s *TileSet) spawn(c GridCoord, pos mgl32.Vec3, lod int, mesh MeshHandle, mat MaterialHandle) *Tile {
	s.nextID++
	t := &Tile{
		ID:       s.nextID,
		Coord:    c,
		Position: pos,
		LOD:      lod,
		Mesh:     mesh,
		Material: mat,
	}
	s.tiles[c] = t
	return t
}

func (s *TileSet) despawn(c GridCoord) {
	delete(s.tiles, c)
}

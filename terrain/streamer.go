package terrain

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrInvalidStreamConfig is returned by NewStreamer for unusable settings.
var ErrInvalidStreamConfig = errors.New("terrain: invalid stream config")

// StreamConfig controls the streaming footprint and cadence.
type StreamConfig struct {
	// TileSize is the world-space edge length of one tile.
	TileSize float32 `yaml:"tile_size"`

	// Radius is the streaming radius in tiles.
	Radius int `yaml:"radius"`

	// Cadence is the interval between streaming passes driven by Tick.
	// Zero streams on every Tick.
	Cadence time.Duration `yaml:"cadence"`

	// BaseSubdivisions is the subdivision count of the LOD 0 mesh.
	BaseSubdivisions int `yaml:"base_subdivisions"`
}

// DefaultStreamConfig returns 200-unit tiles, a 16-tile radius,
// one pass per second and 128 base subdivisions.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		TileSize:         200,
		Radius:           16,
		Cadence:          time.Second,
		BaseSubdivisions: 128,
	}
}

// Validate reports whether the config can drive a Streamer.
func (c StreamConfig) Validate() error {
	switch {
	case !(c.TileSize > 0):
		return fmt.Errorf("%w: tile size %v must be positive", ErrInvalidStreamConfig, c.TileSize)
	case c.Radius < 0:
		return fmt.Errorf("%w: radius %d must not be negative", ErrInvalidStreamConfig, c.Radius)
	case c.Cadence < 0:
		return fmt.Errorf("%w: cadence %v must not be negative", ErrInvalidStreamConfig, c.Cadence)
	case c.BaseSubdivisions < 0:
		return fmt.Errorf("%w: base subdivisions %d must not be negative", ErrInvalidStreamConfig, c.BaseSubdivisions)
	}
	return nil
}

// StreamStats summarizes one streaming pass.
type StreamStats struct {
	Spawned   int
	Despawned int
	Remeshed  int
	Active    int
}

// Streamer maintains a disc of tiles around a moving observer.
type Streamer struct {
	cfg      StreamConfig
	lods     *LODCache
	material MaterialHandle
	tiles    *TileSet

	elapsed time.Duration
	primed  bool
}

// NewStreamer creates a streamer with no tiles.
func NewStreamer(cfg StreamConfig, lods *LODCache, material MaterialHandle) (*Streamer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if lods == nil {
		return nil, fmt.Errorf("%w: nil LOD cache", ErrInvalidStreamConfig)
	}
	return &Streamer{
		cfg:      cfg,
		lods:     lods,
		material: material,
		tiles:    NewTileSet(),
	}, nil
}

// Tiles returns the live tile set. Callers must not mutate it.
func (s *Streamer) Tiles() *TileSet { return s.tiles }

// Config returns the streamer's configuration.
func (s *Streamer) Config() StreamConfig { return s.cfg }

// Tick advances the cadence timer by dt and runs a streaming pass when it
// fires. The first call always streams. It reports whether a pass ran.
func (s *Streamer) Tick(dt time.Duration, observer mgl32.Vec3) (StreamStats, bool) {
	if !s.primed {
		s.primed = true
		return s.Stream(observer), true
	}
	s.elapsed += dt
	if s.elapsed < s.cfg.Cadence {
		return StreamStats{}, false
	}
	if s.cfg.Cadence > 0 {
		s.elapsed %= s.cfg.Cadence
	} else {
		s.elapsed = 0
	}
	return s.Stream(observer), true
}

// Stream runs one eviction pass followed by one spawn pass.
func (s *Streamer) Stream(observer mgl32.Vec3) StreamStats {
	var stats StreamStats

	center := SnapToGrid(observer, s.cfg.TileSize)
	reach := float32(s.cfg.Radius) * s.cfg.TileSize
	maxDistSq := reach * reach

	for t := range s.tiles.All() {
		d := planarDistSq(t.Position, observer)
		if d > maxDistSq && !inFootprint(t.Coord, center, s.cfg.Radius) {
			s.tiles.despawn(t.Coord)
			stats.Despawned++
			continue
		}
		lod := LODIndex(d)
		if lod != t.LOD {
			stats.Remeshed++
		}
		t.LOD = lod
		t.Mesh = s.lods.Mesh(lod)
	}

	r := int32(s.cfg.Radius)
	for x := -r; x < r; x++ {
		for z := -r; z < r; z++ {
			if x*x+z*z > r*r {
				continue
			}
			c := center.Add(x, z)
			if _, ok := s.tiles.At(c); ok {
				continue
			}
			pos := c.World(s.cfg.TileSize)
			lod := LODIndex(planarDistSq(pos, observer))
			s.tiles.spawn(c, pos, lod, s.lods.Mesh(lod), s.material)
			stats.Spawned++
		}
	}

	stats.Active = s.tiles.Len()
	slogger().Debug("terrain: stream pass",
		"center_x", center.X, "center_z", center.Z,
		"spawned", stats.Spawned, "despawned", stats.Despawned,
		"remeshed", stats.Remeshed, "active", stats.Active)
	return stats
}

// SnapToGrid returns the cell nearest to a world position on the XZ plane.
func SnapToGrid(p mgl32.Vec3, tileSize float32) GridCoord {
	return GridCoord{
		X: int32(math.Round(float64(p.X() / tileSize))),
		Z: int32(math.Round(float64(p.Z() / tileSize))),
	}
}

// Footprint returns the cells a spawn pass covers for an observer position:
// offsets in [-radius, radius) on both axes with squared length <= radius^2,
// relative to the observer's snapped cell.
func Footprint(observer mgl32.Vec3, radius int, tileSize float32) []GridCoord {
	center := SnapToGrid(observer, tileSize)
	r := int32(radius)
	var cells []GridCoord
	for x := -r; x < r; x++ {
		for z := -r; z < r; z++ {
			if x*x+z*z <= r*r {
				cells = append(cells, center.Add(x, z))
			}
		}
	}
	return cells
}

func inFootprint(c, center GridCoord, radius int) bool {
	r := int32(radius)
	dx, dz := c.X-center.X, c.Z-center.Z
	if dx < -r || dx >= r || dz < -r || dz >= r {
		return false
	}
	return dx*dx+dz*dz <= r*r
}

// planarDistSq is the squared distance between a and b ignoring Y.
func planarDistSq(a, b mgl32.Vec3) float32 {
	dx := a.X() - b.X()
	dz := a.Z() - b.Z()
	return dx*dx + dz*dz
}

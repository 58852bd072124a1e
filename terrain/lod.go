package terrain

import "fmt"

// LODLevels is the number of detail levels held by a LODCache.
const LODLevels = 6

// lodThresholds are the exclusive upper bounds, in squared world distance,
// of LOD brackets 0 through 4. Anything at or beyond the last bound is LOD 5.
var lodThresholds = [LODLevels - 1]float32{
	40000,    // 200^2
	160000,   // 400^2
	640000,   // 800^2
	2560000,  // 1600^2
	10240000, // 3200^2
}

// MeshHandle identifies a mesh owned by a MeshBuilder.
type MeshHandle uint32

// MaterialHandle identifies the shared terrain material.
type MaterialHandle uint32

// MeshBuilder turns a planar mesh description into a renderable mesh.
// The GPU mesh store implements it by uploading vertex and index buffers.
type MeshBuilder interface {
	BuildPlane(halfSize float32, subdivisions int) (MeshHandle, error)
}

// LODIndex returns the detail level for a squared distance.
// Negative input is treated as zero.
func LODIndex(distSq float32) int {
	for i, bound := range lodThresholds {
		if distSq < bound {
			return i
		}
	}
	return LODLevels - 1
}

// LODCache holds one plane mesh per detail level, built once at startup.
// It is immutable after NewLODCache returns and safe for concurrent reads.
type LODCache struct {
	meshes       [LODLevels]MeshHandle
	subdivisions [LODLevels]int
	halfSize     float32
}

// NewLODCache builds LODLevels plane meshes of the given half-size, with
// base subdivisions at level 0 and half as many at each following level.
func NewLODCache(builder MeshBuilder, halfSize float32, base int) (*LODCache, error) {
	if builder == nil {
		return nil, fmt.Errorf("terrain: nil mesh builder")
	}
	c := &LODCache{halfSize: halfSize}
	for i := range LODLevels {
		sub := base >> i
		h, err := builder.BuildPlane(halfSize, sub)
		if err != nil {
			return nil, fmt.Errorf("terrain: build LOD %d (%d subdivisions): %w", i, sub, err)
		}
		c.meshes[i] = h
		c.subdivisions[i] = sub
	}
	slogger().Debug("terrain: LOD cache built",
		"half_size", halfSize, "base_subdivisions", base)
	return c, nil
}

// Lookup returns the mesh for a squared distance from the observer.
func (c *LODCache) Lookup(distSq float32) MeshHandle {
	return c.meshes[LODIndex(distSq)]
}

// Mesh returns the mesh at a detail level.
func (c *LODCache) Mesh(level int) MeshHandle {
	return c.meshes[level]
}

// Subdivisions returns the subdivision count used for a detail level.
func (c *LODCache) Subdivisions(level int) int {
	return c.subdivisions[level]
}

// HalfSize returns the half-size every mesh was built with.
func (c *LODCache) HalfSize() float32 {
	return c.halfSize
}

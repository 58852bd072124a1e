package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/terra/terrain"
)

// GPUMesh is an uploaded terrain mesh.
type GPUMesh struct {
	Vertices   hal.Buffer
	Indices    hal.Buffer
	IndexCount uint32
}

// MeshStore uploads terrain meshes and hands out handles to them.
// It satisfies terrain.MeshBuilder.
type MeshStore struct {
	device hal.Device
	queue  hal.Queue

	mu     sync.Mutex
	meshes []GPUMesh
}

// NewMeshStore creates an empty store.
func NewMeshStore(device hal.Device, queue hal.Queue) (*MeshStore, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	return &MeshStore{device: device, queue: queue}, nil
}

// BuildPlane uploads a subdivided plane and returns its handle.
func (s *MeshStore) BuildPlane(halfSize float32, subdivisions int) (terrain.MeshHandle, error) {
	m := terrain.PlaneMesh(halfSize, subdivisions)
	label := fmt.Sprintf("terrain_plane_%d", subdivisions)

	vb, err := createAndUploadBuffer(s.device, s.queue, label+"_vertices", vertexBytes(m.Vertices),
		gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst)
	if err != nil {
		return 0, err
	}
	ib, err := createAndUploadBuffer(s.device, s.queue, label+"_indices", indexBytes(m.Indices),
		gputypes.BufferUsageIndex|gputypes.BufferUsageCopyDst)
	if err != nil {
		s.device.DestroyBuffer(vb)
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	h := terrain.MeshHandle(len(s.meshes))
	s.meshes = append(s.meshes, GPUMesh{Vertices: vb, Indices: ib, IndexCount: uint32(len(m.Indices))})
	slogger().Debug("gpu: mesh uploaded", "handle", h, "subdivisions", subdivisions,
		"vertices", len(m.Vertices), "indices", len(m.Indices))
	return h, nil
}

// Get returns the mesh for a handle.
func (s *MeshStore) Get(h terrain.MeshHandle) (GPUMesh, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(h) >= len(s.meshes) {
		return GPUMesh{}, false
	}
	return s.meshes[h], true
}

// Len returns the number of uploaded meshes.
func (s *MeshStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.meshes)
}

// Destroy releases every mesh buffer.
func (s *MeshStore) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.meshes {
		s.device.DestroyBuffer(m.Vertices)
		s.device.DestroyBuffer(m.Indices)
	}
	s.meshes = nil
}

func vertexBytes(vs []terrain.Vertex) []byte {
	buf := make([]byte, len(vs)*terrain.VertexStride)
	off := 0
	put := func(f float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
		off += 4
	}
	for i := range vs {
		v := &vs[i]
		for _, f := range v.Position {
			put(f)
		}
		for _, f := range v.Normal {
			put(f)
		}
		for _, f := range v.UV {
			put(f)
		}
	}
	return buf
}

func indexBytes(idx []uint32) []byte {
	buf := make([]byte, len(idx)*4)
	for i, v := range idx {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

// createAndUploadBuffer creates a buffer sized to data and writes data into it.
func createAndUploadBuffer(device hal.Device, queue hal.Queue, label string, data []byte, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	if err := queue.WriteBuffer(buf, 0, data); err != nil {
		device.DestroyBuffer(buf)
		return nil, fmt.Errorf("upload %s: %w", label, err)
	}
	return buf, nil
}

package gpu

import "sync"

// Specializer builds a pipeline descriptor for one key value.
type Specializer[K comparable] interface {
	Specialize(key K) RenderPipelineDescriptor
}

// SpecializedPipelines remembers the pipeline queued for each key, so a
// key is specialized and compiled at most once per process.
type SpecializedPipelines[K comparable] struct {
	mu  sync.Mutex
	ids map[K]PipelineID
}

// NewSpecializedPipelines creates an empty key table.
func NewSpecializedPipelines[K comparable]() *SpecializedPipelines[K] {
	return &SpecializedPipelines[K]{ids: make(map[K]PipelineID)}
}

// Specialize returns the pipeline for key, queueing a new descriptor
// from s on first use. The returned ID may not be compiled yet.
func (p *SpecializedPipelines[K]) Specialize(cache *PipelineCache, s Specializer[K], key K) PipelineID {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.ids[key]; ok {
		return id
	}
	id := cache.Queue(s.Specialize(key))
	p.ids[key] = id
	return id
}

// Lookup returns the pipeline already specialized for key.
func (p *SpecializedPipelines[K]) Lookup(key K) (PipelineID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.ids[key]
	return id, ok
}

// Len returns the number of specialized keys.
func (p *SpecializedPipelines[K]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}

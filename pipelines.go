package terra

import "github.com/gogpu/terra/internal/gpu"

// PipelineID identifies a render pipeline in the app's pipeline cache.
type PipelineID = gpu.PipelineID

// PipelineState is the compilation state of a pipeline.
type PipelineState = gpu.PipelineState

// Pipeline states reported by App.PipelineState.
const (
	PipelineQueued    = gpu.PipelineQueued
	PipelineCompiling = gpu.PipelineCompiling
	PipelineReady     = gpu.PipelineReady
	PipelineFailed    = gpu.PipelineFailed
)

// ErrPipelineFailed is wrapped by the error App.PipelineState reports for a
// pipeline that failed to compile or is unknown.
var ErrPipelineFailed = gpu.ErrPipelineFailed

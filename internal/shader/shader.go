// Package shader loads WGSL programs for the render passes.
//
// Programs are read from an fs.FS, parsed with naga to reject malformed
// source before it reaches a backend, and cached by path. Backends that
// consume SPIR-V can ask a Program for its compiled words.
package shader

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/gogpu/naga"
)

// ErrInvalidSource is returned when WGSL fails to parse.
var ErrInvalidSource = errors.New("shader: invalid WGSL")

// Program is a loaded, parse-checked WGSL shader.
type Program struct {
	// Name is the path the program was loaded from.
	Name string

	// Source is the WGSL text.
	Source string

	spirvOnce sync.Once
	spirv     []uint32
	spirvErr  error
}

// NewProgram parse-checks WGSL source under a name.
func NewProgram(name, source string) (*Program, error) {
	if _, err := naga.Parse(source); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidSource, name, err)
	}
	return &Program{Name: name, Source: source}, nil
}

// SPIRV compiles the program to SPIR-V words once and caches the result.
func (p *Program) SPIRV() ([]uint32, error) {
	p.spirvOnce.Do(func() {
		opts := naga.DefaultOptions()
		opts.Validate = false
		b, err := naga.CompileWithOptions(p.Source, opts)
		if err != nil {
			p.spirvErr = fmt.Errorf("shader: compile %s: %w", p.Name, err)
			return
		}
		// SPIR-V is a stream of little-endian 32-bit words.
		words := make([]uint32, len(b)/4)
		for i := range words {
			words[i] = uint32(b[i*4]) |
				uint32(b[i*4+1])<<8 |
				uint32(b[i*4+2])<<16 |
				uint32(b[i*4+3])<<24
		}
		p.spirv = words
	})
	return p.spirv, p.spirvErr
}

// Loader reads and caches programs from a file system.
type Loader struct {
	fsys       fs.FS
	precompile bool

	mu       sync.Mutex
	programs map[string]*Program
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithSPIRV makes Load compile every program to SPIR-V up front, so
// compile errors surface at load time rather than at pipeline creation.
func WithSPIRV() LoaderOption {
	return func(l *Loader) { l.precompile = true }
}

// NewLoader creates a loader over fsys.
func NewLoader(fsys fs.FS, opts ...LoaderOption) *Loader {
	l := &Loader{fsys: fsys, programs: make(map[string]*Program)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the program at path, reading it on first use.
func (l *Loader) Load(path string) (*Program, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.programs[path]; ok {
		return p, nil
	}
	src, err := fs.ReadFile(l.fsys, path)
	if err != nil {
		return nil, fmt.Errorf("shader: read %s: %w", path, err)
	}
	p, err := NewProgram(path, string(src))
	if err != nil {
		return nil, err
	}
	if l.precompile {
		if _, err := p.SPIRV(); err != nil {
			return nil, err
		}
	}
	l.programs[path] = p
	return p, nil
}

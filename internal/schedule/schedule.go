// Package schedule runs per-frame systems in ordered sets.
//
// Systems declare the resources they read and write. Within a set,
// systems that touch disjoint data run in parallel on a worker pool;
// any two systems where one writes what the other reads or writes are
// serialized in registration order. Sets always run in the order given
// to New.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/terra/internal/parallel"
)

// Set names a group of systems that runs as a unit.
type Set string

// Simulation and render sets.
const (
	Update            Set = "update"
	Extract           Set = "extract"
	Queue             Set = "queue"
	PrepareBindGroups Set = "prepare_bind_groups"
	Render            Set = "render"
)

// Errors returned while building a schedule.
var (
	ErrUnknownSet      = errors.New("schedule: unknown set")
	ErrDuplicateSystem = errors.New("schedule: duplicate system")
	ErrNoRun           = errors.New("schedule: system has no run function")
)

// System is one unit of per-frame work.
type System struct {
	Name   string
	Set    Set
	Reads  []string
	Writes []string

	// RunIf gates the system for a frame. Nil means always run.
	RunIf func() bool

	Run func(ctx context.Context) error
}

func (s *System) conflicts(o *System) bool {
	for _, w := range s.Writes {
		if slices.Contains(o.Writes, w) || slices.Contains(o.Reads, w) {
			return true
		}
	}
	for _, r := range s.Reads {
		if slices.Contains(o.Writes, r) {
			return true
		}
	}
	return false
}

// Schedule holds systems and their resolved execution levels.
// Add and Build are not safe for concurrent use; Run is called from one
// goroutine per frame.
type Schedule struct {
	pool    *parallel.WorkerPool
	sets    []Set
	systems []*System
	levels  [][]*System
	dirty   bool
}

// New creates a schedule whose sets run in the given order.
// A nil pool runs every system on the calling goroutine.
func New(pool *parallel.WorkerPool, sets ...Set) *Schedule {
	return &Schedule{pool: pool, sets: sets}
}

// Add registers a system.
func (s *Schedule) Add(sys System) error {
	if sys.Run == nil {
		return fmt.Errorf("%w: %s", ErrNoRun, sys.Name)
	}
	if !slices.Contains(s.sets, sys.Set) {
		return fmt.Errorf("%w: %s (system %s)", ErrUnknownSet, sys.Set, sys.Name)
	}
	for _, existing := range s.systems {
		if existing.Name == sys.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateSystem, sys.Name)
		}
	}
	s.systems = append(s.systems, &sys)
	s.dirty = true
	return nil
}

// Build resolves systems into levels. Run calls it when needed.
func (s *Schedule) Build() {
	s.levels = s.levels[:0]
	for _, set := range s.sets {
		base := len(s.levels)
		var placed []*System
		var levelOf []int
		for _, sys := range s.systems {
			if sys.Set != set {
				continue
			}
			lvl := base
			for i, prev := range placed {
				if sys.conflicts(prev) || prev.conflicts(sys) {
					lvl = max(lvl, levelOf[i]+1)
				}
			}
			for len(s.levels) <= lvl {
				s.levels = append(s.levels, nil)
			}
			s.levels[lvl] = append(s.levels[lvl], sys)
			placed = append(placed, sys)
			levelOf = append(levelOf, lvl)
		}
	}
	s.dirty = false
}

// Levels returns system names grouped by execution level.
func (s *Schedule) Levels() [][]string {
	if s.dirty {
		s.Build()
	}
	out := make([][]string, len(s.levels))
	for i, lvl := range s.levels {
		for _, sys := range lvl {
			out[i] = append(out[i], sys.Name)
		}
	}
	return out
}

// Run executes one pass over every level. It stops after the first level
// that returns an error, and checks ctx between levels.
func (s *Schedule) Run(ctx context.Context) error {
	if s.dirty {
		s.Build()
	}
	for _, lvl := range s.levels {
		if err := ctx.Err(); err != nil {
			return err
		}
		tasks := make([]func() error, 0, len(lvl))
		for _, sys := range lvl {
			if sys.RunIf != nil && !sys.RunIf() {
				continue
			}
			tasks = append(tasks, func() error {
				if err := sys.Run(ctx); err != nil {
					return fmt.Errorf("system %s: %w", sys.Name, err)
				}
				return nil
			})
		}
		if err := s.execute(tasks); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schedule) execute(tasks []func() error) error {
	if s.pool == nil {
		var errs []error
		for _, task := range tasks {
			errs = append(errs, task())
		}
		return errors.Join(errs...)
	}
	return s.pool.ExecuteAll(tasks)
}

// Not negates a run condition.
func Not(cond func() bool) func() bool {
	return func() bool { return !cond() }
}

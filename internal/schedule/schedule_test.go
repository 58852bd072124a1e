package schedule

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/terra/internal/parallel"
)

func noop(context.Context) error { return nil }

func TestBuildLevelsByConflict(t *testing.T) {
	s := New(nil, Update)
	add := func(sys System) {
		t.Helper()
		sys.Set = Update
		if sys.Run == nil {
			sys.Run = noop
		}
		if err := s.Add(sys); err != nil {
			t.Fatalf("Add(%s): %v", sys.Name, err)
		}
	}
	add(System{Name: "observer", Writes: []string{"observer"}})
	add(System{Name: "clock", Writes: []string{"time"}})
	add(System{Name: "stream", Reads: []string{"observer"}, Writes: []string{"tiles"}})
	add(System{Name: "stats", Reads: []string{"tiles", "time"}})
	add(System{Name: "hud", Reads: []string{"observer"}})

	want := [][]string{
		{"observer", "clock"},
		{"stream", "hud"},
		{"stats"},
	}
	got := s.Levels()
	if len(got) != len(want) {
		t.Fatalf("levels = %v, want %v", got, want)
	}
	for i := range want {
		if !slices.Equal(got[i], want[i]) {
			t.Errorf("level %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSetsRunInOrder(t *testing.T) {
	s := New(nil, Extract, Queue, PrepareBindGroups, Render)
	var mu sync.Mutex
	var ran []string
	rec := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			ran = append(ran, name)
			mu.Unlock()
			return nil
		}
	}
	// Registered out of order.
	for _, sys := range []System{
		{Name: "render", Set: Render, Run: rec("render")},
		{Name: "prepare", Set: PrepareBindGroups, Run: rec("prepare")},
		{Name: "extract", Set: Extract, Run: rec("extract")},
		{Name: "queue", Set: Queue, Run: rec("queue")},
	} {
		if err := s.Add(sys); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"extract", "queue", "prepare", "render"}
	if !slices.Equal(ran, want) {
		t.Errorf("ran %v, want %v", ran, want)
	}
}

func TestRunParallelOnPool(t *testing.T) {
	pool := parallel.NewWorkerPool(4)
	defer pool.Close()

	s := New(pool, Update)
	var count atomic.Int64
	for _, name := range []string{"a", "b", "c", "d"} {
		err := s.Add(System{
			Name:   name,
			Set:    Update,
			Writes: []string{name},
			Run: func(context.Context) error {
				count.Add(1)
				return nil
			},
		})
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if levels := s.Levels(); len(levels) != 1 || len(levels[0]) != 4 {
		t.Fatalf("levels = %v, want one level of four", levels)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count.Load() != 4 {
		t.Errorf("ran %d systems, want 4", count.Load())
	}
}

func TestRunIfGates(t *testing.T) {
	paused := true
	ran := 0
	s := New(nil, Update)
	_ = s.Add(System{
		Name:  "sim",
		Set:   Update,
		RunIf: Not(func() bool { return paused }),
		Run: func(context.Context) error {
			ran++
			return nil
		},
	})
	_ = s.Run(context.Background())
	if ran != 0 {
		t.Fatalf("paused system ran %d times", ran)
	}
	paused = false
	_ = s.Run(context.Background())
	if ran != 1 {
		t.Errorf("unpaused system ran %d times, want 1", ran)
	}
}

func TestRunStopsAfterFailingLevel(t *testing.T) {
	boom := errors.New("boom")
	s := New(nil, Update, Render)
	later := false
	_ = s.Add(System{Name: "fail", Set: Update, Run: func(context.Context) error { return boom }})
	_ = s.Add(System{Name: "later", Set: Render, Run: func(context.Context) error {
		later = true
		return nil
	}})
	err := s.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want boom", err)
	}
	if later {
		t.Error("system in a later set ran after a failure")
	}
}

func TestRunHonorsContext(t *testing.T) {
	s := New(nil, Update)
	_ = s.Add(System{Name: "a", Set: Update, Run: noop})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
}

func TestAddErrors(t *testing.T) {
	s := New(nil, Update)
	if err := s.Add(System{Name: "x", Set: Update}); !errors.Is(err, ErrNoRun) {
		t.Errorf("missing run: %v", err)
	}
	if err := s.Add(System{Name: "x", Set: Render, Run: noop}); !errors.Is(err, ErrUnknownSet) {
		t.Errorf("unknown set: %v", err)
	}
	if err := s.Add(System{Name: "x", Set: Update, Run: noop}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(System{Name: "x", Set: Update, Run: noop}); !errors.Is(err, ErrDuplicateSystem) {
		t.Errorf("duplicate: %v", err)
	}
}

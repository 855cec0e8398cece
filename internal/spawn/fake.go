package spawn

import "sync"

// FakeSpawner records spawn requests and runs each one's callback
// synchronously, standing in for os/exec in tests where forking a real
// process isn't appropriate.
type FakeSpawner struct {
	mu    sync.Mutex
	calls [][]string
	// Run is invoked with each argv in place of actually forking. A nil Run
	// only records the call.
	Run func(argv []string) error
}

func NewFakeSpawner(run func(argv []string) error) *FakeSpawner {
	return &FakeSpawner{Run: run}
}

func (f *FakeSpawner) SpawnDetached(argv []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, argv)
	f.mu.Unlock()

	if f.Run == nil {
		return nil
	}
	return f.Run(argv)
}

// Calls returns a snapshot of every argv passed to SpawnDetached so far.
func (f *FakeSpawner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

var _ Spawner = (*FakeSpawner)(nil)

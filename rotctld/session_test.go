package rotctld

import (
	"sync"
	"testing"
	"time"
)

func startTestSession(t *testing.T) (*Simulator, *Session) {
	t.Helper()
	sim, err := NewSimulator("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sim.Close() })
	s, err := Start(sim.Addr(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Shutdown)
	return sim, s
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func polls(sim *Simulator) []Command {
	var out []Command
	for _, c := range sim.Commands() {
		if c.Verb == "p" {
			out = append(out, c)
		}
	}
	return out
}

func TestSessionDutyCycle(t *testing.T) {
	sim, _ := startTestSession(t)
	waitFor(t, 10*time.Second, func() bool { return len(polls(sim)) >= 4 })
	ps := polls(sim)
	for i := 1; i < 4; i++ {
		if gap := ps[i].Time.Sub(ps[i-1].Time); gap < 700*time.Millisecond {
			t.Errorf("polls %d and %d only %v apart", i-1, i, gap)
		}
	}
	if total := ps[3].Time.Sub(ps[0].Time); total < 3*700*time.Millisecond {
		t.Errorf("3 cycles took %v, want at least 2.1s", total)
	}
}

func TestSessionCommand(t *testing.T) {
	sim, s := startTestSession(t)
	waitFor(t, 5*time.Second, func() bool {
		_, ok := s.Exchange(&Position{Az: 90, El: 45})
		return ok
	})
	waitFor(t, 5*time.Second, func() bool { return !s.State().NewTarget })
	var sets []Command
	for _, c := range sim.Commands() {
		if c.Verb == "P" {
			sets = append(sets, c)
		}
	}
	if len(sets) != 1 {
		t.Fatalf("simulator saw %d set commands, want 1", len(sets))
	}
	if sets[0].Az != 90 || sets[0].El != 45 {
		t.Errorf("commanded (%v, %v), want (90, 45)", sets[0].Az, sets[0].El)
	}
	// The readback should start converging on the target.
	waitFor(t, 10*time.Second, func() bool { return s.State().In.Az > 0 })
}

func TestSessionMonitor(t *testing.T) {
	sim, s := startTestSession(t)
	s.SetMonitor(true)
	waitFor(t, 5*time.Second, func() bool {
		_, ok := s.Exchange(&Position{Az: 90, El: 45})
		return ok
	})
	waitFor(t, 10*time.Second, func() bool { return len(polls(sim)) >= 2 })
	for _, c := range sim.Commands() {
		if c.Verb == "P" {
			t.Fatal("set command sent while monitoring")
		}
	}
	if !s.State().NewTarget {
		t.Error("pending target dropped while monitoring")
	}
}

func TestSessionSoftErrorRetries(t *testing.T) {
	sim, s := startTestSession(t)
	sim.FailSet(-22)
	waitFor(t, 5*time.Second, func() bool {
		_, ok := s.Exchange(&Position{Az: 10, El: 10})
		return ok
	})
	waitFor(t, 10*time.Second, func() bool {
		st := s.State()
		return st.IOError && st.NewTarget
	})
	sim.FailSet(0)
	// The pending target is retried until the daemon accepts it.
	waitFor(t, 10*time.Second, func() bool {
		st := s.State()
		return !st.NewTarget && !st.IOError
	})
}

func TestSessionShutdown(t *testing.T) {
	sim, s := startTestSession(t)
	waitFor(t, 10*time.Second, func() bool { return len(polls(sim)) >= 1 })
	s.Shutdown()
	if s.State().Running {
		t.Error("state still running after Shutdown")
	}
	cmds := sim.Commands()
	if len(cmds) == 0 || cmds[len(cmds)-1].Verb != "S" {
		t.Errorf("last command %+v, want stop", cmds[len(cmds)-1])
	}
	// Idempotent.
	s.Shutdown()
}

func TestCommandStateNoTornPairs(t *testing.T) {
	s := &Session{done: make(chan struct{})}
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			v := float64(i % 360)
			s.Exchange(&Position{Az: v, El: v})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			v := float64(i % 90)
			s.mu.Lock()
			s.state.In = Position{Az: v, El: v}
			s.mu.Unlock()
		}
	}()
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		st := s.State()
		if st.Out.Az != st.Out.El {
			t.Fatalf("torn commanded pair: %+v", st.Out)
		}
		if st.In.Az != st.In.El {
			t.Fatalf("torn readback pair: %+v", st.In)
		}
	}
	close(stop)
	wg.Wait()
}

func TestSessionConnectFailure(t *testing.T) {
	sim, err := NewSimulator("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := sim.Addr()
	sim.Close()
	if _, err := Start(addr, nil); err == nil {
		t.Error("Start on closed port = nil error")
	}
}

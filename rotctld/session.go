package rotctld

import (
	"log"
	"sync"
	"time"
)

const (
	// commandSettle is the pause between sending a position command and
	// polling the readback, so the two never pile up on the wire.
	commandSettle = 100 * time.Millisecond
	// minCycleSleep keeps the daemon's duty cycle at or below 50%: every
	// loop iteration sleeps at least this long, and never less than the
	// time the iteration's own I/O took.
	minCycleSleep = 700 * time.Millisecond
)

// Position is a commanded azimuth/elevation pair.
type Position struct {
	Az float64
	El float64
}

// CommandState is the shared state between the session loop and whoever
// drives it. All fields are guarded by the Session mutex.
type CommandState struct {
	// Out is the latest commanded position; NewTarget is set while it has
	// not yet been accepted by the daemon.
	Out       Position
	NewTarget bool
	// In is the last position read back from the daemon.
	In Position
	// IOError reports whether the most recent loop iteration had a
	// command or poll failure.
	IOError bool
	// Running is cleared to ask the loop to exit after its current
	// iteration.
	Running bool
}

// Session owns a Client and relays commands to it from a background
// goroutine. The goroutine is the only user of the socket from Start
// until Shutdown returns.
type Session struct {
	client  *Client
	metrics *Metrics

	mu      sync.Mutex
	state   CommandState
	monitor bool

	done chan struct{}
}

// Start connects to the daemon and spawns the session loop. The connect
// is synchronous; a dial failure means no session exists.
func Start(addr string, metrics *Metrics) (*Session, error) {
	client, err := Open(addr)
	if err != nil {
		return nil, err
	}
	log.Printf("rotctld: session open to %s", addr)
	s := &Session{
		client:  client,
		metrics: metrics,
		done:    make(chan struct{}),
	}
	s.state.Running = true
	go s.loop()
	return s, nil
}

func (s *Session) loop() {
	defer close(s.done)
	defer s.client.Close()
	var out Position
	var newTrg bool
	for {
		start := time.Now()
		ioError := false

		s.mu.Lock()
		if !s.state.Running {
			s.mu.Unlock()
			break
		}
		if s.state.NewTarget {
			out = s.state.Out
			newTrg = true
		}
		monitor := s.monitor
		s.mu.Unlock()

		if newTrg && !monitor {
			s.metrics.command("P")
			if err := s.client.SetPosition(out.Az, out.El); err != nil {
				log.Printf("rotctld: set position %.2f %.2f: %v", out.Az, out.El, err)
				ioError = true
			} else {
				newTrg = false
			}
		}

		time.Sleep(commandSettle)

		s.metrics.command("p")
		az, el, err := s.client.Position()
		if err != nil {
			log.Printf("rotctld: get position: %v", err)
			ioError = true
		}

		s.mu.Lock()
		if err == nil {
			s.state.In = Position{Az: az, El: el}
		}
		s.state.NewTarget = newTrg
		s.state.IOError = ioError
		s.mu.Unlock()

		s.metrics.cycle(time.Since(start), ioError)
		if err == nil {
			s.metrics.position(az, el)
		}

		sleep := time.Since(start)
		if sleep < minCycleSleep {
			sleep = minCycleSleep
		}
		time.Sleep(sleep)
	}
	s.metrics.command("S")
	if err := s.client.Stop(); err != nil {
		log.Printf("rotctld: stop on shutdown: %v", err)
	}
	log.Print("rotctld: session stopped")
}

// Shutdown asks the loop to exit, waits for it to stop the rotator and
// close the socket, and returns once the goroutine is gone. Safe to call
// more than once.
func (s *Session) Shutdown() {
	s.mu.Lock()
	s.state.Running = false
	s.mu.Unlock()
	<-s.done
}

// SetMonitor toggles monitor-only mode. While set, pending targets are
// held back and only position polls go out.
func (s *Session) SetMonitor(monitor bool) {
	s.mu.Lock()
	s.monitor = monitor
	s.mu.Unlock()
}

// State returns a snapshot of the shared state. It blocks on the mutex,
// so it is for display paths, not the control loop.
func (s *Session) State() CommandState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Exchange publishes a new commanded position (when cmd is non-nil) and
// returns a snapshot of the state, without ever blocking. ok is false
// when the session loop held the lock; the caller should just try again
// on its next cycle.
func (s *Session) Exchange(cmd *Position) (CommandState, bool) {
	if !s.mu.TryLock() {
		return CommandState{}, false
	}
	defer s.mu.Unlock()
	if cmd != nil {
		s.state.Out = *cmd
		s.state.NewTarget = true
	}
	return s.state, true
}

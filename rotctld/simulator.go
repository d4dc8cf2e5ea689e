package rotctld

import (
	"bufio"
	"fmt"
	"log"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Command is one request the simulator served, recorded for inspection.
type Command struct {
	Time time.Time
	Verb string
	Az   float64
	El   float64
}

// Simulator speaks the daemon side of the rotctld protocol and models a
// rotator that slews toward the last commanded position at a fixed rate.
// It backs the -simulate flag and the package tests.
type Simulator struct {
	ln net.Listener

	mu       sync.Mutex
	az, el   float64
	trgAz    float64
	trgEl    float64
	lastStep time.Time
	setErr   int
	records  []Command

	// SlewRate is degrees per second on each axis.
	SlewRate float64
}

// NewSimulator starts listening on addr ("127.0.0.1:0" for an ephemeral
// test port).
func NewSimulator(addr string) (*Simulator, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Simulator{ln: ln, lastStep: time.Now(), SlewRate: 5}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the listen address.
func (s *Simulator) Addr() string {
	return s.ln.Addr().String()
}

// Close stops listening. Connections already accepted run until their
// peer disconnects.
func (s *Simulator) Close() error {
	return s.ln.Close()
}

// Commands returns a copy of every request served so far.
func (s *Simulator) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.records...)
}

// Position returns the simulated rotator position.
func (s *Simulator) Position() (az, el float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()
	return s.az, s.el
}

// FailSet makes every subsequent set-position reply carry the given
// nonzero status until FailSet(0) is called.
func (s *Simulator) FailSet(code int) {
	s.mu.Lock()
	s.setErr = code
	s.mu.Unlock()
}

func (s *Simulator) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *Simulator) handle(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		verb := string(line[0])
		args := strings.Fields(line[1:])
		switch verb {
		case "p":
			s.mu.Lock()
			s.step()
			s.record(verb, 0, 0)
			az, el := s.az, s.el
			s.mu.Unlock()
			fmt.Fprintf(conn, "%.6f\n%.6f\n", az, el)
		case "P":
			code := -22
			if len(args) == 2 {
				az, errAz := strconv.ParseFloat(args[0], 64)
				el, errEl := strconv.ParseFloat(args[1], 64)
				if errAz == nil && errEl == nil {
					s.mu.Lock()
					s.step()
					s.record(verb, az, el)
					if s.setErr != 0 {
						code = s.setErr
					} else {
						s.trgAz, s.trgEl = az, el
						code = 0
					}
					s.mu.Unlock()
				}
			}
			fmt.Fprintf(conn, "RPRT %d\n", code)
		case "S":
			s.mu.Lock()
			s.step()
			s.record(verb, 0, 0)
			s.trgAz, s.trgEl = s.az, s.el
			s.mu.Unlock()
			fmt.Fprintf(conn, "RPRT 0\n")
		case "q":
			return
		default:
			fmt.Fprintf(conn, "RPRT -1\n")
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("rotctld simulator: reading from %v: %v", conn.RemoteAddr(), err)
	}
}

// step advances the servo model. Callers hold mu.
func (s *Simulator) step() {
	now := time.Now()
	dt := now.Sub(s.lastStep).Seconds()
	s.lastStep = now
	s.az = approach(s.az, s.trgAz, s.SlewRate*dt)
	s.el = approach(s.el, s.trgEl, s.SlewRate*dt)
}

func (s *Simulator) record(verb string, az, el float64) {
	s.records = append(s.records, Command{Time: time.Now(), Verb: verb, Az: az, El: el})
}

func approach(cur, trg, limit float64) float64 {
	d := trg - cur
	if math.Abs(d) <= limit {
		return trg
	}
	return cur + math.Copysign(limit, d)
}

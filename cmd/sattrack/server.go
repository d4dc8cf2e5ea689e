package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/w1xm/sattrack/control"
	"github.com/w1xm/sattrack/hwconf"
)

type Server struct {
	mu    sync.Mutex
	ctrl  *control.Controller
	store hwconf.Store

	// limiter caps how fast websocket clients can issue commands.
	limiter *rate.Limiter

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     control.Status
}

func NewServer(ctrl *control.Controller, store hwconf.Store) *Server {
	s := &Server{
		ctrl:    ctrl,
		store:   store,
		limiter: rate.NewLimiter(20, 40),
	}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

// Run drives the control loop until ctx is canceled. The timer is
// re-armed from the controller each cycle so operator changes to the
// period take effect immediately.
func (s *Server) Run(ctx context.Context) error {
	for {
		s.mu.Lock()
		status := s.ctrl.Tick(time.Now())
		cycle := s.ctrl.Cycle()
		s.mu.Unlock()
		s.publish(status)
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.ctrl.Disengage()
			s.mu.Unlock()
			return ctx.Err()
		case <-time.After(cycle):
		}
	}
}

func (s *Server) publish(status control.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
	s.statusCond.Broadcast()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(status)
	if err != nil {
		log.Print(err)
		return
	}
	w.Write(data)
}

type satelliteInfo struct {
	Name   string `json:"name"`
	CatNum int    `json:"catnum"`
}

func (s *Server) SatellitesHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sats := s.ctrl.Satellites()
	s.mu.Unlock()
	out := make([]satelliteInfo, 0, len(sats))
	for _, sat := range sats {
		out = append(out, satelliteInfo{Name: sat.Name, CatNum: sat.CatNum})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) RotatorsHandler(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(names)
}

type Command struct {
	Command string  `json:"command"`
	CatNum  int     `json:"catnum"`
	Az      float64 `json:"az"`
	El      float64 `json:"el"`
	Enabled bool    `json:"enabled"`
	Value   float64 `json:"value"`
	Name    string  `json:"name"`
}

func (s *Server) handleCommand(msg Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch msg.Command {
	case "select":
		return s.ctrl.SelectSatellite(msg.CatNum, time.Now())
	case "track":
		s.ctrl.SetTracking(msg.Enabled)
	case "engage":
		if msg.Enabled {
			return s.ctrl.Engage()
		}
		s.ctrl.Disengage()
	case "monitor":
		s.ctrl.SetMonitor(msg.Enabled)
	case "park":
		s.ctrl.Park()
	case "knob":
		s.ctrl.SetKnob(msg.Az, msg.El)
	case "cycle":
		s.ctrl.SetCycle(time.Duration(msg.Value) * time.Millisecond)
	case "threshold":
		s.ctrl.SetThreshold(msg.Value)
	case "rotor":
		conf, err := s.store.Load(msg.Name)
		if err != nil {
			// Keep whatever configuration was active.
			return err
		}
		return s.ctrl.SetConfig(conf)
	}
	return nil
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		cancel()
		return
	}

	// Read and process incoming messages
	go func() {
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				cancel()
				conn.Close()
				break
			}
			if !s.limiter.Allow() {
				log.Printf("dropping %q command from %v: rate limit", msg.Command, r.RemoteAddr)
				continue
			}
			if err := s.handleCommand(msg); err != nil {
				log.Printf("%q command from %v: %v", msg.Command, r.RemoteAddr, err)
			}
		}
	}()

	send := func(status control.Status) bool {
		data, err := json.Marshal(status)
		if err != nil {
			log.Print(err)
			return false
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return false
		}
		return true
	}

	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	if !send(status) {
		return
	}

	for {
		s.statusMu.RLock()
		s.statusCond.Wait()
		status := s.status
		s.statusMu.RUnlock()
		if ctx.Err() != nil {
			return
		}
		if !send(status) {
			return
		}
	}
}

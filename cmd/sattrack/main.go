package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/w1xm/sattrack/control"
	"github.com/w1xm/sattrack/hwconf"
	"github.com/w1xm/sattrack/predict"
	"github.com/w1xm/sattrack/rotctld"
)

var (
	addr      = flag.String("addr", "127.0.0.1:8502", "address to listen on")
	staticDir = flag.String("static_dir", "static", "directory containing static files")
	tleFile   = flag.String("tle", "satellites.tle", "two-line element file to load")
	rotorDir  = flag.String("rotor_dir", "rotors", "directory of rotator configurations")
	rotorName = flag.String("rotor", "", "rotator configuration to select at startup")
	simulate  = flag.Bool("simulate", false, "run against a built-in rotctld simulator")

	qthName = flag.String("callsign", "", "ground station name")
	qthLat  = flag.Float64("lat", 0, "ground station latitude in degrees north")
	qthLon  = flag.Float64("lon", 0, "ground station longitude in degrees east")
	qthAlt  = flag.Float64("alt", 0, "ground station altitude in meters")
)

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	qth := predict.QTH{Name: *qthName, Lat: *qthLat, Lon: *qthLon, Alt: *qthAlt}
	sats, err := predict.LoadTLEFile(*tleFile)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("loaded %d satellites from %s", len(sats), *tleFile)

	metrics := rotctld.NewMetrics(nil)
	ctrl := control.New(qth, nil, metrics)
	list := make([]control.Satellite, 0, len(sats))
	for _, sat := range sats {
		list = append(list, control.Satellite{Name: sat.Name, CatNum: sat.CatNum, Traj: sat})
	}
	ctrl.SetSatellites(list)

	store := hwconf.Store{Dir: *rotorDir}
	switch {
	case *simulate:
		sim, err := rotctld.NewSimulator("127.0.0.1:0")
		if err != nil {
			log.Fatal(err)
		}
		defer sim.Close()
		host, portStr, err := net.SplitHostPort(sim.Addr())
		if err != nil {
			log.Fatal(err)
		}
		port, _ := strconv.Atoi(portStr)
		conf := hwconf.Default("simulator")
		conf.Host = host
		conf.Port = port
		if err := ctrl.SetConfig(conf); err != nil {
			log.Fatal(err)
		}
		log.Printf("simulating rotctld on %s", sim.Addr())
	case *rotorName != "":
		conf, err := store.Load(*rotorName)
		if err != nil {
			log.Fatal(err)
		}
		if err := ctrl.SetConfig(conf); err != nil {
			log.Fatal(err)
		}
	}

	server := NewServer(ctrl, store)

	r := mux.NewRouter()
	r.HandleFunc("/api/status", server.StatusHandler)
	r.HandleFunc("/api/satellites", server.SatellitesHandler)
	r.HandleFunc("/api/rotators", server.RotatorsHandler)
	r.HandleFunc("/api/ws", server.StatusSocketHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(*staticDir)))

	srv := &http.Server{
		Handler:      r,
		Addr:         *addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Shutdown(context.Background())
	})
	g.Go(func() error {
		log.Printf("listening on %s", *addr)
		return srv.ListenAndServe()
	})
	err = g.Wait()

	// Persist any cycle or threshold adjustments made while running.
	if conf, ok := ctrl.Config(); ok && !*simulate {
		if err := store.Save(conf); err != nil {
			log.Printf("saving rotator configuration: %v", err)
		}
	}
	if err != nil && err != context.Canceled && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

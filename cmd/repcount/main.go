// Command repcount runs the repetition-counting engine as a host-side
// service: it serves the session-controller HTTP API, persists sessions
// to sqlite, and can replay a recorded frame log through the pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/courtvision/repcount/api"
	"github.com/courtvision/repcount/internal/rep"
	"github.com/courtvision/repcount/internal/replay"
	"github.com/courtvision/repcount/internal/session"
)

var (
	listen        = flag.String("listen", ":8080", "Listen address")
	dbFile        = flag.String("db", "sessions.db", "Session database path")
	configFile    = flag.String("config", "", "Tuning config JSON (defaults apply when empty)")
	migrationsDir = flag.String("migrations", "", "Run migrations from this directory before serving")
	mode          = flag.String("mode", "object", "Tracking mode: object, pose or hybrid")
	side          = flag.String("side", "auto", "Wrist side policy: auto, left or right")
	drill         = flag.String("drill", "dribble", "Default drill name for new sessions")
	replayFile    = flag.String("replay", "", "Replay a frame log through the pipeline and exit")
	plotFile      = flag.String("plot", "", "With -replay, write a trajectory PNG to this path")
)

func main() {
	flag.Parse()

	var tuning *rep.TuningConfig
	if *configFile != "" {
		var err error
		tuning, err = rep.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	pipe, err := rep.NewPipeline(rep.Config{
		Tuning: tuning,
		Mode:   rep.Mode(*mode),
		Side:   rep.SidePolicy(*side),
	})
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	if *replayFile != "" {
		if err := runReplay(pipe, *replayFile, *plotFile); err != nil {
			log.Fatalf("replay failed: %v", err)
		}
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	store, err := session.Open(*dbFile)
	if err != nil {
		log.Fatalf("failed to open session database: %v", err)
	}
	defer store.Close()

	if *migrationsDir != "" {
		if err := store.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
	}

	server := api.NewServer(pipe, store, *drill, *mode)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", server.ServeMux()))
		mux.Handle("/debug/", http.StripPrefix("/debug", server.DebugMux()))

		httpServer := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	log.Printf("graceful shutdown complete")
}

// runReplay feeds a recorded frame log through the pipeline and prints
// the resulting count.
func runReplay(pipe *rep.Pipeline, logPath, plotPath string) error {
	f, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("open frame log: %w", err)
	}
	defer f.Close()

	var samples []rep.Sample
	var repTimes []time.Time
	pipe.OnSample(func(s rep.Sample) { samples = append(samples, s) })
	pipe.OnRep(func(count int, at time.Time) { repTimes = append(repTimes, at) })

	pipe.Start()
	frames, err := replay.Run(replay.NewReader(f), pipe)
	if err != nil {
		return err
	}
	pipe.Stop()

	fmt.Printf("replayed %d frames: %d reps\n", frames, pipe.Count())

	if plotPath != "" {
		if err := replay.PlotTrajectory(samples, repTimes, plotPath); err != nil {
			return err
		}
		fmt.Printf("trajectory written to %s\n", plotPath)
	}
	return nil
}

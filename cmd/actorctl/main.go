// Command actorctl runs a standalone actor runtime: it boots an Engine,
// exposes the wire protocol for cross-runtime messaging, and serves a
// websocket dashboard for watching engine occupancy.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nodeforge/actorcore/engine"
	"github.com/nodeforge/actorcore/rconfig"
	"github.com/nodeforge/actorcore/wire"
)

const (
	defaultWireAddr = ":7711"
	defaultHTTPPort = "8080"
)

func main() {
	cfg := rconfig.Default()
	fmt.Println("Configuration loaded (using defaults).")

	eng := engine.NewEngine()
	fmt.Println("Engine created.")

	wireAddr := os.Getenv("ACTORCTL_WIRE_ADDR")
	if wireAddr == "" {
		wireAddr = defaultWireAddr
	}
	endpoint := wire.NewEndpoint(eng, cfg.DialTimeout)
	addr, err := endpoint.Listen(wireAddr)
	if err != nil {
		fmt.Println("failed to start wire endpoint:", err)
		os.Exit(1)
	}
	fmt.Printf("Wire endpoint listening on %s\n", addr)

	dashboard := wire.NewDashboard(eng, cfg.DashboardTickPeriod)
	go dashboard.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/dashboard", dashboard.Handler())

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultHTTPPort
		fmt.Printf("PORT environment variable not set, defaulting to %s\n", port)
	}
	httpAddr := ":" + port

	httpServer := &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		fmt.Printf("Dashboard HTTP server starting on %s\n", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Println("dashboard server stopped:", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	dashboard.Stop()
	endpoint.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		fmt.Println("dashboard server shutdown:", err)
	}

	if err := eng.Shutdown(cfg.ShutdownTimeout); err != nil {
		fmt.Println("engine shutdown:", err)
	}
	fmt.Println("Shutdown complete.")
}

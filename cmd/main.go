package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lessonreel/lessonreel-backend/internal/app"
	"github.com/lessonreel/lessonreel-backend/internal/platform/envutil"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Start()

	port := envutil.GetEnv("PORT", "8080", a.Log)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: a.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("Server listening", "port", port)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Error("Server failed", "error", err)
			os.Exit(1)
		}
	case sig := <-stop:
		a.Log.Info("Shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.Log.Warn("Graceful shutdown failed", "error", err)
		}
	}
}

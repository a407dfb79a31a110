package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-uma-server/internal/config"
	"github.com/jrsteele09/go-uma-server/internal/logger"
	"github.com/jrsteele09/go-uma-server/server"
	"github.com/rs/zerolog/log"
)

func main() {
	c := config.New()
	logger.SetGlobal(logger.New(c.GetLogLevel(), c.GetEnv()))

	for {
		if err := run(c); err != nil {
			log.Error().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run(c config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname(c.GetAppName())

	ctx := context.Background()
	st, err := openStores(ctx, c)
	if err != nil {
		return fmt.Errorf("openStores: %w", err)
	}
	defer st.Close()

	repos, services, err := buildServices(c, st)
	if err != nil {
		return fmt.Errorf("buildServices: %w", err)
	}
	handler, err := server.New(ctx, c, repos, services)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}
	displaySeededCredentials(handler.SeededCredentials())

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

// displaySeededCredentials prints generated bootstrap secrets to the
// terminal only, never to the log stream.
func displaySeededCredentials(seeded server.SeededCredentials) {
	if seeded.IsEmpty() {
		return
	}
	fmt.Println("Bootstrap credentials (SAVE THESE - they will not be displayed again):")
	if seeded.ClientSecret != "" {
		fmt.Printf("   Client:         %s / %s\n", seeded.ClientID, seeded.ClientSecret)
	}
	if seeded.AdminPassword != "" {
		fmt.Printf("   Resource owner: %s / %s\n", seeded.AdminLogin, seeded.AdminPassword)
	}
	fmt.Println()
}

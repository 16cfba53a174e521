package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/vowsock"
	"github.com/luciancaetano/vowsock/internal/logging"
	"github.com/luciancaetano/vowsock/internal/projects"
	"github.com/luciancaetano/vowsock/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vowsockd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a TOML config file")
	adminAddr := flag.String("admin", ":3001", "address of the authorization endpoint")
	flag.Parse()

	cfg := ws.DefaultConfig()
	if *configPath != "" {
		loaded, err := ws.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	logger := logging.New("vowsockd", cfg.Log, os.Stderr)

	store := projects.NewMemoryStore(cfg.Projects...)
	sc, err := ws.NewConfig(cfg, store, ws.AllOrigins(), nil)
	if err != nil {
		return err
	}
	server := ws.New(sc)

	if err := registerHandlers(server, logger); err != nil {
		return err
	}
	for _, p := range cfg.Projects {
		watchProject(server, p, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start websocket server: %w", err)
	}

	admin := &http.Server{
		Addr:    *adminAddr,
		Handler: authorizeHandler(server, logger),
	}
	go func() {
		logger.Info().Str("addr", *adminAddr).Msg("authorization endpoint listening")
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("authorization endpoint failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := admin.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("authorization endpoint shutdown")
	}
	return server.Stop(shutdownCtx)
}

// registerHandlers binds the console topics the injected core reports on.
func registerHandlers(server vowsock.Server, logger zerolog.Logger) error {
	report := func(topic string, level zerolog.Level) vowsock.Handler {
		return func(conn vowsock.Conn, data json.RawMessage, res vowsock.Responder) {
			logger.WithLevel(level).
				Str("project", conn.Project().Name).
				Str("session", conn.ID()).
				Str("topic", topic).
				RawJSON("data", orNull(data)).
				Msg("client report")
			res.Resolve(nil)
		}
	}

	bindings := map[string]vowsock.Handler{
		vowsock.TopicLogger:     report(vowsock.TopicLogger, zerolog.InfoLevel),
		vowsock.TopicError:      report(vowsock.TopicError, zerolog.WarnLevel),
		vowsock.TopicClientInfo: report(vowsock.TopicClientInfo, zerolog.DebugLevel),
		vowsock.TopicModule:     report(vowsock.TopicModule, zerolog.DebugLevel),
	}
	for topic, handler := range bindings {
		if err := server.RegisterHandler(topic, handler); err != nil {
			return fmt.Errorf("failed to register %q handler: %w", topic, err)
		}
	}
	return nil
}

func orNull(data json.RawMessage) []byte {
	if len(data) == 0 {
		return []byte("null")
	}
	return data
}

func watchProject(server vowsock.Server, p vowsock.Project, logger zerolog.Logger) {
	server.Watch(p.ID, func(ev vowsock.WatchEvent) {
		e := logger.Info().Str("project", p.Name).Str("session", ev.SessionID)
		if ev.Client != nil {
			e = e.Int("sessions", len(ev.Client.Sessions))
		}
		e.Msg(string(ev.Type))
	})
}

// authorizeHandler accepts POST /authorize with the form values id and
// token. The query string of the request is kept, so ?t=1 selects cached
// delivery.
func authorizeHandler(server vowsock.Server, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id, token := r.FormValue("id"), r.FormValue("token")

		err := server.Authorize(r.Context(), id, token, r)
		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, vowsock.ErrEmptyToken):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, vowsock.ErrUnknownSession):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			logger.Warn().Err(err).Str("session", id).Msg("authorize failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return mux
}

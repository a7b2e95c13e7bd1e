// callflowd runs one side of a direct call as a standalone process: a
// signaling relay (internal/transport.Hub) plus a Call Flow Coordinator
// dialed into it under the configured user id. It exists to exercise
// the module end-to-end for local demos and manual testing; a real
// deployment would run the relay separately and only embed the
// coordinator.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/callflow/coordinator/internal/callflow"
	"github.com/callflow/coordinator/internal/callhistory"
	"github.com/callflow/coordinator/internal/config"
	"github.com/callflow/coordinator/internal/incoming"
	"github.com/callflow/coordinator/internal/media"
	"github.com/callflow/coordinator/internal/store"
	"github.com/callflow/coordinator/internal/timeout"
	"github.com/callflow/coordinator/internal/transport"
)

var (
	showHelp   = flag.Bool("h", false, "Show help")
	version    = flag.Bool("version", false, "Show version")
	cfgPathArg = flag.String("config", "callflowd.json", "Path to the configuration file")
	userID     = flag.String("user", "", "Local user id this process signs in as (required)")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("callflowd v%s\n", appVersion)
		return
	}
	if *showHelp {
		showUsage()
		return
	}
	if strings.TrimSpace(*userID) == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		showUsage()
		os.Exit(1)
	}

	if err := run(); err != nil {
		log.Fatalf("callflowd: %v", err)
	}
}

func run() error {
	cfgPath, err := filepath.Abs(*cfgPathArg)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	cfg, created, err := config.Ensure(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if created {
		log.Printf("CONFIG: wrote default configuration to %s", cfgPath)
	}

	watcher, err := config.Watch(cfgPath, cfg)
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer watcher.Close()

	var history *callhistory.Recorder
	if cfg.History.DBPath != "" {
		history, err = callhistory.Open(cfg.History.DBPath)
		if err != nil {
			return fmt.Errorf("open call history: %w", err)
		}
		defer history.Close()
	}

	printBanner(cfgPath, cfg, *userID)

	st := store.New()
	mediaAdapter := media.NewPionAdapter(nil)
	timeouts := timeout.NewService()

	coord := callflow.New(st, mediaAdapter, timeouts, history, callflow.Auth{UserID: *userID}, callflow.Config{
		InviteTTL:             cfg.Timeouts.InviteTTL(),
		ConnectTimeout:        cfg.Timeouts.ConnectTimeout(),
		ListenerRetryAttempts: cfg.Timeouts.ListenerRetryAttempts,
		ListenerRetryInterval: cfg.Timeouts.ListenerRetryInterval(),
	})
	if err := coord.Initialize(); err != nil {
		return fmt.Errorf("initialize coordinator: %w", err)
	}
	defer timeouts.CancelAll()

	watcher.OnChange(func(c config.Config) {
		log.Printf("CONFIG: timeouts now invite_ttl=%s connect_timeout=%s", c.Timeouts.InviteTTL(), c.Timeouts.ConnectTimeout())
		coord.UpdateConfig(callflow.Config{
			InviteTTL:             c.Timeouts.InviteTTL(),
			ConnectTimeout:        c.Timeouts.ConnectTimeout(),
			ListenerRetryAttempts: c.Timeouts.ListenerRetryAttempts,
			ListenerRetryInterval: c.Timeouts.ListenerRetryInterval(),
		})
	})

	facade := incoming.New(coord)

	hub := transport.NewHub()
	mux := http.NewServeMux()
	mux.Handle(cfg.Signaling.Path, hub)
	mux.HandleFunc("/incoming", incomingHandler(facade))

	server := &http.Server{Addr: cfg.Signaling.ListenAddr, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("callflowd: shutting down gracefully...")
		cancel()
	}()

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("SIGNALING: listening on %s%s", cfg.Signaling.ListenAddr, cfg.Signaling.Path)
		serverErr <- server.ListenAndServe()
	}()

	dialURL := fmt.Sprintf("ws://%s%s?user=%s", cfg.Signaling.ListenAddr, cfg.Signaling.Path, *userID)
	if err := coord.AttachWithRetry(func() (transport.Channel, error) {
		return transport.Dial(dialURL)
	}); err != nil {
		return fmt.Errorf("attach signaling channel: %w", err)
	}
	log.Printf("SIGNALING: %s connected to %s", *userID, dialURL)

	coord.On(callflow.NotifyInvitationUpdated, func(n callflow.Notification) {
		log.Printf("CALLFLOW: invitation updated: %+v", n.Data)
	})
	coord.On(callflow.NotifyCallUpdated, func(n callflow.Notification) {
		log.Printf("CALLFLOW: call updated: %+v", n.Data)
	})
	coord.On(callflow.NotifyCallEnded, func(n callflow.Notification) {
		log.Printf("CALLFLOW: call ended: %+v", n.Data)
	})

	<-ctx.Done()

	if call := coord.GetCurrentCall(); !call.IsZero() {
		if err := coord.EndCall("shutdown"); err != nil {
			log.Printf("CALLFLOW: end call on shutdown: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("SIGNALING: server shutdown: %v", err)
	}

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("signaling server: %w", err)
		}
	default:
	}
	return nil
}

// incomingHandler exposes the Incoming Invitation Facade over HTTP, for
// a push-notification delivery path that runs outside the signaling
// channel (§1's "invitations may be delivered out of band").
func incomingHandler(f *incoming.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		if err := f.DeliverIncomingInvitation(json.RawMessage(body)); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func showUsage() {
	fmt.Println("callflowd - call flow coordinator")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  callflowd -user <id> [-config <path>]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -user <id>      Local user id to sign in as (required)")
	fmt.Println("  -config <path>  Configuration file (default callflowd.json)")
	fmt.Println("  -h              Show this help message")
	fmt.Println("  -version        Show version information")
}

func printBanner(cfgPath string, cfg config.Config, user string) {
	fmt.Println("callflowd")
	fmt.Printf("Config file:  %s\n", cfgPath)
	fmt.Printf("User:         %s\n", user)
	fmt.Printf("Signaling:    ws://%s%s\n", cfg.Signaling.ListenAddr, cfg.Signaling.Path)
	if cfg.History.DBPath != "" {
		fmt.Printf("History DB:   %s\n", cfg.History.DBPath)
	}
	fmt.Println("Starting... (Press Ctrl+C to stop)")
	fmt.Println()
}

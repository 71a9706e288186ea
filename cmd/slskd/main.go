/*
Copyright 2026 The slskd Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command slskd is the daemon entrypoint: it loads the YAML config,
// wires every core collaborator together, serves the HTTP API, and
// drives the connection watchdog from the peer client's disconnect
// events. Grounded directly on camlistored's main: a config file flag,
// a listen-address override flag, SIGHUP for reconfiguration, and
// SIGINT/SIGTERM for a bounded graceful shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/slskd/slskd/api"
	"github.com/slskd/slskd/internal/config"
	"github.com/slskd/slskd/internal/logbuffer"
	"github.com/slskd/slskd/internal/ratelimit"
	"github.com/slskd/slskd/internal/relay"
	"github.com/slskd/slskd/internal/search"
	"github.com/slskd/slskd/internal/shareindex"
	"github.com/slskd/slskd/internal/slsk"
	"github.com/slskd/slskd/internal/state"
	"github.com/slskd/slskd/internal/tokencache"
	"github.com/slskd/slskd/internal/uploadqueue"
	"github.com/slskd/slskd/internal/waiter"
	"github.com/slskd/slskd/internal/watchdog"
)

const version = "0.1.0-dev"

var (
	flagConfigFile = flag.String("configfile", "slskd.yml", "path to the YAML configuration file")
	flagListen     = flag.String("listen", "", "host:port to serve the HTTP API on, overriding the config file")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig(*flagConfigFile)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logBuf := logbuffer.New(1000)
	logger := log.New(io.MultiWriter(os.Stderr, logBuf), "", log.LstdFlags)

	if err := run(cfg, *flagConfigFile, logger, logBuf); err != nil {
		logger.Fatalf("fatal: %v", err)
	}
}

func loadConfig(path string) (config.Options, error) {
	var cfg config.Options
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// userGroupService assigns every peer to the default upload group.
// Reconfiguring group membership per-user is left to a future
// reconfiguration hand-off (§4.C1) this process doesn't yet expose.
type userGroupService struct{}

func (userGroupService) GroupFor(username string) string { return uploadqueue.GroupDefault }

// noopPatcher backs the reload plane when there is no live peer-protocol
// client to patch (the noopPeerClient integration seam has nothing live
// to re-apply soulseek.* fields onto).
type noopPatcher struct{}

func (noopPatcher) ApplyPatch(patch map[string]any) (bool, error) { return false, nil }

func run(cfg config.Options, configPath string, logger *log.Logger, logBuf *logbuffer.Buffer) error {
	st := state.New(version)

	events := slsk.NewEventAdapter(256)
	peer := newNoopPeerClient(cfg.Soulseek.Username, events)

	dog := watchdog.New(peer, func(s watchdog.State) {
		st.SetConnectionState(s.String())
	})

	reload := config.NewReloadPlane(cfg, noopPatcher{}, st, logger)

	dbPath := filepath.Join(filepath.Dir(configPath), "searches.db")
	searchStore, err := search.OpenStore(dbPath)
	if err != nil {
		return fmt.Errorf("open search store: %w", err)
	}
	defer searchStore.Close()

	searches := search.NewLifecycle(searchStore, peer, search.Limits{
		MaxResponses: 200,
		MaxFiles:     5000,
		Timeout:      30 * time.Second,
	})

	shares := shareindex.New(shareindex.Options{
		MaxSearchResults: 200,
		MinQueryChars:    3,
	})
	if len(cfg.Shares.Directories) > 0 {
		err := shares.Fill("local", cfg.Shares.Directories, func() (shareindex.ShareRepository, error) {
			return scanLocalShares(cfg.Shares.Directories, cfg.Shares.FilterRegexes)
		})
		if err != nil {
			logger.Printf("share scan: %v", err)
		}
	}

	uploads := uploadqueue.NewScheduler(userGroupService{}, []uploadqueue.GroupSpec{
		{Name: uploadqueue.GroupPrivileged, Priority: 0, Slots: 10, Strategy: uploadqueue.FIFO},
		{Name: uploadqueue.GroupDefault, Priority: 1, Slots: 10, Strategy: uploadqueue.RoundRobin},
		{Name: uploadqueue.GroupLeechers, Priority: 2, Slots: 2, Strategy: uploadqueue.FIFO},
	}, 10)

	server := api.NewServer(version, logger)
	server.Startup = cfg
	server.State = st
	server.Reload = reload
	server.Watchdog = dog
	server.Searches = searches
	server.Uploads = uploads
	server.Shares = shares
	server.YAMLPath = configPath
	server.LogBuffer = logBuf
	server.Shutdown = func() {
		// Route through handleSignals so shutdown takes the same graceful
		// path as an operator's SIGTERM.
		if p, err := os.FindProcess(os.Getpid()); err == nil {
			p.Signal(syscall.SIGTERM)
		}
	}
	server.Restart = func() { dog.Restart() }

	searchLimiter := ratelimit.New(10, time.Minute)
	defer searchLimiter.Stop()
	server.SearchLimiter = searchLimiter

	var hub *relay.Hub
	var agent *relay.Agent
	switch cfg.Relay.Mode {
	case "controller":
		cache, err := tokencache.New()
		if err != nil {
			return fmt.Errorf("open token cache: %w", err)
		}
		defer cache.Close()

		tokens := relay.NewTokenStore(cache)
		secrets := staticAgentSecrets{name: cfg.Relay.AgentName, secret: cfg.Relay.Secret}
		w := waiter.New()

		var coordinator *relay.Coordinator
		hub = relay.NewHub(
			func(connID string, env relay.Envelope) { coordinator.HandleMessage(connID, env) },
			func(connID string) { coordinator.BeginHandshake(connID) },
			func(connID string) { coordinator.Unregister(connID) },
		)
		coordinator = relay.NewCoordinator(hub, tokens, secrets, w, validateRemoteShares, installRemoteShares(shares))
		server.Relay = coordinator

	case "agent":
		local, err := scanLocalShares(cfg.Shares.Directories, cfg.Shares.FilterRegexes)
		if err != nil {
			return fmt.Errorf("scan local shares for agent upload: %w", err)
		}
		sharesJSON, err := marshalShareManifest(local.Files())
		if err != nil {
			return fmt.Errorf("marshal share manifest: %w", err)
		}
		agent = relay.NewAgent(cfg.Relay.AgentName, cfg.Relay.Secret, cfg.Relay.HubAddress, local, httpPoster{client: http.DefaultClient}, sharesJSON, nil)
	}

	server.RegisterMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		dog.Start()
		<-gctx.Done()
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case ev := <-events.Events():
				handleEvent(logger, dog, ev)
			case <-gctx.Done():
				return nil
			}
		}
	})

	if agent != nil {
		agent.Start()
		defer agent.Stop()
	}

	mux := server.Handler()
	if hub != nil {
		realMux := http.NewServeMux()
		realMux.Handle("/", mux)
		realMux.HandleFunc("GET /relay/ws", relayHubHandler(hub))
		mux = realMux
	}

	addr := cfg.Web.ListenPort
	listenAddr := fmt.Sprintf(":%d", addr)
	if *flagListen != "" {
		listenAddr = *flagListen
	}

	httpServer := &http.Server{Addr: listenAddr, Handler: mux}

	g.Go(func() error {
		ln, err := net.Listen("tcp", listenAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", listenAddr, err)
		}
		logger.Printf("serving API on %s", listenAddr)
		err = httpServer.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return handleSignals(gctx, cancel, configPath, reload, logger, httpServer)
	})

	return g.Wait()
}

// handleEvent reacts to a normalised peer-client event: an unexpected
// disconnect restarts the watchdog, a fatal cause logs and parks the
// watchdog in Stopped without restarting it.
func handleEvent(logger *log.Logger, dog *watchdog.Watchdog, ev slsk.Event) {
	switch ev.Kind {
	case slsk.EventDisconnected:
		if ev.Cause.IsFatal() {
			logger.Printf("connection ended fatally for %s: %v", ev.Username, ev.Err)
			dog.Stop()
			return
		}
		if ev.Cause.ShouldReconnect() {
			logger.Printf("unexpected disconnect for %s, reconnecting: %v", ev.Username, ev.Err)
			dog.Restart()
		}
	case slsk.EventDiagnostic:
		logger.Printf("peer client: %s", ev.Message)
	}
}

// handleSignals blocks until SIGHUP, SIGINT, or SIGTERM. SIGHUP re-reads
// configPath and reconciles it through the reload plane; SIGINT/SIGTERM
// shut the HTTP server down with a bounded grace period before
// cancelling ctx.
func handleSignals(ctx context.Context, cancel context.CancelFunc, configPath string, reload *config.ReloadPlane, logger *log.Logger, httpServer *http.Server) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-c:
			switch sig {
			case syscall.SIGHUP:
				logger.Printf("SIGHUP: reloading %s", configPath)
				next, err := loadConfig(configPath)
				if err != nil {
					logger.Printf("reload: %v", err)
					continue
				}
				if err := reload.Reconcile(next); err != nil {
					logger.Printf("reload: %v", err)
				}
			case syscall.SIGINT, syscall.SIGTERM:
				logger.Printf("shutting down")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := httpServer.Shutdown(shutdownCtx)
				shutdownCancel()
				cancel()
				return err
			}
		}
	}
}

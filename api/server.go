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

// Package api implements §6.1's HTTP surface over the core components:
// application/options/server control, search CRUD, and the relay's two
// side-channel upload endpoints. It is a thin transport layer — every
// handler delegates to a collaborator in internal/ and maps its
// slskderrors.Kind onto a status code; no business logic lives here.
package api

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slskd/slskd/internal/config"
	"github.com/slskd/slskd/internal/logbuffer"
	"github.com/slskd/slskd/internal/ratelimit"
	"github.com/slskd/slskd/internal/relay"
	"github.com/slskd/slskd/internal/search"
	"github.com/slskd/slskd/internal/shareindex"
	"github.com/slskd/slskd/internal/state"
	"github.com/slskd/slskd/internal/uploadqueue"
	"github.com/slskd/slskd/internal/watchdog"
)

// Server wires §6.1's routes onto the core collaborators. Fields left
// nil disable the endpoints that would need them (useful for an
// agent-mode process, which runs no searches/shares/upload-queue
// surface).
type Server struct {
	Version string

	// Startup is the options snapshot the process was launched with,
	// served read-only by GET /options/startup regardless of subsequent
	// reloads.
	Startup config.Options

	State    *state.Store
	Reload   *config.ReloadPlane
	Watchdog *watchdog.Watchdog
	Searches *search.Lifecycle
	Uploads  *uploadqueue.Scheduler
	Shares   *shareindex.ShareIndex
	Relay    *relay.Coordinator
	LogBuffer *logbuffer.Buffer

	// SearchLimiter throttles POST /searches; requests block (rather than
	// reject) while the bucket is empty, the same bursty-then-sustained
	// admission behaviour a peer's own search rate is bound by. Nil
	// disables throttling.
	SearchLimiter *ratelimit.TokenBucket

	// YAMLPath is the on-disk config file GET/PUT /options/yaml reads and
	// writes (§6.4 "YAML config file (path known at startup)").
	YAMLPath string

	// Shutdown and Restart are the process-lifecycle hooks DELETE/PUT
	// /application invoke. cmd/slskd wires Shutdown to its graceful
	// process shutdown and Restart to a restart of the connection
	// watchdog; the process itself is not re-executed. Either may be left
	// nil, in which case the endpoint only flips state and returns.
	Shutdown func()
	Restart  func()

	Log *log.Logger

	registry *prometheus.Registry
}

// NewServer builds a Server and its Prometheus registry.
func NewServer(version string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		Version:  version,
		Log:      logger,
		registry: prometheus.NewRegistry(),
	}
}

// Handler builds the routed mux. Built fresh from the server's current
// fields, so routes reflect whichever collaborators have been wired in
// by the time it's called (after Reload.Current() has a Relay.Mode, for
// instance).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /application", s.handleGetApplication)
	mux.HandleFunc("DELETE /application", s.handleShutdown)
	mux.HandleFunc("PUT /application", s.handleRestart)
	mux.HandleFunc("POST /application/gc", s.handleGC)

	mux.HandleFunc("GET /options", s.handleGetOptions)
	mux.HandleFunc("GET /options/startup", s.handleGetOptionsStartup)
	mux.HandleFunc("GET /options/yaml", s.handleGetOptionsYAML)
	mux.HandleFunc("PUT /options/yaml", s.handlePutOptionsYAML)
	mux.HandleFunc("POST /options/yaml/validate", s.handleValidateOptionsYAML)

	mux.HandleFunc("PUT /server", s.handleStartServer)
	mux.HandleFunc("DELETE /server", s.handleStopServer)

	mux.HandleFunc("GET /searches", s.handleListSearches)
	mux.HandleFunc("POST /searches", s.handleCreateSearch)
	mux.HandleFunc("GET /searches/{id}", s.handleGetSearch)
	mux.HandleFunc("DELETE /searches/{id}", s.handleDeleteSearch)
	mux.HandleFunc("PUT /searches/{id}", s.handleCancelSearch)

	mux.HandleFunc("POST /network/shares/{token}", s.handleNetworkShares)
	mux.HandleFunc("POST /network/files/{id}", s.handleNetworkFiles)

	mux.HandleFunc("GET /logs", s.handleGetLogs)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return mux
}

// Registry exposes the Prometheus registry so callers (cmd/slskd) can
// register additional collectors before serving.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

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

package api

import "github.com/prometheus/client_golang/prometheus"

// RegisterMetrics installs the gauges GET /metrics serves, sourced live
// from whichever collaborators are wired into the server. Call once
// after all of Server's fields are set.
func (s *Server) RegisterMetrics() {
	s.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "slskd_upload_queue_length", Help: "Total queued (not yet started) uploads across all users."},
		func() float64 {
			if s.Uploads == nil {
				return 0
			}
			return float64(s.Uploads.QueueLength())
		},
	))

	s.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "slskd_connection_state", Help: "1 if the server connection is Connected, else 0."},
		func() float64 {
			if s.State == nil {
				return 0
			}
			if s.State.Snapshot().ConnectionState == "connected" {
				return 1
			}
			return 0
		},
	))

	s.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "slskd_pending_restart", Help: "1 if a configuration change is pending a restart."},
		func() float64 {
			if s.State == nil {
				return 0
			}
			if s.State.Snapshot().PendingRestart {
				return 1
			}
			return 0
		},
	))
}

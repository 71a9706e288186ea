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

// Package config implements §4.C5: the typed option tree, the lockstep
// differ that walks two snapshots, and the single-writer reload plane
// that reconciles a changed snapshot into the running process.
package config

// Options is the root of the YAML-tagged configuration tree (§6.1's
// GET/PUT /options family serializes this shape). The `slskd:"..."`
// struct tag carries the schema metadata the differ needs:
// "requires-restart" marks a field that can't be hot-applied.
type Options struct {
	Soulseek SoulseekOptions `yaml:"soulseek"`
	Shares   SharesOptions   `yaml:"shares"`
	Web      WebOptions      `yaml:"web" slskd:"requires-restart"`
	Relay    RelayOptions    `yaml:"relay" slskd:"requires-restart"`
	Logging  LoggingOptions  `yaml:"logging"`
}

// SoulseekOptions is the subtree that maps onto the peer-protocol
// client's own configuration. Every field here is also
// soulseek-scoped (§4.C5 step 1's "soulseek.*" flag), since the whole
// subtree is what gets patched into the peer client on a hot reload.
type SoulseekOptions struct {
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	ListenPort     int    `yaml:"listenPort" slskd:"requires-restart"`
	DistributedNet bool   `yaml:"distributedNetwork"`
}

// SharesOptions configures local share directories and filters.
type SharesOptions struct {
	Directories   []string `yaml:"directories" slskd:"requires-restart"`
	FilterRegexes []string `yaml:"filters"`
}

// WebOptions configures the HTTP API listener (§6.1).
type WebOptions struct {
	ListenPort int    `yaml:"listenPort" slskd:"requires-restart"`
	BasePath   string `yaml:"basePath" slskd:"requires-restart"`
}

// RelayOptions configures this node's §4.C4 role.
type RelayOptions struct {
	Mode       string `yaml:"mode" slskd:"requires-restart"`
	AgentName  string `yaml:"agentName" slskd:"requires-restart"`
	Secret     string `yaml:"secret" slskd:"requires-restart"`
	HubAddress string `yaml:"hubAddress" slskd:"requires-restart"`
}

// LoggingOptions holds the logging section of the config file. Level is
// decoded and diffed like any other field; the daemon's stdlib logger does
// not read it.
type LoggingOptions struct {
	Level string `yaml:"level"`
}

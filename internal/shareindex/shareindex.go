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

// Package shareindex implements the ShareIndex of §4.L4: an associative
// store of host -> ShareRepository, searchable with the §6.3 term
// language. The local host's repository comes from a filesystem scan; a
// remote host's repository is reconstituted from a file an agent upload
// supplied (§4.C4) — both are opaque ShareRepository implementations per
// spec.md's "treated as an opaque ShareRepository" non-goal.
package shareindex

import (
	"sort"
	"strings"
	"sync"

	"github.com/slskd/slskd/internal/slskderrors"
)

// LocalHostName is the reserved name of the process's own shares.
const LocalHostName = "local"

// DefaultMinQueryChars is §4.L4's default minimum query length.
const DefaultMinQueryChars = 3

// ShareRepository is the opaque content store behind one Host. Real
// implementations scan a filesystem or deserialize an agent-supplied
// database file; both are out of this spec's scope (§1).
type ShareRepository interface {
	// Files returns every file the repository currently knows about.
	Files() []File
	// Resolve maps a virtual path understood by this repository to a
	// real, host-local path. ok is false if this repository does not
	// own virtualPath.
	Resolve(virtualPath string) (realPath string, ok bool)
}

// Host is a logical owner of a subtree of shared files (§3 "Host").
type Host struct {
	Name  string
	Roots []string
	Repo  ShareRepository
}

// Options configures search behaviour that isn't part of the core
// algorithm: the result cap, the minimum query length, and the bot
// username blacklist.
type Options struct {
	MaxSearchResults int
	MinQueryChars    int
	BotUsernames     map[string]bool
}

// ShareIndex is safe for concurrent use. Readers (Search, Resolve) take a
// cheap read lock on the host table per §5; host replacement takes the
// write lock.
type ShareIndex struct {
	opts Options

	mu    sync.RWMutex
	hosts map[string]*Host

	muScans sync.Mutex      // enforces §4.L4's "at most one fill in progress"
	scans   map[string]bool // hostName -> scan in flight

	muEvents sync.Mutex
	onChange []func(hostName string)
}

// New constructs an empty ShareIndex. A zero-value MinQueryChars in opts
// is replaced with DefaultMinQueryChars.
func New(opts Options) *ShareIndex {
	if opts.MinQueryChars <= 0 {
		opts.MinQueryChars = DefaultMinQueryChars
	}
	if opts.BotUsernames == nil {
		opts.BotUsernames = map[string]bool{}
	}
	return &ShareIndex{opts: opts, hosts: make(map[string]*Host), scans: make(map[string]bool)}
}

// OnChange registers a callback invoked (from the calling goroutine of
// AddOrUpdateHost/RemoveHost) whenever a host binding is refreshed.
func (si *ShareIndex) OnChange(fn func(hostName string)) {
	si.muEvents.Lock()
	defer si.muEvents.Unlock()
	si.onChange = append(si.onChange, fn)
}

func (si *ShareIndex) fireChange(hostName string) {
	si.muEvents.Lock()
	fns := append([]func(string){}, si.onChange...)
	si.muEvents.Unlock()
	for _, fn := range fns {
		fn(hostName)
	}
}

// AddOrUpdateHost atomically replaces any previous binding for name and
// emits a refreshed event.
func (si *ShareIndex) AddOrUpdateHost(name string, roots []string, repo ShareRepository) {
	si.mu.Lock()
	si.hosts[name] = &Host{Name: name, Roots: roots, Repo: repo}
	si.mu.Unlock()
	si.fireChange(name)
}

// RemoveHost drops name from the index, if present.
func (si *ShareIndex) RemoveHost(name string) {
	si.mu.Lock()
	_, existed := si.hosts[name]
	delete(si.hosts, name)
	si.mu.Unlock()
	if existed {
		si.fireChange(name)
	}
}

// Host returns the registered Host for name, if any.
func (si *ShareIndex) Host(name string) (*Host, bool) {
	si.mu.RLock()
	defer si.mu.RUnlock()
	h, ok := si.hosts[name]
	return h, ok
}

// HostNames returns every registered host name, local host included.
func (si *ShareIndex) HostNames() []string {
	si.mu.RLock()
	defer si.mu.RUnlock()
	names := make([]string, 0, len(si.hosts))
	for n := range si.hosts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve parses filename as a virtual path and returns the owning host
// and real path, failing with slskderrors.KindNotFound if no host claims
// the prefix.
func (si *ShareIndex) Resolve(filename string) (*Host, string, error) {
	si.mu.RLock()
	hosts := make([]*Host, 0, len(si.hosts))
	for _, h := range si.hosts {
		hosts = append(hosts, h)
	}
	si.mu.RUnlock()

	// Stable order so Resolve is deterministic when (pathologically)
	// more than one repository would otherwise claim the same path.
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Name < hosts[j].Name })

	for _, h := range hosts {
		if real, ok := h.Repo.Resolve(filename); ok {
			return h, real, nil
		}
	}
	return nil, "", slskderrors.Wrap("shareindex.resolve", slskderrors.KindNotFound, nil)
}

// Search applies the §6.3 term semantics (ignoring the out-of-band
// numeric/boolean modifiers, which only apply client-side) across every
// registered host, returning at most MaxSearchResults files with a stable
// host-name tiebreaker. Empty queries, queries shorter than MinQueryChars,
// and queries from a blacklisted username return nothing.
func (si *ShareIndex) Search(query, username string) []File {
	if si.opts.BotUsernames[username] {
		return nil
	}
	trimmed := strings.TrimSpace(query)
	if len(trimmed) < si.opts.MinQueryChars {
		return nil
	}
	filter := ParseFilter(trimmed)
	if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
		return nil
	}

	si.mu.RLock()
	names := make([]string, 0, len(si.hosts))
	for n := range si.hosts {
		names = append(names, n)
	}
	hostsByName := make(map[string]*Host, len(si.hosts))
	for k, v := range si.hosts {
		hostsByName[k] = v
	}
	si.mu.RUnlock()
	sort.Strings(names)

	var results []File
	for _, name := range names {
		h := hostsByName[name]
		for _, f := range h.Repo.Files() {
			if filter.TermsOnly(f) {
				results = append(results, f)
				if si.opts.MaxSearchResults > 0 && len(results) >= si.opts.MaxSearchResults {
					return results
				}
			}
		}
	}
	return results
}

// Fill runs scan (expected to build and return a ShareRepository) for
// hostName, installing the result via AddOrUpdateHost on success. At most
// one Fill per hostName may run at a time; a concurrent attempt fails
// with slskderrors.KindScanAlreadyInProgress rather than blocking, per
// §4.L4's refresh policy ("single-writer").
func (si *ShareIndex) Fill(hostName string, roots []string, scan func() (ShareRepository, error)) error {
	si.muScans.Lock()
	if si.scans[hostName] {
		si.muScans.Unlock()
		return slskderrors.Wrap("shareindex.fill", slskderrors.KindScanAlreadyInProgress, nil)
	}
	si.scans[hostName] = true
	si.muScans.Unlock()

	defer func() {
		si.muScans.Lock()
		delete(si.scans, hostName)
		si.muScans.Unlock()
	}()

	repo, err := scan()
	if err != nil {
		return slskderrors.Wrap("shareindex.fill", slskderrors.KindShareValidation, err)
	}
	si.AddOrUpdateHost(hostName, roots, repo)
	return nil
}

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

package main

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/slskd/slskd/internal/shareindex"
)

// localRepository is the filesystem-backed shareindex.ShareRepository
// for this process's own shares, the concrete type a Fill scan of the
// configured directories builds. Agent-uploaded repositories over the
// relay are a separate, opaque ShareRepository the relay package builds
// from an agent's uploaded database instead of walking a filesystem.
type localRepository struct {
	mu    sync.RWMutex
	files []shareindex.File
	paths map[string]string // virtual path -> real path
}

// scanLocalShares walks roots, skipping any file whose name matches one
// of the filter regexes, and builds the virtual-path-keyed repository
// Fill installs.
func scanLocalShares(roots []string, filters []string) (*localRepository, error) {
	compiled := make([]*regexp.Regexp, 0, len(filters))
	for _, f := range filters {
		re, err := regexp.Compile(f)
		if err != nil {
			continue
		}
		compiled = append(compiled, re)
	}

	repo := &localRepository{paths: make(map[string]string)}
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				return nil
			}
			name := d.Name()
			for _, re := range compiled {
				if re.MatchString(name) {
					return nil
				}
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			virtual := toVirtualPath(root, path)
			repo.files = append(repo.files, shareindex.File{
				Path: virtual,
				Size: info.Size(),
			})
			repo.paths[virtual] = path
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return repo, nil
}

// toVirtualPath renders a real path under root into the "\\host\share\..."
// style the wire protocol and shareindex.File.Path both expect.
func toVirtualPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return "\\\\" + strings.ReplaceAll(filepath.Join(filepath.Base(root), rel), string(filepath.Separator), "\\")
}

func (r *localRepository) Files() []shareindex.File {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.files
}

func (r *localRepository) Resolve(virtualPath string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	real, ok := r.paths[virtualPath]
	return real, ok
}

// Open satisfies relay.FileProvider for agent mode, serving the same
// local tree an agent uploads a share listing for.
func (r *localRepository) Open(filename string) (io.ReadCloser, int64, error) {
	real, ok := r.Resolve(filename)
	if !ok {
		return nil, 0, os.ErrNotExist
	}
	f, err := os.Open(real)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (r *localRepository) Stat(filename string) (bool, int64) {
	real, ok := r.Resolve(filename)
	if !ok {
		return false, 0
	}
	info, err := os.Stat(real)
	if err != nil {
		return false, 0
	}
	return true, info.Size()
}

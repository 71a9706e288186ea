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

package search

import "github.com/slskd/slskd/internal/shareindex"

// UploadStats is the narrow slice of uploadqueue.Scheduler the resolver
// needs to fill in a response's slot/queue accounting (§4.C2 step 3).
type UploadStats interface {
	HasFreeNonLeecherSlot() bool
	QueueLength() int
}

// Response is what the resolver hands back to the transport layer for
// relay to the requesting peer. A nil Response means "send nothing" —
// slskd, like the reference client, never replies to a search with zero
// matches (§4.C2 invariant).
type Response struct {
	Username        string
	Token           int32
	FreeUploadSlots int
	UploadSpeed     int64
	QueueLength     int
	Files           []shareindex.File
}

// UploadSpeedFunc reports the measured upload speed to advertise in
// responses, in bytes/sec. Threaded in as a func rather than an
// interface since it is the only value the resolver needs from whatever
// component tracks transfer throughput.
type UploadSpeedFunc func() int64

// Resolver answers incoming search requests synchronously out of a
// shareindex.ShareIndex, the §4.C2 "SearchResolver" role.
type Resolver struct {
	Index               *shareindex.ShareIndex
	Uploads             UploadStats
	UploadSpeed         UploadSpeedFunc
	Username            string
	MaxFilesPerResponse int
}

// Resolve runs query against the index on behalf of peerUsername and
// returns the response to send back, or nil if there is nothing to send.
func (r *Resolver) Resolve(query string, peerUsername string, token int32) *Response {
	files := r.Index.Search(query, peerUsername)
	if len(files) == 0 {
		return nil
	}

	if max := r.MaxFilesPerResponse; max > 0 && len(files) > max {
		files = files[:max]
	}

	var speed int64
	if r.UploadSpeed != nil {
		speed = r.UploadSpeed()
	}

	var freeSlot bool
	var queueLen int
	if r.Uploads != nil {
		freeSlot = r.Uploads.HasFreeNonLeecherSlot()
		queueLen = r.Uploads.QueueLength()
	}

	freeSlots := 0
	if freeSlot {
		freeSlots = 1
	}

	return &Response{
		Username:        r.Username,
		Token:           token,
		FreeUploadSlots: freeSlots,
		UploadSpeed:     speed,
		QueueLength:     queueLen,
		Files:           files,
	}
}

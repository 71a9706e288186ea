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

// Package slskderrors defines the transport-neutral error kinds shared by
// every core component (§7 of the design spec). Handlers in api/ map these
// onto HTTP status codes; nothing in internal/ imports net/http.
package slskderrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way §7 enumerates them. Callers should use
// errors.Is against the sentinel Err* values below rather than comparing
// Kind directly, since a wrapped error may carry additional context.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindUnauthorized
	KindConflict
	KindValidationFailed
	KindTimeout
	KindCancelled
	KindRemoteAgent
	KindScanAlreadyInProgress
	KindShareValidation
	KindPeerProtocol
	KindKicked
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindValidationFailed:
		return "validation_failed"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindRemoteAgent:
		return "remote_agent"
	case KindScanAlreadyInProgress:
		return "scan_already_in_progress"
	case KindShareValidation:
		return "share_validation"
	case KindPeerProtocol:
		return "peer_protocol"
	case KindKicked:
		return "kicked"
	default:
		return "unknown"
	}
}

// Sentinel errors for errors.Is comparisons. Op-specific context should be
// attached with Wrap rather than by defining more sentinels.
var (
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrConflict              = errors.New("conflict")
	ErrValidationFailed      = errors.New("validation failed")
	ErrTimeout               = errors.New("timeout")
	ErrCancelled             = errors.New("cancelled")
	ErrRemoteAgent           = errors.New("remote agent error")
	ErrScanAlreadyInProgress = errors.New("scan already in progress")
	ErrShareValidation       = errors.New("share validation failed")
	ErrPeerProtocol          = errors.New("peer protocol error")
	ErrKicked                = errors.New("kicked from server")
)

var kindSentinel = map[Kind]error{
	KindNotFound:              ErrNotFound,
	KindUnauthorized:          ErrUnauthorized,
	KindConflict:              ErrConflict,
	KindValidationFailed:      ErrValidationFailed,
	KindTimeout:               ErrTimeout,
	KindCancelled:             ErrCancelled,
	KindRemoteAgent:           ErrRemoteAgent,
	KindScanAlreadyInProgress: ErrScanAlreadyInProgress,
	KindShareValidation:       ErrShareValidation,
	KindPeerProtocol:          ErrPeerProtocol,
	KindKicked:                ErrKicked,
}

// Error wraps an underlying cause with an operation name and a Kind, the
// way the teacher wraps storage errors with fmt.Errorf("op: %v", err) but
// keeping the Kind machine-readable for API translation.
type Error struct {
	Op   string // e.g. "uploadqueue.enqueue"
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	sentinel := kindSentinel[e.Kind]
	if e.Err == nil || e.Err == sentinel {
		return fmt.Sprintf("%s: %s", e.Op, sentinel)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, sentinel, e.Err)
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return kindSentinel[e.Kind]
}

// Is reports whether target is the sentinel for e's Kind, so errors.Is
// matches an *Error against its Kind's Err* value even when Err holds a
// different cause.
func (e *Error) Is(target error) bool {
	return target != nil && target == kindSentinel[e.Kind]
}

// Wrap builds an *Error for op/kind, optionally wrapping cause. cause may
// be nil, in which case the Kind's sentinel becomes the reported cause.
func Wrap(op string, kind Kind, cause error) error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return errors.Is(err, kindSentinel[kind])
}

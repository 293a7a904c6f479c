// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

// Package resolver drives contact resolution for recipients without
// blocking its caller. Submitted recipients are looked up in the
// directory; synchronous cache hits resolve inline, misses enter a
// pending set keyed by address pair until the directory's callback
// arrives. Each burst of submissions is one resolving episode ending
// in exactly one finished notification, delivered asynchronously on
// the task loop even when every lookup hit the cache.
//
// All methods except construction must be called from tasks on the
// configured loop; the directory delivers its callbacks there too, so
// no state needs locking.
package resolver

import (
	"log/slog"

	"github.com/commtrail/commtrail/lib/directory"
	"github.com/commtrail/commtrail/lib/phone"
	"github.com/commtrail/commtrail/lib/recipient"
	"github.com/commtrail/commtrail/lib/runloop"
)

// Config carries the resolver's collaborators.
type Config struct {
	// Directory performs the contact lookups. Required.
	Directory directory.Directory

	// Loop is the task loop everything runs on. Required.
	Loop *runloop.Loop

	// Logger receives malformed-callback warnings. Defaults to a
	// discard logger.
	Logger *slog.Logger

	// OnFinished is invoked once per resolving episode, on the loop,
	// after the pending set empties. Optional.
	OnFinished func()
}

// Resolver owns the pending set of in-flight lookups.
type Resolver struct {
	directory  directory.Directory
	loop       *runloop.Loop
	logger     *slog.Logger
	onFinished func()

	pending   map[recipient.Pair]*recipient.Recipient
	resolving bool
	force     bool
	closed    bool
}

// New creates a resolver. The resolver registers itself as the
// directory's resolve listener lazily, on the first lookup that
// misses the cache.
func New(cfg Config) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		directory:  cfg.Directory,
		loop:       cfg.Loop,
		logger:     logger,
		onFinished: cfg.OnFinished,
		pending:    make(map[recipient.Pair]*recipient.Recipient),
	}
}

// IsResolving reports whether a resolving episode is in progress. It
// stays true from the first submission until the deferred finished
// notification has fired.
func (res *Resolver) IsResolving() bool { return res.resolving }

// ForceResolving reports whether already-resolved recipients are
// looked up again on submission.
func (res *Resolver) ForceResolving() bool { return res.force }

// SetForceResolving controls whether already-resolved recipients are
// looked up again on submission. Used after directory-wide changes
// invalidate previous outcomes.
func (res *Resolver) SetForceResolving(enabled bool) { res.force = enabled }

// Submit requests resolution of the given recipients and schedules a
// single finished-check for the whole batch. Recipients that are
// already resolved, already pending, or structurally unresolvable
// (empty UID) cost nothing; the rest hit the directory, resolving
// inline on a cache hit or entering the pending set otherwise.
func (res *Resolver) Submit(recipients ...*recipient.Recipient) {
	if res.closed {
		return
	}
	for _, r := range recipients {
		res.resolve(r)
	}
	res.checkFinishedDeferred()
}

// resolve performs the per-recipient submission step.
func (res *Resolver) resolve(r *recipient.Recipient) {
	if !res.force && r.IsResolved() {
		return
	}

	if r.LocalUID() == "" || r.RemoteUID() == "" {
		// Cannot match any contact; the caller violated the address
		// contract. Absorbed: forward progress matters more here than
		// strict validation.
		res.logger.Debug("recipient with empty uid resolved to nothing",
			"local_uid", r.LocalUID(),
			"remote_uid", r.RemoteUID(),
		)
		r.SetResolved(nil)
		return
	}

	if _, inFlight := res.pending[r.Pair()]; inFlight {
		return
	}

	var item *directory.Item
	if r.IsPhoneNumber() {
		item = res.directory.ResolvePhone(res, r.RemoteUID())
	} else {
		item = res.directory.ResolveAccount(res, r.LocalUID(), r.RemoteUID())
	}

	if item != nil {
		r.SetResolved(item)
	} else {
		res.pending[r.Pair()] = r
	}
}

// checkFinishedDeferred begins a resolving episode if none is in
// progress. When the pending set is already empty the finished check
// is still deferred to the next loop turn, so a caller that submits
// and synchronously asks IsResolving observes true and then receives
// the terminal notification.
func (res *Resolver) checkFinishedDeferred() {
	if res.resolving {
		return
	}
	res.resolving = true
	if len(res.pending) == 0 {
		res.loop.Post(func() { res.checkFinished() })
	}
}

// checkFinished ends the episode when nothing is pending. Safe to
// call redundantly; only one caller observes the transition.
func (res *Resolver) checkFinished() {
	if !res.resolving || len(res.pending) != 0 {
		return
	}
	res.resolving = false
	if res.onFinished != nil {
		res.onFinished()
	}
}

// AddressResolved implements [directory.ResolveListener]. The
// directory invokes it on the loop when an asynchronous lookup
// completes.
//
// An empty localUID marks a phone resolution: the directory matched
// by minimized key and the one callback answers every pending
// spelling of that line, each of which is given its own best-match
// lookup. A present localUID is an exact pair resolution. A callback
// for a pair no longer pending is ignored.
func (res *Resolver) AddressResolved(localUID, remoteUID string, item *directory.Item) {
	if res.closed {
		return
	}

	if remoteUID == "" {
		res.logger.Warn("address resolved callback with empty remote uid",
			"local_uid", localUID,
		)
		return
	}

	if localUID == "" {
		details := phone.NewMatchDetails(remoteUID)

		// Snapshot the matches before mutating the pending set; the
		// per-entry best-match lookups must not race the sweep.
		var matched []*recipient.Recipient
		for _, pending := range res.pending {
			if pending.MatchesPhoneNumber(details) {
				matched = append(matched, pending)
			}
		}
		for _, r := range matched {
			r.SetResolved(res.directory.CachedByPhone(r.RemoteUID()))
			delete(res.pending, r.Pair())
		}
	} else {
		key := recipient.Pair{LocalUID: localUID, RemoteUID: remoteUID}
		if r, inFlight := res.pending[key]; inFlight {
			r.SetResolved(item)
			delete(res.pending, key)
		}
	}

	res.checkFinished()
}

// PendingCount returns the number of in-flight lookups.
func (res *Resolver) PendingCount() int { return len(res.pending) }

// Close unregisters the resolver from the directory's callback
// registry and drops all pending state. No callback or finished
// notification is delivered afterwards. Idempotent.
func (res *Resolver) Close() {
	if res.closed {
		return
	}
	res.closed = true
	res.directory.Unregister(res)
	res.pending = make(map[recipient.Pair]*recipient.Recipient)
	res.resolving = false
}

// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

// Package recency maintains a bounded, contact-deduplicated view of
// the most recent conversation per correspondent.
//
// A List consumes recency-descending batches of events, resolves
// their recipients through a resolver.Resolver, and keeps at most one
// entry per resolved contact, newest first. Every change is reported
// to the configured Observer as a single Diff: removals as descending
// index ranges, then one insertion block at the head. Applying the
// diff verbatim keeps an external copy in step without re-sorting.
//
// The List never re-orders by timestamp. Batches are trusted to be
// recency-descending and newer batches always insert ahead of older
// entries, so feeding batches out of order produces a list that is
// merely insertion-ordered.
//
// All methods other than New must run on the runloop.Loop given at
// construction, or before the loop starts serving tasks.
package recency

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/commtrail/commtrail/lib/directory"
	"github.com/commtrail/commtrail/lib/event"
	"github.com/commtrail/commtrail/lib/recipient"
	"github.com/commtrail/commtrail/lib/resolver"
	"github.com/commtrail/commtrail/lib/runloop"
)

// Source supplies the initial candidate batch, recency-descending and
// already deduplicated per (localUID, remoteUID) pair by the query.
type Source interface {
	RecentCandidates(ctx context.Context, categories event.Category, limit int) ([]event.Event, error)
}

// Observer receives list transitions. Both methods run on the loop;
// they must not mutate the List reentrantly.
type Observer interface {
	// ApplyDiff reports one transition. The List already reflects
	// the post-diff state when this runs.
	ApplyDiff(diff Diff)
	// ResolvingChanged reports transitions of Resolving.
	ResolvingChanged(resolving bool)
}

// UpdateObserver is an optional extension of Observer for in-place
// entry refreshes that change no positions.
type UpdateObserver interface {
	EntryUpdated(index int, e event.Event)
}

// Config carries the construction parameters for a List.
type Config struct {
	// Limit bounds the list length. 0 means unbounded.
	Limit int

	// Categories filters ingested events. CategoryAny accepts all.
	Categories event.Category

	// RequiredFlags, when nonzero, drops events whose resolved
	// recipient has none of these address capabilities.
	RequiredFlags directory.AddressFlags

	// ExcludeFavorites drops events whose contact is currently a
	// favorite in the directory.
	ExcludeFavorites bool

	// Directory answers resolution and favorite queries. Required.
	Directory directory.Directory

	// Loop serializes all list and resolver state. Required.
	Loop *runloop.Loop

	// Registry interns recipients. A private registry is created
	// when nil.
	Registry *recipient.Registry

	// Source supplies Fill. Optional for lists fed purely through
	// EventsAdded.
	Source Source

	// Observer receives diffs and resolving transitions. Optional.
	Observer Observer

	Logger *slog.Logger
}

// List is the recency merger. It is not safe for concurrent use; see
// the package comment for the threading contract.
type List struct {
	limit            int
	categories       event.Category
	requiredFlags    directory.AddressFlags
	excludeFavorites bool

	directory directory.Directory
	registry  *recipient.Registry
	source    Source
	observer  Observer
	update    UpdateObserver
	logger    *slog.Logger
	resolver  *resolver.Resolver

	rows []event.Event

	// Ingestion state carried across resolver re-entries until the
	// next flush.
	unresolved []event.Event
	accepted   []event.Event
	claimed    map[int]struct{}

	// inFlight holds the event whose recipient sits at the resolver.
	inFlight []event.Event

	lastResolving bool
}

// New builds a List and its private resolver. Callable from any
// goroutine; everything after construction belongs to cfg.Loop.
func New(cfg Config) *List {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	registry := cfg.Registry
	if registry == nil {
		registry = recipient.NewRegistry()
	}
	l := &List{
		limit:            cfg.Limit,
		categories:       cfg.Categories,
		requiredFlags:    cfg.RequiredFlags,
		excludeFavorites: cfg.ExcludeFavorites,
		directory:        cfg.Directory,
		registry:         registry,
		source:           cfg.Source,
		observer:         cfg.Observer,
		logger:           logger,
		claimed:          make(map[int]struct{}),
	}
	if u, ok := cfg.Observer.(UpdateObserver); ok {
		l.update = u
	}
	l.resolver = resolver.New(resolver.Config{
		Directory:  cfg.Directory,
		Loop:       cfg.Loop,
		Logger:     logger,
		OnFinished: l.resolverFinished,
	})
	return l
}

// Resolver exposes the list's resolver for force-resolve control.
func (l *List) Resolver() *resolver.Resolver { return l.resolver }

// Registry returns the recipient registry events are attached
// through.
func (l *List) Registry() *recipient.Registry { return l.registry }

// Len returns the number of materialized entries.
func (l *List) Len() int { return len(l.rows) }

// Entries returns a copy of the materialized list, newest first.
func (l *List) Entries() []event.Event { return slices.Clone(l.rows) }

// Resolving reports whether any ingested event is still waiting on
// recipient resolution.
func (l *List) Resolving() bool {
	return l.resolver.IsResolving() || len(l.unresolved) > 0 || len(l.inFlight) > 0
}

// Close releases the resolver's directory registration. Queued
// unresolved events are dropped.
func (l *List) Close() {
	l.resolver.Close()
	l.unresolved = nil
	l.inFlight = nil
}

// Fill populates the list from the configured source. The query runs
// on the calling goroutine; recipients typically resolve over later
// loop turns, so the list keeps filling after Fill returns until
// Resolving goes false.
func (l *List) Fill(ctx context.Context) error {
	if l.source == nil {
		return fmt.Errorf("recency: no event source configured")
	}
	candidates, err := l.source.RecentCandidates(ctx, l.categories, l.limit)
	if err != nil {
		return fmt.Errorf("recency fill: %w", err)
	}
	event.AttachAll(candidates, l.registry)
	l.ingest(candidates)
	l.signalResolving()
	return nil
}

// EventsAdded ingests a batch of new events, recency-descending
// within the batch and assumed newer than everything materialized.
func (l *List) EventsAdded(events []event.Event) {
	event.AttachAll(events, l.registry)
	l.ingest(events)
	l.signalResolving()
}

// EventsUpdated refreshes materialized entries in place. An update
// whose event is not materialized is ignored; an update that left
// the list's categories or no longer resolves to a contact removes
// its row.
func (l *List) EventsUpdated(events []event.Event) {
	event.AttachAll(events, l.registry)
	for _, e := range events {
		row := l.indexOf(e.ID)
		if row < 0 {
			continue
		}
		if !e.Category().Matches(l.categories) || e.ContactID() == 0 {
			l.removeRows([]int{row})
			continue
		}
		l.rows[row] = e
		if l.update != nil {
			l.update.EntryUpdated(row, e)
		}
	}
}

// EventDeleted drops the materialized entry with the given id, if
// any. The vacated slot is not backfilled from the store; the next
// event for that contact reintroduces it.
func (l *List) EventDeleted(id int64) {
	if row := l.indexOf(id); row >= 0 {
		l.removeRows([]int{row})
	}
}

// ContactInfoChanged reacts to address changes on the given
// recipients: entries whose contact no longer satisfies the required
// address capabilities are dropped, then favorite status is
// re-checked when favorites are excluded.
func (l *List) ContactInfoChanged(changed []*recipient.Recipient) {
	if l.requiredFlags != 0 {
		drop := make(map[int]struct{})
		for _, r := range changed {
			if r == nil || r.ContactID() == 0 {
				continue
			}
			if !r.MatchesAddressFlags(l.requiredFlags) {
				drop[r.ContactID()] = struct{}{}
			}
		}
		l.removeContacts(drop)
	}
	if l.excludeFavorites {
		l.removeFavorites(changed)
	}
}

// ContactDetailsChanged reacts to contact detail edits, which only
// matter here for favorite status.
func (l *List) ContactDetailsChanged(changed []*recipient.Recipient) {
	if l.excludeFavorites {
		l.removeFavorites(changed)
	}
}

// ContactChanged sweeps out entries whose recipient no longer
// resolves to any contact. The directory updates the shared recipient
// instances before this runs.
func (l *List) ContactChanged() {
	var stale []int
	for row := range l.rows {
		if l.rows[row].ContactID() == 0 {
			stale = append(stale, row)
		}
	}
	l.removeRows(stale)
}

// ingest runs one merge pass. The category filter drops events
// outside the mask; events with unresolved recipients queue for
// resolution; resolved events run acceptance in input order. At most
// one queued event is at the resolver at a time, so a pass ends by
// submitting the next queued event, by deferring to a cycle already
// in flight, or by flushing the accepted set into the list.
func (l *List) ingest(events []event.Event) {
	for _, e := range events {
		if !e.Category().Matches(l.categories) {
			continue
		}
		if e.Recipient == nil || !e.Recipient.IsResolved() {
			l.unresolved = append(l.unresolved, e)
			continue
		}
		contactID := e.ContactID()
		if contactID == 0 {
			continue
		}
		if _, ok := l.claimed[contactID]; ok {
			continue
		}
		if l.excludeFavorites && l.directory.IsFavorite(contactID) {
			continue
		}
		if !e.Recipient.MatchesAddressFlags(l.requiredFlags) {
			continue
		}
		l.claimed[contactID] = struct{}{}
		l.accepted = append(l.accepted, e)
		if l.limit > 0 && len(l.accepted) == l.limit {
			break
		}
	}

	if len(l.inFlight) > 0 {
		// A resolution cycle is already running. Everything this
		// pass collected stays accumulated; the cycle's finished
		// notification re-enters here and continues the queue.
		return
	}

	if len(l.unresolved) > 0 {
		if l.limit == 0 || len(l.accepted) < l.limit {
			next := l.unresolved[0]
			l.unresolved = slices.Delete(l.unresolved, 0, 1)
			l.beginResolve(next)
			return
		}
		// The accepted set alone fills the limit, so the queued
		// events can never be shown. Their filter outcomes are
		// unknowable without resolving them; dropping here is a
		// best-effort shortcut, not a guarantee they would have
		// been rejected.
		l.unresolved = nil
	}

	if len(l.accepted) > 0 {
		l.flush()
	}
}

func (l *List) beginResolve(e event.Event) {
	l.inFlight = append(l.inFlight, e)
	l.resolver.Submit(e.Recipient)
}

// resolverFinished re-enters ingestion with the event whose
// resolution episode just ended. Runs on the loop via the resolver's
// deferred finished notification.
func (l *List) resolverFinished() {
	batch := l.inFlight
	l.inFlight = nil
	l.ingest(batch)
	l.signalResolving()
}

// flush merges the accepted set into the list: entries superseded by
// a claimed contact go first, then tail entries not already marked
// until the limit holds, all reported as one diff with the accepted
// events inserted at the head.
func (l *List) flush() {
	removeSet := make(map[int]struct{})
	for row := range l.rows {
		if _, ok := l.claimed[l.rows[row].ContactID()]; ok {
			removeSet[row] = struct{}{}
		}
	}

	if l.limit > 0 {
		trimCount := len(l.rows) + len(l.accepted) - len(removeSet) - l.limit
		removeIndex := len(l.rows) - 1
		for trimCount > 0 {
			for {
				if _, marked := removeSet[removeIndex]; !marked {
					break
				}
				removeIndex--
			}
			if removeIndex < 0 {
				break
			}
			removeSet[removeIndex] = struct{}{}
			removeIndex--
			trimCount--
		}
	}

	indices := make([]int, 0, len(removeSet))
	for row := range removeSet {
		indices = append(indices, row)
	}
	slices.Sort(indices)
	ranges := collapseDescending(indices)
	for _, r := range ranges {
		l.rows = slices.Delete(l.rows, r.Start, r.End+1)
	}

	inserted := slices.Clone(l.accepted)
	l.rows = slices.Insert(l.rows, 0, inserted...)
	l.accepted = nil
	clear(l.claimed)

	l.emit(Diff{Removed: ranges, InsertedAt: 0, Inserted: inserted})
}

// removeContacts drops every entry whose contact id is in ids.
func (l *List) removeContacts(ids map[int]struct{}) {
	if len(ids) == 0 {
		return
	}
	var stale []int
	for row := range l.rows {
		if _, ok := ids[l.rows[row].ContactID()]; ok {
			stale = append(stale, row)
		}
	}
	l.removeRows(stale)
}

// removeFavorites drops entries whose contact is currently a
// favorite, limited to the contacts of the given recipients.
func (l *List) removeFavorites(changed []*recipient.Recipient) {
	favorites := make(map[int]struct{})
	for _, r := range changed {
		if r == nil {
			continue
		}
		if id := r.ContactID(); id != 0 && l.directory.IsFavorite(id) {
			favorites[id] = struct{}{}
		}
	}
	l.removeContacts(favorites)
}

// removeRows drops the given ascending row indices and emits one
// range-collapsed removal diff.
func (l *List) removeRows(rows []int) {
	if len(rows) == 0 {
		return
	}
	slices.Sort(rows)
	ranges := collapseDescending(rows)
	for _, r := range ranges {
		l.rows = slices.Delete(l.rows, r.Start, r.End+1)
	}
	l.emit(Diff{Removed: ranges})
}

func (l *List) emit(diff Diff) {
	if l.observer == nil || diff.Empty() {
		return
	}
	l.observer.ApplyDiff(diff)
}

func (l *List) signalResolving() {
	now := l.Resolving()
	if now == l.lastResolving {
		return
	}
	l.lastResolving = now
	if l.observer != nil {
		l.observer.ResolvingChanged(now)
	}
}

func (l *List) indexOf(id int64) int {
	return slices.IndexFunc(l.rows, func(e event.Event) bool { return e.ID == id })
}

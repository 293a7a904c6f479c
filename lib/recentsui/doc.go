// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

// Package recentsui implements a terminal user interface for browsing
// recent conversations. Built on bubbletea (Elm architecture), it
// provides a split-pane view with the recency list on the left and an
// event detail pane on the right.
//
// The package renders what a recency.List maintains. The list runs on
// its own runloop goroutine; an [Observer] registered with it converts
// every callback into a bubbletea message carrying immutable row
// snapshots, so recipient resolution state is only ever read on the
// loop. The model applies diffs incrementally: removal ranges
// descending, then one insertion block at the head, the same contract
// recency.Diff documents.
//
// Data flow:
//
//	[event feed / event store]
//	        |
//	  [recency.List]  <- runloop goroutine
//	        | (Observer -> tea messages)
//	    [Model]       <- bubbletea event loop
//	        |
//	  [terminal output]
package recentsui

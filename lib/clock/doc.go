// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The daemon needs two things from time: timestamps for journal
// records and a delay before retrying a failed accept. Both go through
// [Clock] so tests can pin timestamps and drive the backoff without
// sleeping:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	server := sandboxd.NewServer(sandboxd.Options{Clock: c, ...})
//	c.WaitForTimers(1)
//	c.Advance(time.Second)
package clock

// Package driver owns remote browser sessions.
//
// A Handle wraps exactly one Session and funnels every operation through a
// single async.Queue, so the underlying browser connection is never used from
// two goroutines at once and commands complete in submission order.
//
// # Lifecycle
//
// Handles move through these states:
//
//  1. Initializing: New queues launch, navigation and a settle delay
//  2. Ready: operations run against the live session
//  3. Failed: bring-up failed; every operation rejects with that failure
//  4. Destroyed: the session is closed; every operation rejects with a state error
//
// Destroy queues teardown behind any in-flight bring-up and is idempotent.
// Shutdown is the synchronous path for process exit.
//
// # Elements
//
// Elements are tagged with the id of the session that produced them. A handle
// rejects elements from any other session, so references cannot leak across
// a restart.
//
// # Example Usage
//
//	h := driver.New(driver.NewPlaywrightLauncher(), driver.Config{
//	    Browser:     "chrome",
//	    URL:         "https://tweetdeck.twitter.com/",
//	    SettleDelay: driver.DefaultSettleDelay,
//	}, logger)
//
//	root, err := h.FindElement("#container").Await(ctx)
//	...
//	_, _ = h.Destroy().Await(ctx)
package driver

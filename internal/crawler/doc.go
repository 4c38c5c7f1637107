// Package crawler discovers the pages of one web domain.
//
// # Architecture
//
// The Engine drives a Frontier (a same-domain BFS queue with a visited set)
// through a small state machine:
//
//	Seeded -> Fetching -> {PageAccepted | Blocked | TransientError}
//	       -> (Fetching | Escalating)
//	       -> {Succeeded | FallbackSucceeded | FallbackFailed | Stopped}
//
// Every response is classified by antibot.Classify. Blocks raise a linear
// delay multiplier and, once persistent, escalate to sitemap discovery.
// Timeouts and connection failures count toward the same threshold.
//
// # Components
//
//   - Engine: the crawl loop and its terminal finalization
//   - Frontier: FIFO queue, visited set and link admission rules
//   - ExtractLinks: anchor extraction with goquery
//
// # Cancellation
//
// Cancellation is cooperative. The stop flag is read before every fetch,
// and recording a page fails once the crawl's progress row is done, so a
// stop request never lets another page through. Cancelling the context
// ends the run as Stopped as well.
//
// # Usage
//
//	engine := crawler.NewEngine(fetcher, headers, robots, sitemaps, tracker)
//	result := engine.Run(ctx, crawler.Request{Domain: "example.com", ProgressKey: key})
package crawler

// Package main hosts the review scrape worker entrypoint.
//
// Architecture overview:
//   - Queue consumer: jobs arrive on the durable scrape_jobs queue with prefetch 1, so exactly one capture is in
//     flight per process. Throughput scales horizontally by running more worker processes as competing consumers.
//   - Capture pipeline: internal/worker drives each job through status update, platform adapter capture, balanced
//     sampling, Redis persistence, and result publication on scrape_results. Failures publish an error result and
//     reject the message without requeue; the gateway surfaces the error to the caller.
//   - Platform adapters: internal/scrape holds one adapter per marketplace (Tiki, Lazada, Shopee, Amazon, eBay).
//     Each prefers a structured JSON endpoint via the Colly fetcher and degrades to a rendered Chromedp capture
//     with a stealth profile when markup is the only option. Paid vendor adapters (ScraperAPI, Oxylabs) can replace
//     the whole family via adapter.provider.
//   - Politeness: robots.txt is checked per URL (fail-open on transport errors), per-domain rate limiters space
//     requests, and randomized pauses break up scripted timing. These apply only within one process.
//   - Configuration & plumbing: Viper populates config from file/env (legacy env names from the original deployment
//     still work); zap provides structured logging; Prometheus metrics and health endpoints are served on a separate
//     ops listener.
//
// Operational notes:
//   - Shutdown: SIGINT/SIGTERM stop job intake; the in-flight job runs to completion on a detached context before
//     the process drains the browser, broker, Redis, and ops listener. A consume stream that closes without a
//     signal means the broker connection was lost and the process exits non-zero for the supervisor to restart.
//   - Rendered captures keep their own per-operation timeouts, so a wedged page cannot hold the worker forever.
//   - Run locally: go run ./cmd/scrapeworker -config config.yaml (or rely solely on env overrides; a .env file is
//     honored when present).
package main

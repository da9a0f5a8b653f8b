// Command pagewatch watches web pages for a value and notifies when a
// natural-language condition on that value holds.
//
// Architecture overview:
//   - Intake: "create" (or POST /v1/monitors) asks the judge to split a free-text
//     request into description, interval, condition and URL, then stores a
//     monitor. URLs are unique; repeating a request returns the existing monitor.
//   - Scheduling: every monitor gets a recurring in-process job. Each tick queues a
//     check; a fixed worker pool drains the queue under a per-check deadline, which
//     also bounds concurrent browsers.
//   - Check pipeline: a plain HTTP fetch is promoted to a headless render when the
//     page looks like a script shell. The value is read through a cached XPath rule,
//     then the judge over page text, then the judge over a screenshot when text
//     extraction is weak. The judge then decides whether the value meets the condition.
//   - Outputs: the observation is written back onto the monitor; satisfied checks
//     publish a notification (log, memory or Pub/Sub) with screenshot evidence
//     stored in memory, on disk, or in GCS.
//
// Subcommands:
//   - serve: HTTP API, scheduler and workers.
//   - check --monitor-id ID: run one check and print the outcome JSON.
//   - create "<text>" [--url URL]: create a monitor from free text.
//
// Configuration comes from an optional YAML file (--config) and PAGEWATCH_*
// environment variables, e.g. PAGEWATCH_JUDGE_API_KEY or PAGEWATCH_STORE_BACKEND.
package main

// Package watch defines the domain types and ports shared by the monitor
// check pipeline: monitors, extraction results, check outcomes, and the
// interfaces adapters implement for storage, scheduling, fetching,
// judging, and notification.
package watch

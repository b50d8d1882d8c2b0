// Package dedupe provides a time-based cache for suppressing duplicate
// client message IDs within a configurable window.
package dedupe

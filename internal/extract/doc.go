// Package extract pulls the value a monitor describes out of page content.
// Text extraction asks the judge for a JSON record and degrades through
// regex heuristics; image extraction asks the judge to read a screenshot.
// Neither path returns an error: failures collapse to an empty result with
// zero confidence.
package extract

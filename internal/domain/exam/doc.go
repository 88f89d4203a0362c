// Package exam contains the exam model: term queries, protocol and schedule
// entries, subject normalization and the rules that turn schedule rows into
// deduplicated, ordered exam events.
//
// The package has no I/O. The application layer fetches the entries and drives
// the classification; everything here is pure and safe for concurrent use.
package exam

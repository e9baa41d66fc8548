// Package review surfaces files flagged for human attention and applies the
// admin decisions that resolve them.
//
// A Queue lists review cases with category and priority derived from the
// file's current state. A Processor applies one of the six decision kinds to
// a case, validating every precondition before mutating anything and
// serializing decisions per file so a decision and a retry can never race on
// the same row.
package review

// Package filename parses intake filenames into structured patient identity
// and document metadata.
//
// Filenames follow a fixed convention: record number, patient name as
// "SURNAMES, GIVEN NAMES", an optional secondary document number, and a
// document-type code, joined by underscores. The parser tries a strict
// pattern first and falls back through relaxed variants, reporting a parse
// confidence that the matcher and review queue carry forward unchanged.
//
// Parsing is pure: no I/O, total over arbitrary input, and failures come
// back as values with actionable suggestions rather than errors.
package filename

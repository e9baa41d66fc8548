// Package identity resolves parsed filename identities against existing
// patient records.
//
// The Matcher scores every candidate patient with a blend of name-similarity
// signals (character sequence ratio, token-set overlap, order-insensitive
// token ratio, subset-tolerant token ratio, initials ratio) plus an exact
// record-number check, then buckets the combined confidence into a tier:
// exact_name, exact_id, fuzzy_name, partial, or none. Callers route a file to
// auto-link, manual review, or new-patient creation by applying configured
// thresholds to the best candidate's confidence; the matcher itself carries
// no thresholds.
//
// Matching is pure computation with no I/O. A Matcher is stateless and safe
// for concurrent use.
package identity

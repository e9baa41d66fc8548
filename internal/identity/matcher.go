package identity

import (
	"fmt"
	"sort"
	"strings"

	"medintake/internal/filename"
	"medintake/internal/registry"
)

// Tier names the bucket a candidate's combined signals fall into. The
// registry persists tiers as plain strings.
type Tier string

const (
	TierExactName Tier = "exact_name"
	TierExactID   Tier = "exact_id"
	TierFuzzyName Tier = "fuzzy_name"
	TierPartial   Tier = "partial"
	TierNone      Tier = "none"
)

// Candidate is one scored patient match. The field set round-trips through
// the registry's candidates column as JSON.
type Candidate struct {
	PatientID    string   `json:"patient_id"`
	DisplayName  string   `json:"display_name"`
	RecordNumber string   `json:"record_number"`
	Similarity   float64  `json:"similarity"`
	ExactID      bool     `json:"exact_id"`
	Confidence   float64  `json:"confidence"`
	Tier         Tier     `json:"tier"`
	Reasons      []string `json:"reasons"`
}

// Result holds the retained candidates sorted by confidence descending.
// Best points into Candidates and is nil when nothing scored well enough to
// keep.
type Result struct {
	Candidates []Candidate
	Best       *Candidate
}

const defaultMaxCandidates = 5

// Matcher scores parsed filename identities against patient records. It
// holds no thresholds; routing decisions belong to the caller.
type Matcher struct {
	strategy      Strategy
	maxCandidates int
}

// NewMatcher builds a matcher with the given similarity strategy. An empty
// strategy selects weighted, and maxCandidates values below one fall back
// to the default of five.
func NewMatcher(strategy Strategy, maxCandidates int) *Matcher {
	if strategy == "" {
		strategy = StrategyWeighted
	}
	if maxCandidates <= 0 {
		maxCandidates = defaultMaxCandidates
	}
	return &Matcher{strategy: strategy, maxCandidates: maxCandidates}
}

// Match scores parsed against every candidate patient. Patients whose names
// normalize to nothing are skipped rather than failing the call; a blank
// record number only disables the record-number signal. Candidates with raw
// similarity below 0.6 and no record-number match are dropped entirely.
func (m *Matcher) Match(parsed *filename.ParsedIdentity, patients []registry.Patient) Result {
	if parsed == nil {
		return Result{}
	}
	searchName := NormalizeName(parsed.FullName)
	searchRecord := strings.TrimSpace(parsed.RecordNumber)
	if searchName == "" && searchRecord == "" {
		return Result{}
	}

	candidates := make([]Candidate, 0, len(patients))
	for _, patient := range patients {
		name := NormalizeName(patient.FullName)
		if name == "" {
			name = NormalizeName(patient.NormalizedName)
		}
		if name == "" {
			continue
		}
		record := strings.TrimSpace(patient.RecordNumber)
		exactID := record != "" && searchRecord != "" && record == searchRecord
		similarity := m.strategy.Similarity(searchName, name)
		if !exactID && similarity < 0.6 {
			continue
		}
		exactName := searchName != "" && searchName == name
		confidence, tier := scoreCandidate(similarity, exactName, exactID)
		display := strings.TrimSpace(patient.FullName)
		if display == "" {
			display = name
		}
		candidates = append(candidates, Candidate{
			PatientID:    patient.ID,
			DisplayName:  display,
			RecordNumber: record,
			Similarity:   similarity,
			ExactID:      exactID,
			Confidence:   confidence,
			Tier:         tier,
			Reasons:      candidateReasons(similarity, exactName, exactID),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].PatientID < candidates[j].PatientID
	})
	if len(candidates) > m.maxCandidates {
		candidates = candidates[:m.maxCandidates]
	}

	result := Result{Candidates: candidates}
	if len(candidates) > 0 {
		result.Best = &result.Candidates[0]
	}
	return result
}

// scoreCandidate derives combined confidence and tier from the two signals.
// Confidence is monotone non-decreasing in similarity while the
// record-number signal is held fixed, and a record-number match never
// scores below the name-only confidence at the same similarity. The two
// exact_id segments meet at similarity 0.8 with confidence 0.85.
func scoreCandidate(similarity float64, exactName, exactID bool) (float64, Tier) {
	switch {
	case exactName && exactID:
		return 1.0, TierExactName
	case exactName:
		return 0.95, TierExactName
	case exactID && similarity >= 0.8:
		return 0.85 + 0.5*(similarity-0.8), TierExactID
	case exactID:
		return 0.75 + 0.125*similarity, TierExactID
	case similarity >= 0.9:
		return similarity * 0.9, TierFuzzyName
	case similarity >= 0.8:
		return similarity * 0.85, TierFuzzyName
	case similarity >= 0.6:
		return similarity * 0.8, TierPartial
	default:
		return similarity * 0.7, TierNone
	}
}

func candidateReasons(similarity float64, exactName, exactID bool) []string {
	switch {
	case exactName && exactID:
		return []string{"normalized name and record number both match"}
	case exactName:
		return []string{"normalized names are identical"}
	case exactID && similarity >= 0.8:
		return []string{
			"record numbers match",
			fmt.Sprintf("name similarity %.2f", similarity),
		}
	case exactID:
		return []string{
			"record numbers match",
			fmt.Sprintf("name similarity %.2f does not corroborate the record number", similarity),
		}
	default:
		return []string{fmt.Sprintf("name similarity %.2f", similarity)}
	}
}

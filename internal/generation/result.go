package generation

import "sync"

// CriterionFinding is the model's evidence and rating for one benchmark
// criterion.
type CriterionFinding struct {
	Criterion string `json:"criterion"`
	Evidence  string `json:"evidence"`
	Rating    string `json:"rating"`
}

// QuestionResult is the structured output of one successful work item.
// Findings is set for criteria-based questions, Answer for example-answer
// questions.
type QuestionResult struct {
	MainQuestion string             `json:"main_question"`
	Findings     []CriterionFinding `json:"findings,omitempty"`
	Answer       string             `json:"answer,omitempty"`
	Conclusion   string             `json:"conclusion,omitempty"`
}

// ResultMap nests results by unit code, then question key. Failed or
// canceled items never appear in it.
type ResultMap map[string]map[string]*QuestionResult

// Accumulator collects results concurrently. Entries are write-once; a
// second add for the same (unit, question) is dropped.
type Accumulator struct {
	mu      sync.Mutex
	results ResultMap
}

func NewAccumulator() *Accumulator {
	return &Accumulator{results: make(ResultMap)}
}

// Add stores a result. Returns false when an entry already exists.
func (a *Accumulator) Add(unitCode, questionKey string, result *QuestionResult) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	unit, ok := a.results[unitCode]
	if !ok {
		unit = make(map[string]*QuestionResult)
		a.results[unitCode] = unit
	}
	if _, exists := unit[questionKey]; exists {
		return false
	}
	unit[questionKey] = result
	return true
}

// Len counts stored results.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, unit := range a.results {
		n += len(unit)
	}
	return n
}

// Snapshot returns a copy of the map. Call only after all tasks have
// resolved; the copy shares QuestionResult pointers, which are immutable
// once added.
func (a *Accumulator) Snapshot() ResultMap {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(ResultMap, len(a.results))
	for unitCode, unit := range a.results {
		copied := make(map[string]*QuestionResult, len(unit))
		for key, result := range unit {
			copied[key] = result
		}
		out[unitCode] = copied
	}
	return out
}

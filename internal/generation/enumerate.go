package generation

import (
	"sort"

	"github.com/evalscribe/evalscribe/internal/curriculum"
)

// WorkItem is the unit of scheduling: one (unit, question) pair needing
// one model call.
type WorkItem struct {
	UnitCode    string
	QuestionKey string
	Spec        curriculum.QuestionSpec
	Unit        curriculum.Unit
}

// Enumerate flattens the schema into work items. Units and questions are
// visited in sorted key order so the item list, and therefore the total
// count, is deterministic for a given schema. Completion order is still
// unordered under concurrency.
func Enumerate(schema curriculum.Schema) []WorkItem {
	unitCodes := make([]string, 0, len(schema))
	for code := range schema {
		unitCodes = append(unitCodes, code)
	}
	sort.Strings(unitCodes)

	var items []WorkItem
	for _, code := range unitCodes {
		unit := schema[code]

		questionKeys := make([]string, 0, len(unit.Questions))
		for key := range unit.Questions {
			questionKeys = append(questionKeys, key)
		}
		sort.Strings(questionKeys)

		for _, key := range questionKeys {
			items = append(items, WorkItem{
				UnitCode:    code,
				QuestionKey: key,
				Spec:        unit.Questions[key],
				Unit:        unit,
			})
		}
	}
	return items
}

// Package report turns a finished result map into the flat key-value
// form the document template consumes, and fills the template.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/evalscribe/evalscribe/internal/curriculum"
	"github.com/evalscribe/evalscribe/internal/generation"
)

// Flatten maps results to template placeholders. Each question gets one
// key formed as {unitCode}_{questionIndex} where the index is the
// question's 1-based position in the unit's sorted key order, matching
// the fixed layout of the output document. Positions come from the
// schema, not the result map, so a failed question leaves its own slot
// empty instead of shifting later answers into the wrong cell. The
// student name rides along under its own key.
func Flatten(schema curriculum.Schema, results generation.ResultMap, studentName string) map[string]string {
	flat := map[string]string{
		"student_name": studentName,
	}

	for unitCode, unit := range schema {
		keys := make([]string, 0, len(unit.Questions))
		for key := range unit.Questions {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for i, key := range keys {
			result, ok := results[unitCode][key]
			if !ok {
				continue
			}
			flat[fmt.Sprintf("%s_%d", unitCode, i+1)] = Render(result)
		}
	}
	return flat
}

// Render formats one question result as the text block placed into its
// document cell.
func Render(result *generation.QuestionResult) string {
	var sb strings.Builder

	sb.WriteString(result.MainQuestion)
	sb.WriteString("\n\n")

	if len(result.Findings) > 0 {
		for i, finding := range result.Findings {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, finding.Criterion)
			fmt.Fprintf(&sb, "   Evidence: %s\n", finding.Evidence)
			fmt.Fprintf(&sb, "   Rating: %s\n", finding.Rating)
		}
	} else if result.Answer != "" {
		sb.WriteString(result.Answer)
		sb.WriteString("\n")
	}

	if result.Conclusion != "" {
		sb.WriteString("\n")
		sb.WriteString(result.Conclusion)
	}
	return strings.TrimRight(sb.String(), "\n")
}

package generation

import (
	"fmt"
	"sort"
	"strings"
)

// SystemMessage is the fixed role instruction every generation call
// carries.
const SystemMessage = `You are an experienced vocational assessor writing a formal competency evaluation.
You evaluate a student's assessment transcript against benchmark criteria.
Write in a professional, factual register. Ground every statement in the
transcript; never invent evidence. Always answer in valid JSON.`

// buildResponseSchema names the exact fields the model must return for
// one work item: an evidence and rating pair per benchmark criterion, or
// a single free-text answer, plus a conclusion either way.
func buildResponseSchema(item WorkItem) map[string]string {
	schema := make(map[string]string)
	if item.Spec.HasCriteria() {
		for num := range item.Spec.Criteria {
			schema["evidence_"+num] = fmt.Sprintf("quote or paraphrase from the transcript showing criterion %s, empty string if absent", num)
			schema["rating_"+num] = fmt.Sprintf("one of \"met\", \"partially met\", \"not met\" for criterion %s", num)
		}
	} else {
		schema["answer"] = "the student's answer to the question, reconstructed from the transcript"
	}
	schema["conclusion"] = "one or two sentences summarizing the student's performance on this question"
	return schema
}

// buildPrompt combines the fixed instructions, the transcript, and the
// work item's question data into one user prompt.
func buildPrompt(item WorkItem, studentName, gender, transcript string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Student: %s", studentName)
	if gender != "" {
		fmt.Fprintf(&sb, " (%s)", gender)
	}
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "Unit: %s\n", item.UnitCode)
	if item.Unit.AssessmentGuide != "" {
		fmt.Fprintf(&sb, "Unit assessment guide:\n%s\n", item.Unit.AssessmentGuide)
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Question %s: %s\n", item.QuestionKey, item.Spec.MainQuestion)
	if item.Spec.Guide != "" {
		fmt.Fprintf(&sb, "Question guide:\n%s\n", item.Spec.Guide)
	}

	if item.Spec.HasCriteria() {
		sb.WriteString("\nBenchmark criteria:\n")
		nums := make([]string, 0, len(item.Spec.Criteria))
		for num := range item.Spec.Criteria {
			nums = append(nums, num)
		}
		sort.Strings(nums)
		for _, num := range nums {
			fmt.Fprintf(&sb, "  %s. %s\n", num, item.Spec.Criteria[num])
		}
	} else if item.Spec.ExampleAnswer != "" {
		fmt.Fprintf(&sb, "\nExample of a satisfactory answer:\n%s\n", item.Spec.ExampleAnswer)
	}

	sb.WriteString("\nAssessment transcript:\n---\n")
	sb.WriteString(transcript)
	sb.WriteString("\n---\n")

	sb.WriteString("\nEvaluate the student's performance on this question using only the transcript above.")
	return sb.String()
}

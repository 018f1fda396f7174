package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalscribe/evalscribe/internal/curriculum"
	"github.com/evalscribe/evalscribe/internal/generation"
)

func reportSchema() curriculum.Schema {
	return curriculum.Schema{
		"A100": curriculum.Unit{Questions: map[string]curriculum.QuestionSpec{
			"q1": {MainQuestion: "first question"},
			"q2": {MainQuestion: "second question"},
			"q3": {MainQuestion: "third question"},
		}},
		"B200": curriculum.Unit{Questions: map[string]curriculum.QuestionSpec{
			"q1": {MainQuestion: "criteria question"},
		}},
	}
}

func TestFlatten(t *testing.T) {
	t.Parallel()

	results := generation.ResultMap{
		"A100": {
			"q2": &generation.QuestionResult{MainQuestion: "second question", Answer: "answer two"},
			"q1": &generation.QuestionResult{MainQuestion: "first question", Answer: "answer one"},
			"q3": &generation.QuestionResult{MainQuestion: "third question", Answer: "answer three"},
		},
		"B200": {
			"q1": &generation.QuestionResult{
				MainQuestion: "criteria question",
				Findings: []generation.CriterionFinding{
					{Criterion: "names the steps", Evidence: "listed all three", Rating: "met"},
				},
				Conclusion: "well done",
			},
		},
	}

	flat := Flatten(reportSchema(), results, "Alex Doe")

	assert.Equal(t, "Alex Doe", flat["student_name"])
	require.Contains(t, flat, "A100_1")
	require.Contains(t, flat, "A100_2")
	require.Contains(t, flat, "A100_3")
	require.Contains(t, flat, "B200_1")
	assert.Len(t, flat, 5)

	// Index follows sorted question-key order.
	assert.Contains(t, flat["A100_1"], "first question")
	assert.Contains(t, flat["A100_2"], "second question")
	assert.Contains(t, flat["A100_3"], "third question")

	assert.Contains(t, flat["B200_1"], "criteria question")
	assert.Contains(t, flat["B200_1"], "listed all three")
	assert.Contains(t, flat["B200_1"], "met")
	assert.Contains(t, flat["B200_1"], "well done")
}

func TestFlattenKeepsPositionsAfterPartialFailure(t *testing.T) {
	t.Parallel()

	// q2 failed. q3 must stay in its own slot, not slide into q2's.
	results := generation.ResultMap{
		"A100": {
			"q1": &generation.QuestionResult{MainQuestion: "first question", Answer: "answer one"},
			"q3": &generation.QuestionResult{MainQuestion: "third question", Answer: "answer three"},
		},
	}

	flat := Flatten(reportSchema(), results, "Alex Doe")

	assert.Contains(t, flat["A100_1"], "first question")
	assert.NotContains(t, flat, "A100_2", "the failed question's slot stays empty")
	assert.Contains(t, flat["A100_3"], "third question")
}

func TestFlattenSkipsMissingEntries(t *testing.T) {
	t.Parallel()

	// A unit with no results at all contributes nothing.
	flat := Flatten(reportSchema(), generation.ResultMap{}, "Alex Doe")
	assert.Len(t, flat, 1, "only the student name remains")
}

func TestRenderAnswer(t *testing.T) {
	t.Parallel()

	text := Render(&generation.QuestionResult{
		MainQuestion: "Summarize the incident",
		Answer:       "the alarm went off",
		Conclusion:   "complete answer",
	})
	assert.Contains(t, text, "Summarize the incident")
	assert.Contains(t, text, "the alarm went off")
	assert.Contains(t, text, "complete answer")
}

func TestTemplateFiller(t *testing.T) {
	t.Parallel()

	tmpl := `Report for {{.student_name}}
A100/1: {{index . "A100_1"}}`

	filler, err := NewTemplateFillerFromBytes("report.tmpl", []byte(tmpl))
	require.NoError(t, err)

	out, err := filler.Fill(map[string]string{
		"student_name": "Alex Doe",
		"A100_1":       "question text",
	})
	require.NoError(t, err)
	assert.Equal(t, "Report for Alex Doe\nA100/1: question text", string(out))
}

func TestTemplateFillerBadTemplate(t *testing.T) {
	t.Parallel()
	_, err := NewTemplateFillerFromBytes("bad.tmpl", []byte(`{{.unclosed`))
	assert.Error(t, err)
}

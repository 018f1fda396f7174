// Package curriculum loads and validates the nested question schemas that
// drive a generation run.
package curriculum

import (
	"encoding/json"
	"fmt"
)

// AssessmentGuideKey is the one reserved second-level key. It carries
// unit-level guide text and is never a question.
const AssessmentGuideKey = "assessment_guide"

// Schema maps unit codes to their units. The shape is the only
// load-bearing part; question text is passed through to prompts opaquely.
type Schema map[string]Unit

// QuestionSpec describes one question. A spec carries either numbered
// benchmark criteria or a single example answer; Guide is free-form text
// included in the prompt either way.
type QuestionSpec struct {
	MainQuestion  string            `json:"main_question"`
	Criteria      map[string]string `json:"benchmark_criteria,omitempty"`
	ExampleAnswer string            `json:"example_answer,omitempty"`
	Guide         string            `json:"guide,omitempty"`
}

// HasCriteria reports whether the question is criteria-based.
func (q QuestionSpec) HasCriteria() bool {
	return len(q.Criteria) > 0
}

// Unit is one unit of the curriculum. AssessmentGuide sits beside the
// question keys in the JSON, so decoding is hand-rolled.
type Unit struct {
	AssessmentGuide string
	Questions       map[string]QuestionSpec
}

func (u *Unit) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	u.Questions = make(map[string]QuestionSpec, len(raw))
	for key, value := range raw {
		if key == AssessmentGuideKey {
			if err := json.Unmarshal(value, &u.AssessmentGuide); err != nil {
				return fmt.Errorf("decode %s: %w", AssessmentGuideKey, err)
			}
			continue
		}
		var spec QuestionSpec
		if err := json.Unmarshal(value, &spec); err != nil {
			return fmt.Errorf("decode question %q: %w", key, err)
		}
		u.Questions[key] = spec
	}
	return nil
}

func (u Unit) MarshalJSON() ([]byte, error) {
	raw := make(map[string]any, len(u.Questions)+1)
	if u.AssessmentGuide != "" {
		raw[AssessmentGuideKey] = u.AssessmentGuide
	}
	for key, spec := range u.Questions {
		raw[key] = spec
	}
	return json.Marshal(raw)
}

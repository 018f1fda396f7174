package curriculum

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCurriculum = `{
  "A100": {
    "assessment_guide": "assess the whole unit holistically",
    "q1": {
      "main_question": "Describe the intake procedure",
      "benchmark_criteria": {"1": "names the steps", "2": "mentions documentation"},
      "guide": "probe for detail"
    },
    "q2": {
      "main_question": "Summarize the incident",
      "example_answer": "a good answer mentions the alarm"
    }
  },
  "B200": {
    "q1": {"main_question": "Explain the safety rule"}
  }
}`

func TestUnitUnmarshalSeparatesGuideFromQuestions(t *testing.T) {
	t.Parallel()

	var schema Schema
	require.NoError(t, json.Unmarshal([]byte(sampleCurriculum), &schema))

	unit := schema["A100"]
	assert.Equal(t, "assess the whole unit holistically", unit.AssessmentGuide)
	require.Len(t, unit.Questions, 2, "the guide key is not a question")

	q1 := unit.Questions["q1"]
	assert.Equal(t, "Describe the intake procedure", q1.MainQuestion)
	assert.True(t, q1.HasCriteria())
	assert.Equal(t, "names the steps", q1.Criteria["1"])
	assert.Equal(t, "probe for detail", q1.Guide)

	q2 := unit.Questions["q2"]
	assert.False(t, q2.HasCriteria())
	assert.Equal(t, "a good answer mentions the alarm", q2.ExampleAnswer)

	assert.Empty(t, schema["B200"].AssessmentGuide)
}

func TestUnitMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	var schema Schema
	require.NoError(t, json.Unmarshal([]byte(sampleCurriculum), &schema))

	data, err := json.Marshal(schema)
	require.NoError(t, err)

	var again Schema
	require.NoError(t, json.Unmarshal(data, &again))
	assert.Equal(t, schema["A100"].AssessmentGuide, again["A100"].AssessmentGuide)
	assert.Equal(t, schema["A100"].Questions, again["A100"].Questions)
}

func TestValidateBytes(t *testing.T) {
	t.Parallel()

	t.Run("valid document", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, ValidateBytes([]byte(sampleCurriculum)))
	})

	t.Run("not json", func(t *testing.T) {
		t.Parallel()
		problems := ValidateBytes([]byte("not json at all"))
		require.NotEmpty(t, problems)
	})

	t.Run("question missing main_question", func(t *testing.T) {
		t.Parallel()
		doc := `{"A100": {"q1": {"guide": "no question text"}}}`
		assert.NotEmpty(t, ValidateBytes([]byte(doc)))
	})

	t.Run("empty document", func(t *testing.T) {
		t.Parallel()
		assert.NotEmpty(t, ValidateBytes([]byte(`{}`)))
	})

	t.Run("criteria must be strings", func(t *testing.T) {
		t.Parallel()
		doc := `{"A100": {"q1": {"main_question": "Q", "benchmark_criteria": {"1": 42}}}}`
		assert.NotEmpty(t, ValidateBytes([]byte(doc)))
	})
}

func TestRegistryLoadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "welding.json"), []byte(sampleCurriculum), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))

	registry := NewRegistry()
	require.NoError(t, registry.LoadDir(dir))

	assert.Equal(t, []string{"welding"}, registry.Names(), "invalid and non-json files are skipped")

	schema, ok := registry.Get("welding")
	require.True(t, ok)
	assert.Len(t, schema, 2)

	_, ok = registry.Get("broken")
	assert.False(t, ok)
}

func TestRegistryLoadDirMissing(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	assert.Error(t, registry.LoadDir(filepath.Join(t.TempDir(), "nope")))
}

func TestRegistryRegister(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	registry.Register("manual", Schema{"A": Unit{}})

	schema, ok := registry.Get("manual")
	assert.True(t, ok)
	assert.Len(t, schema, 1)
}

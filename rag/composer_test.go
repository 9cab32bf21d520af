package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestQueryComposer_QueryGenerationPrompt(t *testing.T) {
	c := NewQueryComposer()
	ontology := "(Movie) has properties: title\n(:Node)-[:ACTED_IN]->(:Node)"
	context := c.VectorContext([]Candidate{
		{Title: "Looper", Plot: "A hitman meets his future self."},
		{Title: "12 Monkeys", Plot: "A convict travels back in time."},
	})

	prompt := c.QueryGenerationPrompt("time travel movies with Bruce Willis", context, ontology)

	assert.Contains(t, prompt, "<<<ONTOLOGY>>>\n"+ontology+"\n<<<END ONTOLOGY>>>")
	assert.Contains(t, prompt, "<<<USER QUESTION>>>\ntime travel movies with Bruce Willis\n<<<END USER QUESTION>>>")
	assert.Contains(t, prompt, "[Result 1] Title: Looper\nPlot: A hitman meets his future self.\n\n[Result 2] Title: 12 Monkeys")
	assert.Contains(t, prompt, "Only return the Cypher query")
	assert.Equal(t, prompt, c.QueryGenerationPrompt("time travel movies with Bruce Willis", context, ontology))
}

func TestQueryComposer_VectorContext(t *testing.T) {
	c := NewQueryComposer()
	assert.Equal(t, "Information from vector search:\n", c.VectorContext(nil))
	assert.Equal(t, "Information from vector search:\n[Result 1] Title: Heat\nPlot: Cops and robbers.\n\n",
		c.VectorContext([]Candidate{{Title: "Heat", Plot: "Cops and robbers."}}))
}

func TestQueryComposer_SummaryPrompt(t *testing.T) {
	c := NewQueryComposer()

	t.Run("truncates to exactly 4000 characters", func(t *testing.T) {
		serialized := strings.Repeat("a", 3999) + "BCDEF"
		prompt := c.SummaryPrompt("q", "MATCH (m) RETURN m", 100, serialized)
		assert.Contains(t, prompt, strings.Repeat("a", 3999)+"B\n<<<END FORMATTED RESULTS>>>")
		assert.NotContains(t, prompt, "BC")
	})

	t.Run("counts runes", func(t *testing.T) {
		serialized := strings.Repeat("é", 4100)
		truncated := Truncate(serialized, MaxResultChars)
		assert.Equal(t, MaxResultChars, utf8.RuneCountInString(truncated))
		assert.Contains(t, c.SummaryPrompt("q", "MATCH (m) RETURN m", 1, serialized), truncated+"\n<<<END")
	})

	t.Run("zero results", func(t *testing.T) {
		prompt := c.SummaryPrompt("q", "MATCH (m) RETURN m", 0, "[]")
		assert.Contains(t, prompt, "<<<RESULT COUNT>>>\n0\n")
		assert.Contains(t, prompt, "No results found.")
		assert.Contains(t, prompt, "IF RESULTS = 0")
	})

	t.Run("missing query", func(t *testing.T) {
		prompt := c.SummaryPrompt("q", "  ", 0, "")
		assert.Contains(t, prompt, "<<<CYPHER QUERY EXECUTED>>>\nNo query available\n")
	})

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t,
			c.SummaryPrompt("q", "MATCH (m) RETURN m", 2, "[{title: 'Looper'}]"),
			c.SummaryPrompt("q", "MATCH (m) RETURN m", 2, "[{title: 'Looper'}]"))
	})

	t.Run("custom limit", func(t *testing.T) {
		prompt := QueryComposer{MaxResultChars: 5}.SummaryPrompt("q", "MATCH (m) RETURN m", 1, "abcdefgh")
		assert.Contains(t, prompt, "\nabcde\n")
	})
}

func TestQueryComposer_RecommendationPrompt(t *testing.T) {
	prompt := NewQueryComposer().RecommendationPrompt("heist movies", []Candidate{
		{Title: "Heat", Plot: "Cops and robbers.", Released: "1995-12-15", Tagline: "A Los Angeles crime saga", Score: 0.91234},
	})
	assert.Contains(t, prompt, `The user asked: "heist movies"`)
	assert.Contains(t, prompt, "Movie: Heat\nPlot: Cops and robbers.\nReleased: 1995-12-15\nTagline: A Los Angeles crime saga\nSimilarity Score: 0.9123")
}

func TestQueryComposer_SerializeRecords(t *testing.T) {
	c := NewQueryComposer()
	assert.Equal(t, "[]", c.SerializeRecords(nil))
	assert.Equal(t, "[{title: 'Looper', year: 2012}, {title: 'Die Hard', year: null}]", c.SerializeRecords([]Record{
		RecordOf("title", "Looper", "year", 2012),
		RecordOf("title", "Die Hard", "year", nil),
	}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "", Truncate("abc", 0))
	assert.Equal(t, "abc", Truncate("abc", -1))
}

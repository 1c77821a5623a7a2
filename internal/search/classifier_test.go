package search

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ahart-dev/vaultmind/internal/config"
)

func testClassifier() *Classifier {
	return NewClassifier(config.NewConfig().Classifier.Stopwords)
}

func TestClassify_DetectsCandidateName(t *testing.T) {
	c := testClassifier()
	r := c.Classify("notes about Priya from last week")
	require.Contains(t, r.Candidates, "Priya")
	require.True(t, r.HasIntent)
	require.Equal(t, "Priya", r.BM25Query)
}

func TestClassify_MultipleCandidates(t *testing.T) {
	c := testClassifier()
	r := c.Classify("meeting with Priya and Marcus")
	require.ElementsMatch(t, []string{"Priya", "Marcus"}, r.Candidates)
	require.Equal(t, "Priya Marcus", r.BM25Query)
}

func TestClassify_SentenceInitialStopwordExcluded(t *testing.T) {
	c := testClassifier()
	r := c.Classify("Find notes about deployments")
	require.Empty(t, r.Candidates)
	require.False(t, r.HasIntent)
}

func TestClassify_SentenceInitialCandidateAccepted(t *testing.T) {
	c := testClassifier()
	r := c.Classify("Priya mentioned the outage yesterday")
	require.Contains(t, r.Candidates, "Priya")
}

func TestClassify_SentenceInitialTooLongRejected(t *testing.T) {
	c := testClassifier()
	r := c.Classify("Pneumonoultramicroscopicsilicovolcanoconiosis is a word")
	require.Empty(t, r.Candidates)
}

func TestClassify_SentenceInitialWithDigitsRejected(t *testing.T) {
	c := testClassifier()
	r := c.Classify("Q3 planning notes")
	require.Empty(t, r.Candidates)
}

func TestClassify_AllCapsAcronymExcluded(t *testing.T) {
	c := testClassifier()
	r := c.Classify("check the API docs with Priya")
	require.NotContains(t, r.Candidates, "API")
	require.Contains(t, r.Candidates, "Priya")
}

func TestClassify_IntentWithoutCandidate(t *testing.T) {
	c := testClassifier()
	r := c.Classify("prep for the sync tomorrow")
	require.Empty(t, r.Candidates)
	require.True(t, r.HasIntent)
	require.Empty(t, r.BM25Query)
}

func TestClassify_OneOnOnePattern(t *testing.T) {
	c := testClassifier()
	r := c.Classify("1:1 notes")
	require.True(t, r.HasIntent)
}

func TestClassify_NoIntentNoCandidate(t *testing.T) {
	c := testClassifier()
	r := c.Classify("how does the vector index handle deletes")
	require.Empty(t, r.Candidates)
	require.False(t, r.HasIntent)
}

func TestClassify_PunctuationTrimmed(t *testing.T) {
	c := testClassifier()
	r := c.Classify("catch up with Priya, about the launch.")
	require.Contains(t, r.Candidates, "Priya")
}

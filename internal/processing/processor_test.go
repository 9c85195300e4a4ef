package processing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/demad/newsapp/internal/processing"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "punctuation", input: "Markets rally!!!   again", want: "Markets rally again"},
		{name: "entities", input: "Tom &amp; Jerry", want: "Tom Jerry"},
		{name: "collapse whitespace", input: "foo\n\nbar\t baz", want: "foo bar baz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, processing.CleanText(tt.input))
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	text := "Election results: election turnout rises as election day ends with the results"
	got := processing.ExtractKeywords(text, 3, 4)
	require.Equal(t, []string{"election", "results", "ends"}, got)

	require.Nil(t, processing.ExtractKeywords("", 5, 3))
	require.Nil(t, processing.ExtractKeywords("the and of", 5, 1))
}

func TestExtractKeywordsNoLimit(t *testing.T) {
	got := processing.ExtractKeywords("budget budget vote", 0, 3)
	require.Equal(t, []string{"budget", "vote"}, got)
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "", want: ""},
		{input: "HTTPS://WWW.TheGuardian.com/world/story/?CMP=share#comments", want: "https://www.theguardian.com/world/story"},
		{input: " https://www.theguardian.com/a ", want: "https://www.theguardian.com/a"},
		{input: "not a url", want: "not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			require.Equal(t, tt.want, processing.CanonicalURL(tt.input))
		})
	}
}

func TestBuildArticleID(t *testing.T) {
	id1 := processing.BuildArticleID("https://www.theguardian.com/world/story")
	id2 := processing.BuildArticleID("https://www.theguardian.com/world/story?CMP=share")
	require.NotEmpty(t, id1)
	require.Len(t, id1, 40)
	require.Equal(t, id1, id2)

	require.NotEqual(t, id1, processing.BuildArticleID("https://www.theguardian.com/world/other"))
	require.Empty(t, processing.BuildArticleID(""))
}

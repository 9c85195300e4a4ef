package guardian_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/demad/newsapp/internal/guardian"
	"github.com/demad/newsapp/internal/logger"
)

func result(title, date string, tags ...string) string {
	quoted := make([]string, 0, len(tags))
	for _, tag := range tags {
		quoted = append(quoted, fmt.Sprintf(`{"id":"profile/x","webTitle":%q}`, tag))
	}
	return fmt.Sprintf(`{"sectionName":"World news","webPublicationDate":%q,"webTitle":%q,"webUrl":"https://www.theguardian.com/%s","tags":[%s]}`,
		date, title, strings.ToLower(strings.ReplaceAll(title, " ", "-")), strings.Join(quoted, ","))
}

func envelope(results ...string) string {
	return `{"response":{"status":"ok","total":3,"results":[` + strings.Join(results, ",") + `]}}`
}

func TestDecodePreservesOrder(t *testing.T) {
	raw := envelope(
		result("First", "2023-05-01T10:00:00Z"),
		result("Second", "2023-05-02T10:00:00Z", "Jane Doe"),
		result("Third", "2023-05-03T10:00:00Z", "Jane Doe", "John Roe"),
	)

	articles, err := guardian.Decode(raw)
	require.NoError(t, err)
	require.Len(t, articles, 3)

	require.Equal(t, "First", articles[0].Title)
	require.Equal(t, "Second", articles[1].Title)
	require.Equal(t, "Third", articles[2].Title)

	require.Equal(t, "World news", articles[0].SectionName)
	require.Equal(t, "https://www.theguardian.com/first", articles[0].URL)
	require.Equal(t, "May 1, 2023", articles[0].PublishedDate)
	require.Equal(t, time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC), articles[0].PublishedAt)
}

func TestDecodeAuthor(t *testing.T) {
	raw := envelope(
		result("No tags", "2023-05-01T10:00:00Z"),
		result("One tag", "2023-05-01T10:00:00Z", "Jane Doe"),
		result("Two tags", "2023-05-01T10:00:00Z", "Jane Doe", "John Roe"),
	)

	articles, err := guardian.Decode(raw)
	require.NoError(t, err)

	require.Nil(t, articles[0].Author)
	require.NotNil(t, articles[1].Author)
	require.Equal(t, "Jane Doe. ", *articles[1].Author)
	require.Equal(t, "Jane Doe. John Roe. ", *articles[2].Author)
}

func TestDecodeBadDateKeepsArticle(t *testing.T) {
	var seen []int
	articles, err := guardian.Decode(
		envelope(result("Undated", "yesterday")),
		guardian.OnDateError(func(index int, _ error) { seen = append(seen, index) }),
	)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	require.Equal(t, "", articles[0].PublishedDate)
	require.True(t, articles[0].PublishedAt.IsZero())
	require.Equal(t, []int{0}, seen)
}

func TestDecodeAbortsOnFirstFault(t *testing.T) {
	raw := envelope(
		result("Good", "2023-05-01T10:00:00Z"),
		`{"sectionName":"World news","webPublicationDate":"2023-05-01T10:00:00Z","webTitle":"No url","tags":[]}`,
		result("Never reached", "2023-05-01T10:00:00Z"),
	)

	articles, err := guardian.Decode(raw)
	require.Len(t, articles, 1)
	require.Equal(t, "Good", articles[0].Title)

	var de *guardian.DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, 1, de.Index)
	require.Equal(t, "webUrl", de.Field)
	require.True(t, errors.Is(err, guardian.ErrMissingField))
}

func TestDecodeWrongTypeIsFault(t *testing.T) {
	raw := envelope(`{"sectionName":7,"webPublicationDate":"2023-05-01T10:00:00Z","webTitle":"t","webUrl":"u","tags":[]}`)

	articles, err := guardian.Decode(raw)
	require.Empty(t, articles)

	var de *guardian.DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, 0, de.Index)
	require.Equal(t, "sectionName", de.Field)
}

func TestDecodeTagWithoutTitle(t *testing.T) {
	raw := envelope(`{"sectionName":"s","webPublicationDate":"2023-05-01T10:00:00Z","webTitle":"t","webUrl":"u","tags":[{"id":"x"}]}`)

	_, err := guardian.Decode(raw)
	var de *guardian.DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, 0, de.Index)
	require.Equal(t, "tags[0].webTitle", de.Field)
}

func TestDecodeSkipMalformed(t *testing.T) {
	raw := envelope(
		result("Good", "2023-05-01T10:00:00Z"),
		`"not an object"`,
		`null`,
		result("Also good", "2023-05-01T10:00:00Z"),
	)

	articles, err := guardian.Decode(raw, guardian.SkipMalformed())
	require.Len(t, articles, 2)
	require.Equal(t, "Also good", articles[1].Title)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode result 1")
	require.Contains(t, err.Error(), "decode result 2")
}

func TestDecodeEnvelopeFaults(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{name: "empty", raw: ""},
		{name: "not json", raw: "not json"},
		{name: "no response", raw: `{"message":"Unauthorized"}`, field: "response"},
		{name: "no results", raw: `{"response":{"status":"error"}}`, field: "response.results"},
		{name: "null results", raw: `{"response":{"results":null}}`, field: "response.results"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			articles, err := guardian.Decode(tt.raw)
			require.NotNil(t, articles)
			require.Empty(t, articles)

			var de *guardian.DecodeError
			require.ErrorAs(t, err, &de)
			require.Equal(t, -1, de.Index)
			require.Equal(t, tt.field, de.Field)
		})
	}
}

func TestParserNeverFails(t *testing.T) {
	p := guardian.NewParser(logger.Discard())

	require.NotPanics(t, func() {
		require.Empty(t, p.Parse(""))
		require.Empty(t, p.Parse("not json"))
	})

	articles := p.Parse(envelope(result("Only", "2023-05-01T10:00:00Z", "Jane Doe")))
	require.Len(t, articles, 1)
	require.Equal(t, "Jane Doe. ", *articles[0].Author)
}

func TestFormatPublicationDate(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "2023-05-01T10:00:00Z", want: "May 1, 2023"},
		{raw: "2023-12-25T23:59:59Z", want: "Dec 25, 2023"},
		{raw: "2024-02-03T04:05:06.123Z", want: "Feb 3, 2024"},
		{raw: "", wantErr: true},
		{raw: "01/05/2023", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := guardian.FormatPublicationDate(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				require.Equal(t, "", got)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

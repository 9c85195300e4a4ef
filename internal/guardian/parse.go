package guardian

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/demad/newsapp/internal/models"
)

// ErrMissingField marks a required key that is absent or null.
var ErrMissingField = errors.New("missing field")

// DecodeError describes the first place the payload stopped matching the schema.
// Index is -1 when the fault lies outside the results array.
type DecodeError struct {
	Index int
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Index < 0 && e.Field == "":
		return fmt.Sprintf("decode search response: %v", e.Err)
	case e.Index < 0:
		return fmt.Sprintf("decode search response: %s: %v", e.Field, e.Err)
	default:
		return fmt.Sprintf("decode result %d: %s: %v", e.Index, e.Field, e.Err)
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type searchEnvelope struct {
	Response *struct {
		Results *[]json.RawMessage `json:"results"`
	} `json:"response"`
}

type searchResult struct {
	SectionName        *string      `json:"sectionName"`
	WebPublicationDate *string      `json:"webPublicationDate"`
	WebTitle           *string      `json:"webTitle"`
	WebURL             *string      `json:"webUrl"`
	Tags               *[]resultTag `json:"tags"`
}

type resultTag struct {
	WebTitle *string `json:"webTitle"`
}

type decodeOptions struct {
	skipMalformed bool
	onDateError   func(index int, err error)
}

// DecodeOption tunes Decode.
type DecodeOption func(*decodeOptions)

// SkipMalformed drops faulty results and keeps going. The returned error joins
// every fault seen.
func SkipMalformed() DecodeOption {
	return func(o *decodeOptions) {
		o.skipMalformed = true
	}
}

// OnDateError is called for results whose date could not be formatted. Such
// results are still returned with an empty PublishedDate.
func OnDateError(fn func(index int, err error)) DecodeOption {
	return func(o *decodeOptions) {
		o.onDateError = fn
	}
}

// Decode converts a search response into articles in source order. By default the
// first malformed result stops decoding and the articles before it are returned
// together with a *DecodeError.
func Decode(raw string, opts ...DecodeOption) ([]models.Article, error) {
	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	articles := make([]models.Article, 0)

	var env searchEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return articles, &DecodeError{Index: -1, Err: err}
	}
	if env.Response == nil {
		return articles, &DecodeError{Index: -1, Field: "response", Err: ErrMissingField}
	}
	if env.Response.Results == nil {
		return articles, &DecodeError{Index: -1, Field: "response.results", Err: ErrMissingField}
	}

	results := *env.Response.Results
	articles = make([]models.Article, 0, len(results))
	var faults []error
	for i, item := range results {
		article, err := decodeResult(i, item, o.onDateError)
		if err != nil {
			if !o.skipMalformed {
				return articles, err
			}
			faults = append(faults, err)
			continue
		}
		articles = append(articles, article)
	}
	return articles, errors.Join(faults...)
}

func decodeResult(i int, raw json.RawMessage, onDateError func(int, error)) (models.Article, error) {
	var r searchResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return models.Article{}, &DecodeError{Index: i, Field: fieldOf(err), Err: err}
	}

	required := []struct {
		name  string
		value *string
	}{
		{"sectionName", r.SectionName},
		{"webPublicationDate", r.WebPublicationDate},
		{"webTitle", r.WebTitle},
		{"webUrl", r.WebURL},
	}
	for _, f := range required {
		if f.value == nil {
			return models.Article{}, &DecodeError{Index: i, Field: f.name, Err: ErrMissingField}
		}
	}
	if r.Tags == nil {
		return models.Article{}, &DecodeError{Index: i, Field: "tags", Err: ErrMissingField}
	}

	author, err := joinContributors(*r.Tags)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.Index = i
		}
		return models.Article{}, err
	}

	article := models.Article{
		Title:       *r.WebTitle,
		SectionName: *r.SectionName,
		Author:      author,
		URL:         *r.WebURL,
	}
	if ts, err := ParsePublicationDate(*r.WebPublicationDate); err != nil {
		if onDateError != nil {
			onDateError(i, err)
		}
	} else {
		article.PublishedAt = ts
		article.PublishedDate = ts.Format(displayDateLayout)
	}
	return article, nil
}

// joinContributors returns nil for no tags, else each title followed by ". ".
func joinContributors(tags []resultTag) (*string, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	var b strings.Builder
	for j, tag := range tags {
		if tag.WebTitle == nil {
			return nil, &DecodeError{Field: fmt.Sprintf("tags[%d].webTitle", j), Err: ErrMissingField}
		}
		b.WriteString(*tag.WebTitle)
		b.WriteString(". ")
	}
	author := b.String()
	return &author, nil
}

func fieldOf(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return typeErr.Field
	}
	return "result"
}

// Parser turns raw response text into articles, logging instead of failing.
type Parser struct {
	log  *slog.Logger
	opts []DecodeOption
}

// NewParser creates a Parser. Without options a malformed result ends the pass.
func NewParser(log *slog.Logger, opts ...DecodeOption) *Parser {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Parser{log: log}
	p.opts = append([]DecodeOption{OnDateError(func(index int, err error) {
		p.log.Warn("format publication date", slog.Int("index", index), slog.Any("err", err))
	})}, opts...)
	return p
}

// Parse never fails: on a fault it logs and returns whatever was decoded before it.
func (p *Parser) Parse(raw string) []models.Article {
	articles, err := Decode(raw, p.opts...)
	if err != nil {
		p.log.Error("parse articles json",
			slog.Any("err", err),
			slog.Int("decoded", len(articles)),
		)
	}
	return articles
}

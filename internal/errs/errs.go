// Package errs provides the structured error taxonomy used across the
// ingestion and retrieval pipelines. Each Kind corresponds to one row of the
// error-handling table: it carries a recovery policy (Retryable) and a
// Category used for log grouping and metrics.
package errs

import "fmt"

// Category groups error kinds for log grouping and metrics labelling.
type Category string

const (
	CategoryIngest    Category = "ingest"
	CategoryRetrieval Category = "retrieval"
	CategoryJob       Category = "job"
)

// Kind enumerates the error kinds named by the error-handling design.
type Kind string

const (
	KindReadFile           Kind = "read-file"
	KindShortOrEmptyDoc    Kind = "short-or-empty-doc"
	KindFrontmatterParse   Kind = "frontmatter-parse"
	KindEmbeddingUnavail   Kind = "embedding-unavailable"
	KindKeywordUpsert      Kind = "keyword-upsert"
	KindKeywordQueryParse  Kind = "keyword-query-parse"
	KindVectorSearch       Kind = "vector-search"
	KindLLMRerank          Kind = "llm-rerank"
	KindLLMAnswer          Kind = "llm-answer"
	KindCancellation       Kind = "cancellation"
	KindJobBodyException   Kind = "job-body-exception"
)

var categoryByKind = map[Kind]Category{
	KindReadFile:          CategoryIngest,
	KindShortOrEmptyDoc:   CategoryIngest,
	KindFrontmatterParse:  CategoryIngest,
	KindEmbeddingUnavail:  CategoryIngest,
	KindKeywordUpsert:     CategoryIngest,
	KindKeywordQueryParse: CategoryRetrieval,
	KindVectorSearch:      CategoryRetrieval,
	KindLLMRerank:         CategoryRetrieval,
	KindLLMAnswer:         CategoryRetrieval,
	KindCancellation:      CategoryJob,
	KindJobBodyException:  CategoryJob,
}

// retryable kinds may be retried by a caller without changing program state;
// the rest represent a decision already made (skip, degrade) that retrying
// would not change.
var retryableKinds = map[Kind]bool{
	KindEmbeddingUnavail: true,
	KindVectorSearch:     true,
}

// Error is the structured error type threaded through the pipeline. It
// implements the standard error interface and supports errors.Is via Kind
// equality.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Path    string // the file or query this error concerns, when applicable
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s (%s)", e.Kind, e.Message, e.Path)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithPath attaches the file or query the error concerns.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// Category returns the log/metrics grouping for an error kind.
func (k Kind) Category() Category {
	if c, ok := categoryByKind[k]; ok {
		return c
	}
	return CategoryIngest
}

// Retryable reports whether a caller may retry after this error kind rather
// than treating it as a terminal skip.
func (k Kind) Retryable() bool {
	return retryableKinds[k]
}

// KindOf extracts the Kind from err, if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if as(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// as is a tiny local errors.As to avoid importing the stdlib errors package
// under a name that collides with this package's own identity in call sites.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

package errors

import (
	"errors"

	"github.com/gin-gonic/gin"
)

// ContentTypeProblemJSON is the media type of problem responses.
const ContentTypeProblemJSON = "application/problem+json"

// ErrorMapper translates an application error into a problem. The boolean
// reports whether the mapper recognised the error.
type ErrorMapper func(err error) (ProblemDetail, bool)

// Responder writes problem responses. Mappers are tried in order before an
// error falls through to a 500.
type Responder struct {
	// BaseURI is prepended to relative problem types.
	BaseURI string
	mappers []ErrorMapper
}

// NewResponder returns a responder consulting mappers in order.
func NewResponder(baseURI string, mappers ...ErrorMapper) *Responder {
	return &Responder{BaseURI: baseURI, mappers: mappers}
}

var defaultResponder = NewResponder("")

// Respond writes problem with the problem+json media type.
func (r *Responder) Respond(c *gin.Context, problem ProblemDetail) {
	if r.BaseURI != "" && len(problem.Type) > 0 && problem.Type[0] == '/' {
		problem.Type = r.BaseURI + problem.Type
	}
	if problem.Instance == "" {
		problem.Instance = c.Request.URL.Path
	}
	c.Header("Content-Type", ContentTypeProblemJSON)
	c.JSON(problem.Status, problem)
}

// RespondError answers with the first mapper's problem, with err itself
// when it is a ProblemDetail, and otherwise with a 500 that hides the error
// text. Unmapped errors are attached to the gin context for logging.
func (r *Responder) RespondError(c *gin.Context, err error) {
	for _, mapper := range r.mappers {
		if problem, ok := mapper(err); ok {
			r.Respond(c, problem)
			return
		}
	}
	var problem ProblemDetail
	if errors.As(err, &problem) {
		r.Respond(c, problem)
		return
	}
	_ = c.Error(err)
	r.Respond(c, ErrInternal.WithDetail(GenericInternalDetail))
}

// NotFound answers 404 for the identified row.
func (r *Responder) NotFound(c *gin.Context, resourceType string, identifier any) {
	r.Respond(c, NewNotFoundProblem(resourceType, identifier))
}

// Respond uses a responder without mappers or base URI.
func Respond(c *gin.Context, problem ProblemDetail) {
	defaultResponder.Respond(c, problem)
}

// RespondError uses a responder without mappers or base URI.
func RespondError(c *gin.Context, err error) {
	defaultResponder.RespondError(c, err)
}

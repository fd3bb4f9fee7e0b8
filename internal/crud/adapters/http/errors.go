package crudhttp

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Apurer/go-gin-crud-server/internal/crud"
	"github.com/Apurer/go-gin-crud-server/internal/platform/pagination"
	apierrors "github.com/Apurer/go-gin-crud-server/internal/shared/errors"
)

// mapCrudError is the single translation point from engine faults to problems.
// NotFound is handled by the resource because it echoes the requested id.
func mapCrudError(err error) (apierrors.ProblemDetail, bool) {
	var verr *crud.ValidationError
	var werr *pagination.WindowError
	switch {
	case errors.As(err, &verr):
		return apierrors.NewValidationProblem(verr.Fields), true
	case errors.As(err, &werr):
		return apierrors.NewValidationProblem(map[string]string{werr.Field: werr.Reason}), true
	case errors.Is(err, crud.ErrNotFound):
		return apierrors.ErrNotFound, true
	case errors.Is(err, crud.ErrIntegrity):
		return apierrors.NewConflictProblem(err.Error()), true
	case errors.Is(err, crud.ErrUnavailable):
		return apierrors.NewUnavailableProblem("storage"), true
	}
	return apierrors.ProblemDetail{}, false
}

// Validator is implemented by inputs whose rules go beyond binding tags.
type Validator interface {
	Validate() error
}

func bindInput(c *gin.Context, target any) error {
	body, err := c.GetRawData()
	if err != nil {
		return crud.NewValidationError("body", "could not be read")
	}
	if err := binding.JSON.BindBody(body, target); err != nil {
		return bindingFault(body, target, err)
	}
	if v, ok := target.(Validator); ok {
		return v.Validate()
	}
	return nil
}

func bindingFault(body []byte, target any, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fault := &crud.ValidationError{}
		for _, fe := range verrs {
			fault.Add(fieldName(fe), describe(fe))
		}
		return fault
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return crud.NewValidationError(field, "must be of type "+jsonType(typeErr.Type))
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return crud.NewValidationError("body", "must be a JSON object")
	}
	if field, ok := malformedField(body, target); ok {
		reason := "is malformed"
		if strings.HasPrefix(err.Error(), "invalid UUID") {
			reason = "must be a UUID"
		}
		return crud.NewValidationError(field, reason)
	}
	return crud.NewValidationError("body", "is malformed")
}

// malformedField finds the first member of body that target's field type
// refuses to decode. Text unmarshalers such as uuid.UUID fail without naming
// the field they were decoding.
func malformedField(body []byte, target any) (string, bool) {
	t := reflect.TypeOf(target)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return "", false
	}
	var members map[string]json.RawMessage
	if json.Unmarshal(body, &members) != nil {
		return "", false
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		raw, ok := members[name]
		if !ok {
			continue
		}
		if json.Unmarshal(raw, reflect.New(field.Type).Interface()) != nil {
			return name, true
		}
	}
	return "", false
}

func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "uuid", "uuid4":
		return "must be a UUID"
	}
	return "failed " + fe.Tag() + " validation"
}

var textUnmarshaler = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

func jsonType(t reflect.Type) string {
	if t == nil {
		return "unknown"
	}
	if reflect.PointerTo(t).Implements(textUnmarshaler) {
		return "string"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	}
	return "object"
}

var jsonNamesOnce sync.Once

// registerJSONFieldNames makes validation faults report JSON field names.
func registerJSONFieldNames() {
	jsonNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			switch name {
			case "-":
				return ""
			case "":
				return field.Name
			}
			return name
		})
	})
}

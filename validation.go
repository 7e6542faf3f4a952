package apiclient

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RequestValidator checks a request body before it is sent.
type RequestValidator func(ctx context.Context, body any) error

// ResponseValidator checks a successful response before it is cached.
type ResponseValidator func(ctx context.Context, env *Envelope) error

// ValidationPolicy configures request and response validation. Validation
// failures are classified as KindValidation and are never retried or cached.
type ValidationPolicy struct {
	ValidateRequest  bool `yaml:"validate_request"`
	ValidateResponse bool `yaml:"validate_response"`
	// Struct validates struct bodies against their `validate` tags.
	Struct             bool                `yaml:"struct"`
	RequestValidators  []RequestValidator  `yaml:"-"`
	ResponseValidators []ResponseValidator `yaml:"-"`
}

func (p ValidationPolicy) clone() ValidationPolicy {
	p.RequestValidators = append([]RequestValidator(nil), p.RequestValidators...)
	p.ResponseValidators = append([]ResponseValidator(nil), p.ResponseValidators...)
	return p
}

// merge layers o over p: flags are OR-ed and validators run defaults first.
func (p ValidationPolicy) merge(o ValidationPolicy) ValidationPolicy {
	out := p.clone()
	out.ValidateRequest = p.ValidateRequest || o.ValidateRequest
	out.ValidateResponse = p.ValidateResponse || o.ValidateResponse
	out.Struct = p.Struct || o.Struct
	out.RequestValidators = append(out.RequestValidators, o.RequestValidators...)
	out.ResponseValidators = append(out.ResponseValidators, o.ResponseValidators...)
	return out
}

// FieldError describes one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

// ValidationError is returned by validators; Classify maps it to KindValidation.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(parts, "; "))
}

// NewValidationError builds a ValidationError with optional field details.
func NewValidationError(message string, fields ...FieldError) *ValidationError {
	return &ValidationError{Message: message, Fields: fields}
}

func (c *Client) validateRequest(ctx context.Context, d Descriptor) error {
	p := d.Validation
	if p == nil || !p.ValidateRequest {
		return nil
	}

	if p.Struct && isStruct(d.Body) {
		if err := c.structValidator().StructCtx(ctx, d.Body); err != nil {
			return structValidationError(err)
		}
	}

	for _, fn := range p.RequestValidators {
		if err := fn(ctx, d.Body); err != nil {
			return asValidationError(err, "request validation failed")
		}
	}
	return nil
}

func (c *Client) validateResponse(ctx context.Context, d Descriptor, env *Envelope) error {
	p := d.Validation
	if p == nil || !p.ValidateResponse {
		return nil
	}
	for _, fn := range p.ResponseValidators {
		if err := fn(ctx, env); err != nil {
			return asValidationError(err, "response validation failed")
		}
	}
	return nil
}

func (c *Client) structValidator() *validator.Validate {
	c.validatorOnce.Do(func() {
		c.validate = validator.New()
		c.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return c.validate
}

func isStruct(v any) bool {
	if v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

func structValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return asValidationError(err, "request validation failed")
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: fmt.Sprintf("failed %q validation", fe.Tag()),
		})
	}
	return NewValidationError("request validation failed", fields...)
}

func asValidationError(err error, message string) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return &ValidationError{Message: fmt.Sprintf("%s: %v", message, err)}
}

package tools

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/erauner12/mcptools/internal/mcpserver/value"
	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func argValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// report fields by their JSON names
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Decode binds loosely-typed arguments into T and checks its `validate` tags.
// Shape and validation failures are returned as INVALID_PARAMS tool errors.
func Decode[T any](args value.Value) (*T, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, NewToolError(ErrCodeInvalidParams, "Invalid parameters: "+err.Error(), nil)
	}

	var params T
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, NewToolError(ErrCodeInvalidParams, "Invalid parameters: "+err.Error(), nil)
	}

	if err := argValidator().Struct(&params); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return nil, NewToolError(ErrCodeInvalidParams, "Invalid parameters: "+fe.Field()+" failed "+fe.Tag()+" validation", map[string]any{
				"field": fe.Field(),
				"rule":  fe.Tag(),
			})
		}
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			return nil, NewToolError(ErrCodeInvalidParams, "Invalid parameters: "+err.Error(), nil)
		}
	}

	return &params, nil
}

package validation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// Client-facing 400 messages.
const (
	MsgInvalidBody  = "Invalid JSON body"
	MsgInvalidOrder = "customer_id and non-empty items[] are required"
)

// BindAndValidate binds JSON body into `out` and runs validation.
// If validation fails, it writes a 400 response and returns an error for the handler to short-circuit.
// An empty body is treated as an empty object.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil && !errors.Is(err, io.EOF) {
		// well-formed JSON with the wrong shape, e.g. items as a string
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  MsgInvalidOrder,
				"fields": map[string]string{typeErr.Field: "type"},
			})
			return err
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": MsgInvalidBody})
		return err
	}

	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  MsgInvalidOrder,
			"fields": FieldErrors(err),
		})
		return err
	}
	return nil
}

// FieldErrors flattens validator errors into field -> failed tag.
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.Field()] = fe.Tag()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}

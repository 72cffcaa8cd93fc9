package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Submission is the producer-facing body accepted over HTTP and NATS.
type Submission struct {
	PayloadCode       string `json:"payload_code" validate:"required,max=128"`
	PayloadUniqueCode string `json:"payload_unique_code,omitempty" validate:"max=128"`
	ScheduledAt       string `json:"scheduled_at" validate:"required,max=64"`
}

// Request assigns a new id. The timestamp is parsed later, when the
// payload is built, so a malformed value surfaces as a delivery fault.
func (s Submission) Request() DeliveryRequest {
	return NewDeliveryRequest(s.PayloadCode, s.PayloadUniqueCode, s.ScheduledAt)
}

var ErrInvalidSubmission = errors.New("invalid submission")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate reports the first field problem, wrapped in ErrInvalidSubmission.
func (s Submission) Validate() error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "required":
			return fmt.Errorf("%w: %s is required", ErrInvalidSubmission, fe.Field())
		case "max":
			return fmt.Errorf("%w: %s must be at most %s characters", ErrInvalidSubmission, fe.Field(), fe.Param())
		default:
			return fmt.Errorf("%w: %s failed %s", ErrInvalidSubmission, fe.Field(), fe.Tag())
		}
	}
	return fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
}

package pairing

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"nura/internal/models"
)

type ClaimRequest struct {
	DeviceID       string `json:"device_id" validate:"required,max=100"`
	ActivationCode string `json:"activation_code" validate:"required,max=10"`
}

type ClaimResponse struct {
	Detail   string `json:"detail"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	Status   models.Status `json:"status"`
	DeviceID string        `json:"device_id,omitempty"`
	Detail   string        `json:"detail,omitempty"`
}

// ProvisionRequest: пустой activation_code — сгенерирует реестр.
type ProvisionRequest struct {
	ActivationCode string `json:"activation_code" validate:"omitempty,max=10,alphanum"`
}

type ProvisionResponse struct {
	DeviceID       string        `json:"device_id"`
	ActivationCode string        `json:"activation_code"`
	Status         models.Status `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
}

type LivenessRequest struct {
	Status string `json:"status" validate:"required"`
}

type LivenessResponse struct {
	DeviceID string        `json:"device_id"`
	Status   models.Status `json:"status"`
	LastSeen time.Time     `json:"last_seen"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// в ошибках — имена полей как в JSON
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldErrors возвращает field → сообщение, nil если всё валидно.
func fieldErrors(s any) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	ves, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_global": err.Error()}
	}
	out := make(map[string]string, len(ves))
	for _, e := range ves {
		switch e.Tag() {
		case "required":
			out[e.Field()] = "This field is required"
		case "max":
			out[e.Field()] = "Must be at most " + e.Param() + " characters"
		case "alphanum":
			out[e.Field()] = "Must contain only letters and digits"
		default:
			out[e.Field()] = "failed validation on '" + e.Tag() + "'"
		}
	}
	return out
}

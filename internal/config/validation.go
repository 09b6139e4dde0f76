package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a single validation error with context
type ValidationError struct {
	FieldPath string // Dot-notation field path (e.g., "router.host", "presence.devices")
	Message   string // Human-readable error message
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("invalid configuration, %d error(s):\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.FieldPath, err.Message))
	}
	return sb.String()
}

var validate *validator.Validate

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("router_host", validateRouterHost); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("mqtt_url", validateMQTTURL); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("topic_segment", validateTopicSegment); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("listen_addr", validateListenAddr); err != nil {
		panic(err)
	}

	// Report fields by their YAML name
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate checks every section. The MQTT section is only checked when
// it is enabled.
func (c *Config) Validate() error {
	var validationErrors ValidationErrors

	if c.Version != CurrentVersion {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "version",
			Message:   fmt.Sprintf("unsupported config version %d (expected %d)", c.Version, CurrentVersion),
		})
	}

	if err := validate.Struct(c.Router); err != nil {
		validationErrors = append(validationErrors, convertValidatorErrors(err, "router")...)
	}
	if err := validate.Struct(c.Presence); err != nil {
		validationErrors = append(validationErrors, convertValidatorErrors(err, "presence")...)
	}
	if c.MQTT.Enabled {
		if err := validate.Struct(c.MQTT); err != nil {
			validationErrors = append(validationErrors, convertValidatorErrors(err, "mqtt")...)
		}
	}
	if err := validate.Struct(c.Server); err != nil {
		validationErrors = append(validationErrors, convertValidatorErrors(err, "server")...)
	}

	if len(validationErrors) > 0 {
		return validationErrors
	}
	return nil
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "field is required"
	case "min", "gte":
		return fmt.Sprintf("must be >= %s", e.Param())
	case "max":
		return fmt.Sprintf("must be <= %s", e.Param())
	case "unique":
		return "must not contain duplicates"
	case "router_host":
		return "must be a hostname or IP address without scheme or port"
	case "mqtt_url":
		return "must be a broker URL (mqtt://, mqtts://, tcp://, ssl://, ws:// or wss://) with host"
	case "topic_segment":
		return "must be a single MQTT topic level without '/', '+' or '#'"
	case "listen_addr":
		return "must be in format 'host:port' or ':port'"
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}

func convertValidatorErrors(err error, fieldPrefix string) ValidationErrors {
	var validationErrors ValidationErrors

	var validatorErrs validator.ValidationErrors
	if errors.As(err, &validatorErrs) {
		for _, e := range validatorErrs {
			// Namespace is "RouterConfig.host" or "PresenceConfig.devices[1]"
			fieldPath := fieldPrefix
			if ns := e.Namespace(); ns != "" {
				if idx := strings.Index(ns, "."); idx >= 0 {
					fieldPath = fieldPrefix + ns[idx:]
				}
			}
			validationErrors = append(validationErrors, ValidationError{
				FieldPath: fieldPath,
				Message:   getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func validateRouterHost(fl validator.FieldLevel) bool {
	host := fl.Field().String()
	if host == "" || strings.ContainsAny(host, "/: ") {
		// IPv6 literals are the exception to the no-colon rule
		return net.ParseIP(host) != nil
	}
	return true
}

func validateMQTTURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil || u.Hostname() == "" {
		return false
	}
	switch u.Scheme {
	case "mqtt", "mqtts", "tcp", "ssl", "tls", "ws", "wss":
		return true
	default:
		return false
	}
}

func validateTopicSegment(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s != "" && !strings.ContainsAny(s, "/+#")
}

func validateListenAddr(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 0 && n <= 65535
}

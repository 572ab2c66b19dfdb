package siteconfig

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a ConfigError.
type ErrorKind int

const (
	// MissingField means a required value was not provided by any source.
	MissingField ErrorKind = iota + 1
	// InvalidSettings means the settings file could not be read or parsed.
	InvalidSettings
	// InvalidEnvironment means a prefixed environment variable has a value
	// of the wrong type. Path holds the prefix.
	InvalidEnvironment
)

func (k ErrorKind) String() string {
	switch k {
	case MissingField:
		return "missing field"
	case InvalidSettings:
		return "invalid settings"
	case InvalidEnvironment:
		return "invalid environment"
	default:
		return "unknown"
	}
}

// Names of the required fields, in the order they are validated.
const (
	FieldApp         = "app"
	FieldBranch      = "branch"
	FieldEnvironment = "environment"
	FieldCredentials = "credentials"
)

var fieldHints = map[string]string{
	FieldApp:         "set the --app option",
	FieldBranch:      "set the --branch option",
	FieldEnvironment: "set the --environment option",
	FieldCredentials: "set --AWS_ID and --AWS_SECRET, or aws.awsAccessKeyId and aws.awsSecretAccessKey in the settings file",
}

// ConfigError is returned when a deployment configuration cannot be
// resolved. No external call has been made when it is returned.
type ConfigError struct {
	Kind  ErrorKind
	Field string
	Path  string
	Err   error
}

func (e *ConfigError) Error() string {
	switch e.Kind {
	case MissingField:
		return fmt.Sprintf("missing %s: %s", e.Field, fieldHints[e.Field])
	case InvalidSettings:
		return fmt.Sprintf("invalid settings file %s: %v", e.Path, e.Err)
	case InvalidEnvironment:
		return fmt.Sprintf("invalid %s* environment variable: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func missing(field string) *ConfigError {
	return &ConfigError{Kind: MissingField, Field: field}
}

// MissingFieldOf returns the field named by a MissingField error, or "".
func MissingFieldOf(err error) string {
	var ce *ConfigError
	if errors.As(err, &ce) && ce.Kind == MissingField {
		return ce.Field
	}
	return ""
}

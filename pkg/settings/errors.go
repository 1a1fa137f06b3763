package settings

import "fmt"

// ConfigurationError reports configuration that cannot produce a valid
// template: a malformed macro, a missing resource configuration file, an
// unknown AMI name, an unsupported placement strategy. Only an operator
// editing configuration can recover from it.
type ConfigurationError struct {
	Message string
}

func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

package testspec

import "fmt"

// ConfigError reports a misconfiguration such as an unknown test type
type ConfigError struct {
	Test    string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Test == "" {
		return fmt.Sprintf("config error: %s", e.Message)
	}
	return fmt.Sprintf("config error: %s (test: %s)", e.Message, e.Test)
}

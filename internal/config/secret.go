package config

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString keeps secret values out of logs and JSON dumps.
// Use Unmask only where the raw value must leave the process.
type SecretString string

func (s SecretString) String() string {
	return redactedPlaceholder
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

func (s SecretString) Unmask() string {
	return string(s)
}

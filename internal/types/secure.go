package types

// Placeholder emitted wherever a secret would otherwise be printed.
const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds credentials the service must never log: the Stripe
// secret key, the webhook signing secret, the database URL. Both String()
// and MarshalJSON() emit a redacted placeholder, so a secret passed through
// fmt verbs, slog attributes, or a serialized config dump comes out masked.
//
// The raw value is only reachable through Unmask().
type SecretString string

// String satisfies fmt.Stringer with the redacted placeholder.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON encodes the redacted placeholder instead of the value.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the plaintext secret. Call sites should be the ones that
// genuinely need the value: Authorization headers, the pgx connection
// string, webhook verification.
func (s SecretString) Unmask() string {
	return string(s)
}

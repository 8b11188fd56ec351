package dialog

import "errors"

// Sentinel errors, wrapped with %w at call sites.
var (
	// ErrEmptyTranscription signals ASR returned no words; not a failure,
	// handled as the "empty transcript" edge case.
	ErrEmptyTranscription = errors.New("transcription returned empty text")

	// ErrInvalidFrame: malformed PCM frame length.
	ErrInvalidFrame = errors.New("audio frame length is not a multiple of the sample width")

	// ErrProviderUnavailable: capability call failed outright.
	ErrProviderUnavailable = errors.New("capability provider unavailable")

	// ErrProviderTimeout: capability call exceeded its deadline.
	ErrProviderTimeout = errors.New("capability provider timed out")

	// ErrProviderTransient: retryable capability failure; escalates to
	// ErrProviderUnavailable after provider_retries is exhausted.
	ErrProviderTransient = errors.New("capability provider transient error")

	// ErrQueueOverflow: the outbound queue could not be drained and the
	// transport appears dead.
	ErrQueueOverflow = errors.New("outbound queue overflow")

	// ErrProtocolViolation: malformed inbound control event.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrUnknownProvider: Capability Registry has no factory for a name.
	ErrUnknownProvider = errors.New("unknown capability provider")

	// ErrNilProvider: a required provider was not configured.
	ErrNilProvider = errors.New("required provider is nil")

	// ErrSessionClosed: operation attempted on a closed Session.
	ErrSessionClosed = errors.New("session is closed")

	// ErrSessionNotFound: Registry lookup miss.
	ErrSessionNotFound = errors.New("session not found")
)

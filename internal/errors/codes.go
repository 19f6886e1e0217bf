package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Bus channel errors
	ErrChannelInit    ErrorCode = "channel_init_failed"
	ErrChannelRelease ErrorCode = "channel_release_failed"
	ErrChannelRead    ErrorCode = "channel_read_fault"
	ErrInvalidBitrate ErrorCode = "invalid_bitrate"
	ErrUnsupportedBus ErrorCode = "unsupported_driver"
	ErrChannelClosed  ErrorCode = "channel_closed"

	// Engine lifecycle errors
	ErrAlreadyStarted ErrorCode = "engine_already_started"
	ErrNotRestartable ErrorCode = "engine_not_restartable"

	// Publisher errors
	ErrPublish ErrorCode = "publish_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:        "Internal error occurred",
	ErrInvalidArgument: "Invalid argument provided",
	ErrAlreadyRunning:  "Another instance is already running",
	ErrInvalidConfig:   "Invalid configuration",
	ErrReadConfig:      "Failed to read config file",
	ErrBindFlags:       "Failed to bind flags",
	ErrInvalidInterval: "Invalid interval value",
	ErrInvalidLogLevel: "Invalid log level",
	ErrChannelInit:     "Failed to initialize bus channel",
	ErrChannelRelease:  "Failed to release bus channel",
	ErrChannelRead:     "Bus read fault",
	ErrInvalidBitrate:  "Unsupported bus bitrate",
	ErrUnsupportedBus:  "Unsupported bus driver",
	ErrChannelClosed:   "Bus channel closed",
	ErrAlreadyStarted:  "Engine already started",
	ErrNotRestartable:  "Engine was stopped and cannot be restarted",
	ErrPublish:         "Failed to publish snapshot",
}

// Codes retried in place by the engine and the publisher
var transientCodes = map[ErrorCode]bool{
	ErrChannelRead: true,
	ErrPublish:     true,
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}

package protocol

// Error codes carried in ERROR frames.
const (
	CodeInvalidMessage    = "INVALID_MESSAGE"
	CodeUnknownType       = "UNKNOWN_TYPE"
	CodeInvalidParameters = "INVALID_PARAMETERS"
	CodeAlertNotFound     = "ALERT_CONFIG_NOT_FOUND"
	CodeSymbolNotFound    = "SYMBOL_NOT_FOUND"
	CodeTaskFailed        = "TASK_FAILED"
	CodeNotInitialized    = "EXCHANGE_INFO_NOT_INITIALIZED"
	CodeInternal          = "INTERNAL_ERROR"
)

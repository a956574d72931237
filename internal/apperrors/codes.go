package apperrors

// Error codes, grouped by domain

// Authentication errors (AUTH_*)
const (
	ErrCodeNotLoggedIn     = "AUTH_NOT_LOGGED_IN"
	ErrCodeTokenExpired    = "AUTH_TOKEN_EXPIRED"
	ErrCodeStateMismatch   = "AUTH_STATE_MISMATCH"
	ErrCodeMissingCode     = "AUTH_MISSING_CODE"
	ErrCodeProviderError   = "AUTH_PROVIDER_ERROR"
	ErrCodeExchangeFailed  = "AUTH_EXCHANGE_FAILED"
	ErrCodeMissingEmail    = "AUTH_MISSING_EMAIL"
	ErrCodeAccountDisabled = "AUTH_ACCOUNT_DISABLED"
)

// Validation errors (VALIDATION_*)
const (
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeInvalidEmail     = "VALIDATION_INVALID_EMAIL"
	ErrCodeInvalidInput     = "VALIDATION_INVALID_INPUT"
	ErrCodeMissingField     = "VALIDATION_MISSING_FIELD"
)

// Resource errors (RESOURCE_*)
const (
	ErrCodeMessageNotFound = "RESOURCE_MESSAGE_NOT_FOUND"
	ErrCodeConfigNotFound  = "RESOURCE_CONFIG_NOT_FOUND"
)

// Internal errors (INTERNAL_*)
const (
	ErrCodeDatabaseError   = "INTERNAL_DATABASE_ERROR"
	ErrCodeFetchFailed     = "INTERNAL_FETCH_FAILED"
	ErrCodeProcessFailed   = "INTERNAL_PROCESS_FAILED"
	ErrCodeUnexpectedError = "INTERNAL_UNEXPECTED_ERROR"
)

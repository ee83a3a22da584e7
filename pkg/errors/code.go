package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 12000-12999: Problem module errors
// 13000-13999: Submission & Judge module errors
// 17000-17999: Battle module errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError ErrorCode = 10100

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300

	// Token errors (10400-10499)
	TokenExpired ErrorCode = 10400
	TokenInvalid ErrorCode = 10401

	// ========== Problem Module Errors (12000-12999) ==========

	ProblemNotFound ErrorCode = 12000
	TestCaseInvalid ErrorCode = 12102

	// ========== Submission & Judge Module Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionRecordFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003
	SubmitTooFrequently    ErrorCode = 13004

	// Judge (13100-13199)
	JudgeSystemError    ErrorCode = 13101
	CompilationError    ErrorCode = 13102
	RuntimeError        ErrorCode = 13103
	TimeLimitExceeded   ErrorCode = 13104
	OutputLimitExceeded ErrorCode = 13106
	SandboxError        ErrorCode = 13107

	// ========== Battle Module Errors (17000-17999) ==========

	// Room protocol (17000-17099)
	RoomNotFound ErrorCode = 17000
	RoomClosed   ErrorCode = 17001
	RoomNotReady ErrorCode = 17002
	RoomFull     ErrorCode = 17003
	NotInRoom    ErrorCode = 17004

	// Battle lifecycle (17100-17199)
	BattleNotFound     ErrorCode = 17100
	BattleEnded        ErrorCode = 17101
	BattleCreateFailed ErrorCode = 17102
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",
	DatabaseError:       "Database operation failed",
	CacheError:          "Cache operation failed",
	ValidationFailed:    "Validation failed",
	TokenExpired:        "Token has expired",
	TokenInvalid:        "Invalid token",

	// Problem
	ProblemNotFound: "Problem not found",
	TestCaseInvalid: "Invalid test case format",

	// Submission
	SubmissionRecordFailed: "Failed to record submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	SubmitTooFrequently:    "Submitting too frequently, please wait",

	// Judge
	JudgeSystemError:    "Judge system error",
	CompilationError:    "Compilation error",
	RuntimeError:        "Runtime error",
	TimeLimitExceeded:   "Time limit exceeded",
	OutputLimitExceeded: "Output limit exceeded",
	SandboxError:        "Sandbox execution error",

	// Battle
	RoomNotFound:       "Battle room not found",
	RoomClosed:         "Battle room is closed",
	RoomNotReady:       "Battle room is not ready",
	RoomFull:           "Battle room is full",
	NotInRoom:          "Connection has not joined this room",
	BattleNotFound:     "Battle not found",
	BattleEnded:        "Battle has already ended",
	BattleCreateFailed: "Failed to create battle",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return 401
	case c == Forbidden:
		return 403
	case c == NotFound, c == ProblemNotFound, c == RoomNotFound, c == BattleNotFound:
		return 404
	case c == RoomClosed, c == RoomNotReady, c == RoomFull, c == BattleEnded:
		return 409
	case c == TooManyRequests, c == SubmitTooFrequently:
		return 429
	case c == ServiceUnavailable:
		return 503
	case c >= 10300 && c < 10400:
		return 400
	case c == InvalidParams, c == CodeTooLarge, c == LanguageNotSupported:
		return 400
	default:
		return 500
	}
}

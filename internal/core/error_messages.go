// Package core provides the business logic for spreadsheet validation runs.
//
// # Error Codes Reference
//
// This file maps technical errors to user-friendly messages with codes for
// support reference. Users can quote the code to support staff.
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Run not found: The validation run does not exist
//	         Action: Start a new run by uploading the sheet again
//	         Patterns: "run not found"
//
//	RUN002 - System busy: Too many runs in progress
//	         Action: Please wait a moment and try again
//	         Patterns: "too many active runs"
//
//	RUN003 - Run failed: The run hit an unrecoverable error
//	         Action: Start a new run; failed runs cannot be resumed
//	         Patterns: "unrecoverable"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - No data: No rows are loaded for this run
//	         Action: Upload a sheet with at least one data row
//	         Patterns: "no data loaded"
//
//	VAL002 - Bad expression: The derivation expression could not be parsed
//	         Action: Use numbers, column names, + - * / and parentheses only
//	         Patterns: "expression"
//
//	VAL003 - Unknown column: The referenced column does not exist
//	         Action: Check the column name against the sheet header
//	         Patterns: "unknown column"
//
//	VAL004 - Invalid input: The request was missing a required value
//	         Action: Review the request and try again
//	         Patterns: "invalid input"
//
// # Fix Errors (FIX001-FIX099)
//
//	FIX001 - Row out of range: The row number does not exist in this sheet
//	         Action: Refresh the run and pick a listed row
//	         Patterns: "out of range"
//
//	FIX002 - Pending fixes: Some rows still need attention
//	         Action: Fix or skip the listed rows before packaging
//	         Patterns: "pending fixes"
//
//	FIX003 - Skipped row: The row was already skipped for this run
//	         Action: Skipped rows go to the rejected output
//	         Patterns: "already skipped"
//
// # State Errors (STATE001-STATE099)
//
//	STATE001 - Wrong step: The run is not at a step that allows this action
//	           Action: Refresh the run to see its current status
//	           Patterns: "illegal status transition"
//
// # Packaging Errors (PKG001-PKG099)
//
//	PKG001 - Artifact not found: The requested output file does not exist
//	         Action: Package the run first, then download
//	         Patterns: "artifact not found"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns come before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Run Errors (RUN001-RUN003)
	// =========================================================================
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "Validation run not found",
			Action:  "Start a new run by uploading the sheet again",
			Code:    "RUN001",
		},
	},
	{
		pattern: "too many active runs",
		msg: UserMessage{
			Message: "System is busy processing other runs",
			Action:  "Please wait a moment and try again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "unrecoverable",
		msg: UserMessage{
			Message: "The run failed and cannot continue",
			Action:  "Start a new run; failed runs cannot be resumed",
			Code:    "RUN003",
		},
	},

	// =========================================================================
	// Fix Errors (FIX001-FIX003)
	// Checked before validation patterns: range errors also say "invalid".
	// =========================================================================
	{
		pattern: "out of range",
		msg: UserMessage{
			Message: "Row number does not exist in this sheet",
			Action:  "Refresh the run and pick a listed row",
			Code:    "FIX001",
		},
	},
	{
		pattern: "pending fixes",
		msg: UserMessage{
			Message: "Some rows still need attention",
			Action:  "Fix or skip the listed rows before packaging",
			Code:    "FIX002",
		},
	},
	{
		pattern: "already skipped",
		msg: UserMessage{
			Message: "This row was already skipped",
			Action:  "Skipped rows go to the rejected output",
			Code:    "FIX003",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL004)
	// =========================================================================
	{
		pattern: "no data loaded",
		msg: UserMessage{
			Message: "No rows are loaded for this run",
			Action:  "Upload a sheet with at least one data row",
			Code:    "VAL001",
		},
	},
	{
		pattern: "expression",
		msg: UserMessage{
			Message: "The derivation expression could not be parsed",
			Action:  "Use numbers, column names, + - * / and parentheses only",
			Code:    "VAL002",
		},
	},
	{
		pattern: "unknown column",
		msg: UserMessage{
			Message: "The referenced column does not exist",
			Action:  "Check the column name against the sheet header",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid input",
		msg: UserMessage{
			Message: "The request is missing a required value",
			Action:  "Review the request and try again",
			Code:    "VAL004",
		},
	},

	// =========================================================================
	// State Errors (STATE001)
	// =========================================================================
	{
		pattern: "illegal status transition",
		msg: UserMessage{
			Message: "The run is not at a step that allows this action",
			Action:  "Refresh the run to see its current status",
			Code:    "STATE001",
		},
	},

	// =========================================================================
	// Packaging Errors (PKG001)
	// =========================================================================
	{
		pattern: "artifact not found",
		msg: UserMessage{
			Message: "The requested output file does not exist",
			Action:  "Package the run first, then download",
			Code:    "PKG001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first pattern match or the ERR000 fallback.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

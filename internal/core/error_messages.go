package core

// error_messages.go maps pipeline errors to operator-facing messages with a
// code for support reference.
//
// # Schema Errors (SCH001-SCH099)
//
//	SCH001 - Schema not found: no descriptor file for the dataset's schema id
//	         Action: Check SCHEMA_DIR and the descriptor file name
//	SCH002 - Schema malformed: descriptor missing ColName or NumberOfColumns
//	         Action: Fix the descriptor; the run touched no files
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - File rejected: a staged file failed a validation stage
//	         Action: Inspect the file in the rejects directory
//	VAL002 - Unreadable file: the file is not valid delimited text
//	         Action: Re-export the file as comma-separated UTF-8
//
// # Store Errors (DB001-DB099)
//
//	DB001 - Connection failed: the relational store could not be opened
//	        Action: Check STORE_DIR permissions or DATABASE_URL
//	DB002 - Schema evolution failed: a column could not be created or added
//	        Action: Check the declared column type in the descriptor
//	DB003 - Row insert failed: a file was rolled back and moved to rejects
//	        Action: Inspect the rejected file at the reported line
//	DB004 - Store busy: another process holds the database lock
//	        Action: Wait for the other process and retry
//	DB005 - Connection refused: the database server is not reachable
//	        Action: Check that the server is running
//
// # Archive and Export Errors
//
//	ARC001 - Archive failed: previous artifacts could not be moved
//	         Action: Check permissions on the archive directory
//	EXP001 - Export failed: the snapshot could not be written
//	         Action: Rows are stored; rerun the export once fixed
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Unknown dataset
//	RUN002 - Run in progress: the run slot stayed busy
//	RUN003 - Run cancelled
//	RUN004 - Run timed out
//
// # Default Error (ERR000)
//
// Sentinel errors are matched first with errors.Is. Remaining errors are
// matched case-insensitively by substring; the first match wins.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/ingestpipe/internal/archive"
	"github.com/JonMunkholm/ingestpipe/internal/schema"
	"github.com/JonMunkholm/ingestpipe/internal/store"
	"github.com/JonMunkholm/ingestpipe/internal/validate"
)

// ErrUnknownDataset is returned for a dataset name with no registration.
var ErrUnknownDataset = errors.New("unknown dataset")

// UserMessage provides operator-facing error information with guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type sentinelMessage struct {
	target error
	msg    UserMessage
}

// sentinelMessages are checked in order with errors.Is. An EvolutionError
// also wraps the driver error, so evolution precedes connection checks.
var sentinelMessages = []sentinelMessage{
	{schema.ErrNotFound, UserMessage{
		Message: "Schema descriptor not found",
		Action:  "Check SCHEMA_DIR and the descriptor file name",
		Code:    "SCH001",
	}},
	{schema.ErrMalformed, UserMessage{
		Message: "Schema descriptor is malformed",
		Action:  "Fix the descriptor; no files were touched",
		Code:    "SCH002",
	}},
	{validate.ErrRejected, UserMessage{
		Message: "File failed validation and was moved to rejects",
		Action:  "Inspect the file in the rejects directory",
		Code:    "VAL001",
	}},
	{store.ErrTableEvolution, UserMessage{
		Message: "Table schema could not be evolved",
		Action:  "Check the declared column type in the descriptor",
		Code:    "DB002",
	}},
	{store.ErrRowInsert, UserMessage{
		Message: "Rows could not be loaded; the file was rolled back and rejected",
		Action:  "Inspect the rejected file at the reported line",
		Code:    "DB003",
	}},
	{store.ErrConnectionFailed, UserMessage{
		Message: "Unable to open the data store",
		Action:  "Check STORE_DIR permissions or DATABASE_URL",
		Code:    "DB001",
	}},
	{archive.ErrArchive, UserMessage{
		Message: "Previous run artifacts could not be archived",
		Action:  "Check permissions on the archive directory",
		Code:    "ARC001",
	}},
	{store.ErrExport, UserMessage{
		Message: "Snapshot export failed",
		Action:  "Rows are stored; rerun the export once the problem is fixed",
		Code:    "EXP001",
	}},
	{ErrUnknownDataset, UserMessage{
		Message: "Unknown dataset",
		Action:  "Use one of the registered datasets",
		Code:    "RUN001",
	}},
	{ErrRunInProgress, UserMessage{
		Message: "Another run is in progress",
		Action:  "Wait for it to finish and try again",
		Code:    "RUN002",
	}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catch errors that reach the operator without a sentinel,
// such as raw driver and context errors.
var errorPatterns = []errorPattern{
	{"parse error", UserMessage{
		Message: "File is not valid delimited text",
		Action:  "Re-export the file as comma-separated UTF-8",
		Code:    "VAL002",
	}},
	{"database is locked", UserMessage{
		Message: "The data store is busy",
		Action:  "Wait for the other process and retry",
		Code:    "DB004",
	}},
	{"connection refused", UserMessage{
		Message: "Database server is not reachable",
		Action:  "Check that the server is running",
		Code:    "DB005",
	}},
	{"context canceled", UserMessage{
		Message: "Run was cancelled",
		Action:  "Start the run again when ready",
		Code:    "RUN003",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "Run timed out",
		Action:  "Try again or raise the timeout",
		Code:    "RUN004",
	}},
}

// defaultMessage is returned when nothing matches (ERR000). Check the logs
// for the underlying error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the pipeline logs for details",
	Code:    "ERR000",
}

// MapError converts an error to an operator-facing message.
//
// Example:
//
//	msg := MapError(fmt.Errorf("load: %w", schema.ErrNotFound))
//	// msg.Code == "SCH001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a display string: "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

package tools

import (
	"errors"
	"fmt"
)

// InputError is a problem with what the user supplied. Its message is safe to
// show as-is.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

func inputErr(format string, args ...any) error {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

// OperationError wraps a failure inside the PDF, image or archive libraries.
type OperationError struct {
	Tool string
	Err  error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// UserMessage is the generic notification shown instead of library details.
func (e *OperationError) UserMessage() string {
	if msg, ok := failureMessages[e.Tool]; ok {
		return msg
	}
	return "Failed to process PDF"
}

var failureMessages = map[string]string{
	ToolSplit:       "Failed to split the PDF",
	ToolDivide:      "Failed to divide the PDF",
	ToolDelete:      "Failed to process PDF",
	ToolExtract:     "Failed to extract pages",
	ToolMerge:       "Failed to merge PDFs",
	ToolSuperMerge:  "Failed to generate PDF",
	ToolImagesToPDF: "Failed to create PDF",
	ToolZipToPDF:    "Failed to create PDF",
	ToolCompress:    "Failed to compress PDF",
	ToolProtect:     "Failed to protect PDF",
	ToolPDFToPNG:    "Failed to convert PDF to PNG",
}

// UserMessage returns the text a caller should surface for err.
func UserMessage(err error) string {
	var ie *InputError
	if errors.As(err, &ie) {
		return ie.Message
	}
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe.UserMessage()
	}
	return "Failed to process request"
}

// IsInputError reports whether err was caused by the user's input.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

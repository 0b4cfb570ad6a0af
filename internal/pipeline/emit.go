package pipeline

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

const defaultContentType = "application/octet-stream"

// ErrUnknownResult is returned by Emit for a nil or foreign Result
var ErrUnknownResult = errors.New("operation returned no result")

// Emit writes a result to the client. A FileResult is streamed from disk; a BufferResult is written directly.
// The caller owns removal of any file the result points at.
func Emit(c *gin.Context, result Result) error {
	switch r := result.(type) {
	case *FileResult:
		if r == nil {
			return ErrUnknownResult
		}
		return emitFile(c, r)
	case *BufferResult:
		if r == nil {
			return ErrUnknownResult
		}
		emitBuffer(c, r)
		return nil
	default:
		return ErrUnknownResult
	}
}

func emitFile(c *gin.Context, r *FileResult) error {
	info, err := os.Stat(r.Path)
	if err != nil {
		return fmt.Errorf("result file is not readable: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("result path %s is a directory", r.Path)
	}

	contentType := r.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	c.Header("Content-Type", contentType)
	c.FileAttachment(r.Path, r.Name)
	return nil
}

func emitBuffer(c *gin.Context, r *BufferResult) {
	disposition := "attachment"
	if r.Inline {
		disposition = "inline"
	}
	if header := mime.FormatMediaType(disposition, map[string]string{"filename": r.Name}); header != "" {
		c.Header("Content-Disposition", header)
	} else {
		c.Header("Content-Disposition", disposition)
	}

	contentType := r.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	c.Data(http.StatusOK, contentType, r.Data)
}

// Fail writes the JSON error body for err
func Fail(c *gin.Context, err *OperationError, requestID string) {
	body := ErrorResponse{
		Message:   err.Message,
		RequestID: requestID,
	}
	if err.Cause != nil {
		body.Error = err.Cause.Error()
	}
	c.AbortWithStatusJSON(err.Status(), body)
}

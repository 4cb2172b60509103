package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/ingestion"
	"github.com/poiesic/normdoc/reindex"
)

// ErrorInfo is the body of every error response.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error ErrorInfo `json:"error"`
}

var errorMap = []struct {
	err    error
	status int
	code   string
}{
	{core.ErrDocumentNotFound, http.StatusNotFound, "document_not_found"},
	{core.ErrTaskNotFound, http.StatusNotFound, "task_not_found"},
	{core.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, "unsupported_format"},
	{core.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "file_too_large"},
	{core.ErrEmptyFilename, http.StatusBadRequest, "empty_filename"},
	{core.ErrEmptyContent, http.StatusBadRequest, "empty_content"},
	{core.ErrInvalidQuery, http.StatusBadRequest, "invalid_query"},
	{core.ErrInvalidDocument, http.StatusBadRequest, "invalid_document"},
	{core.ErrCorruptDocument, http.StatusUnprocessableEntity, "corrupt_document"},
	{core.ErrEmbeddingTimeout, http.StatusServiceUnavailable, "embedding_timeout"},
	{core.ErrEmbeddingProviderUnavailable, http.StatusServiceUnavailable, "embedding_unavailable"},
	{core.ErrVectorIndexUnavailable, http.StatusServiceUnavailable, "vector_index_unavailable"},
	{ingestion.ErrPipelineClosed, http.StatusServiceUnavailable, "shutting_down"},
	{reindex.ErrOrchestratorClosed, http.StatusServiceUnavailable, "shutting_down"},
}

// statusFor maps err to an HTTP status and error code.
func statusFor(err error) (int, string) {
	for _, m := range errorMap {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: ErrorInfo{Code: code, Message: err.Error()}})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: ErrorInfo{Code: "bad_request", Message: message}})
}

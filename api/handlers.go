package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/ingestion"
)

// Upload stores a document and processes it in the background.
func (h *Handler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	if header.Size > h.maxUpload {
		writeError(c, fmt.Errorf("%w: %d bytes", core.ErrFileTooLarge, header.Size))
		return
	}

	file, err := header.Open()
	if err != nil {
		writeError(c, fmt.Errorf("opening upload: %w", err))
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(file, h.maxUpload+1)); err != nil {
		writeError(c, fmt.Errorf("reading upload: %w", err))
		return
	}
	if int64(buf.Len()) > h.maxUpload {
		writeError(c, fmt.Errorf("%w: more than %d bytes", core.ErrFileTooLarge, h.maxUpload))
		return
	}

	result, err := h.svc.Upload(c.Request.Context(), ingestion.UploadRequest{
		Filename:    header.Filename,
		Content:     buf.Bytes(),
		FileType:    c.PostForm("file_type"),
		Category:    c.PostForm("category"),
		ProjectCode: c.PostForm("project_code"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusAccepted
	if result.Duplicate && result.Document.Status != core.StatusUploaded {
		status = http.StatusOK
	}
	c.JSON(status, UploadResponse{
		Id:        result.Document.Id,
		Status:    result.Document.Status,
		Duplicate: result.Duplicate,
	})
}

// ListDocuments lists documents, optionally filtered.
func (h *Handler) ListDocuments(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	docs, err := h.svc.Documents(c.Request.Context(), core.DocumentFilter{
		Status:   core.DocumentStatus(c.Query("status")),
		Category: c.Query("category"),
		Type:     core.DocumentType(c.Query("type")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	data := make([]DocumentResponse, len(docs))
	for i, d := range docs {
		data[i] = newDocumentResponse(d)
	}
	c.JSON(http.StatusOK, gin.H{
		"data":   data,
		"limit":  limit,
		"offset": offset,
	})
}

// GetDocument returns one document.
func (h *Handler) GetDocument(c *gin.Context) {
	doc, err := h.svc.Document(c.Request.Context(), core.ID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDocumentResponse(doc))
}

// Search runs a hybrid search.
func (h *Handler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Limit == 0 {
		req.Limit = h.searchLimit
	}

	results, err := h.svc.Search(c.Request.Context(), req.Query, core.SearchFilter{
		Category:     req.Category,
		DocumentType: req.DocumentType,
		ProjectCode:  req.ProjectCode,
	}, req.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = newSearchHit(r)
	}
	c.JSON(http.StatusOK, SearchResponse{Query: req.Query, Results: hits})
}

// Reindex starts a reindex. mode=sync blocks and returns the summary;
// mode=async (the default) returns a task ID.
func (h *Handler) Reindex(c *gin.Context) {
	var req ReindexRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if req.Mode == "" {
		req.Mode = c.DefaultQuery("mode", "async")
	}

	switch req.Mode {
	case "sync":
		summary, err := h.svc.Reindex(c.Request.Context(), req.toRequest())
		if err != nil && summary == nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	case "async":
		id, err := h.svc.StartReindex(c.Request.Context(), req.toRequest())
		if err != nil {
			writeError(c, err)
			return
		}
		c.Header("Location", "/v1/reindex/"+id.String())
		c.JSON(http.StatusAccepted, ReindexAccepted{TaskId: id, Status: core.TaskRunning})
	default:
		badRequest(c, fmt.Sprintf("mode must be sync or async, got %q", req.Mode))
	}
}

// ListTasks returns all tracked reindex tasks.
func (h *Handler) ListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.svc.ReindexTasks()})
}

// GetTask returns the status of a reindex task.
func (h *Handler) GetTask(c *gin.Context) {
	task, err := h.svc.ReindexStatus(core.ID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// CancelTask cancels a reindex task and returns its status.
func (h *Handler) CancelTask(c *gin.Context) {
	id := core.ID(c.Param("id"))
	if err := h.svc.CancelReindex(id); err != nil {
		writeError(c, err)
		return
	}
	task, err := h.svc.ReindexStatus(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// Stats returns aggregate counts.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.svc.Statistics(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

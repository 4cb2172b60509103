// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/poiesic/normdoc/parser"
)

const (
	// DefaultSearchLimit is used when a search request sets no limit.
	DefaultSearchLimit = 10
)

// Handler serves the HTTP API.
type Handler struct {
	svc         Service
	maxUpload   int64
	searchLimit int
	logger      *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithMaxUploadSize caps uploaded file size in bytes.
func WithMaxUploadSize(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// WithSearchLimit sets the result count used when a request sets none.
func WithSearchLimit(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.searchLimit = n
		}
	}
}

// WithLogger sets a custom logger for request logging.
// If not provided, slog.Default() will be used.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a handler over svc.
func NewHandler(svc Service, opts ...Option) *Handler {
	h := &Handler{
		svc:         svc,
		maxUpload:   parser.DefaultMaxFileSize,
		searchLimit: DefaultSearchLimit,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "api")
	return h
}

// NewRouter builds the gin engine. mode is a gin mode (debug, release, test);
// empty keeps the current one.
func NewRouter(svc Service, mode string, opts ...Option) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	h := NewHandler(svc, opts...)

	r := gin.New()
	r.Use(requestID(), requestLogger(h.logger), gin.Recovery())
	r.MaxMultipartMemory = 32 << 20

	r.GET("/health", health)

	v1 := r.Group("/v1")
	{
		documents := v1.Group("/documents")
		{
			documents.POST("", h.Upload)
			documents.GET("", h.ListDocuments)
			documents.GET("/:id", h.GetDocument)
		}

		v1.POST("/search", h.Search)

		tasks := v1.Group("/reindex")
		{
			tasks.POST("", h.Reindex)
			tasks.GET("", h.ListTasks)
			tasks.GET("/:id", h.GetTask)
			tasks.DELETE("/:id", h.CancelTask)
		}

		v1.GET("/stats", h.Stats)
	}
	return r
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "normdoc",
	})
}

// Package api exposes the knowledge base over HTTP with gin.
//
// Routes:
//
//	POST   /v1/documents      multipart upload, 202 with id and status
//	GET    /v1/documents      list with status, category and type filters
//	GET    /v1/documents/:id  document status and metadata
//	POST   /v1/search         hybrid search
//	POST   /v1/reindex        reindex, mode=sync blocks, mode=async returns a task id
//	GET    /v1/reindex        tracked reindex tasks
//	GET    /v1/reindex/:id    reindex task status
//	DELETE /v1/reindex/:id    cancel a reindex task
//	GET    /v1/stats          aggregate counts
//	GET    /health            liveness
package api

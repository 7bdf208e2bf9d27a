package http

import (
	"github.com/gin-gonic/gin"

	"github.com/tabvault/tabvault/internal/types"
)

// SaveSession captures the current tabs into a new session.
func (h *Handlers) SaveSession(c *gin.Context) {
	var req types.SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	created, err := h.sessions.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, created)
}

// ListSessions returns all session metadata, most recent first.
func (h *Handlers) ListSessions(c *gin.Context) {
	metas, err := h.sessions.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, metas)
}

// GetSession returns one session with tabs materialized.
func (h *Handlers) GetSession(c *gin.Context) {
	found, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if found == nil {
		notFound(c, "session")
		return
	}
	ok(c, found)
}

// UpdateSession applies partial updates to a session.
func (h *Handlers) UpdateSession(c *gin.Context) {
	var req types.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	updated, err := h.sessions.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	if updated == nil {
		notFound(c, "session")
		return
	}
	ok(c, updated)
}

// DeleteSession removes a session and its metadata.
func (h *Handlers) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// RestoreSession reopens a session's tabs.
func (h *Handlers) RestoreSession(c *gin.Context) {
	var req types.RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		badRequest(c, err)
		return
	}

	outcome, err := h.sessions.Restore(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, outcome)
}

// DuplicateSession deep-copies a session.
func (h *Handlers) DuplicateSession(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		badRequest(c, err)
		return
	}

	dup, err := h.sessions.Duplicate(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, dup)
}

// MergeSessions combines two or more sessions into a new one.
func (h *Handlers) MergeSessions(c *gin.Context) {
	var req types.MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	merged, err := h.sessions.Merge(c.Request.Context(), req.IDs, req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, merged)
}

// SplitSession partitions a session by domain.
func (h *Handlers) SplitSession(c *gin.Context) {
	parts, err := h.sessions.Split(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, parts)
}

package http

import (
	"encoding/base64"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/tabvault/tabvault/internal/types"
)

// ExportSessions serializes sessions to the exchange format, returned as a
// base64 blob so it survives any transport untouched.
func (h *Handlers) ExportSessions(c *gin.Context) {
	var req types.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		badRequest(c, err)
		return
	}

	blob, err := h.backups.ExportSessionsJSON(c.Request.Context(), req.IDs, req.IncludeSettings)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"data": base64.StdEncoding.EncodeToString(blob)})
}

// ImportSessions imports an exchange blob. The payload may be raw JSON or the
// base64 form produced by export.
func (h *Handlers) ImportSessions(c *gin.Context) {
	var req types.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	data := []byte(req.Data)
	var quoted string
	if err := sonic.Unmarshal(req.Data, &quoted); err == nil {
		if decoded, err := base64.StdEncoding.DecodeString(quoted); err == nil {
			data = decoded
		} else {
			data = []byte(quoted)
		}
	}

	result, err := h.backups.ImportJSON(c.Request.Context(), data, req.Overwrite, req.ImportSettings)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, result)
}

// CreateVersion snapshots the current session into its history.
func (h *Handlers) CreateVersion(c *gin.Context) {
	version, err := h.backups.CreateVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, version)
}

// ListVersions returns a session's version history.
func (h *Handlers) ListVersions(c *gin.Context) {
	versions, err := h.backups.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, versions)
}

// RestoreVersion overwrites the live session with a historical snapshot.
func (h *Handlers) RestoreVersion(c *gin.Context) {
	restored, err := h.backups.RestoreVersion(c.Request.Context(), c.Param("id"), c.Param("versionId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, restored)
}

// DeleteVersionHistory drops all snapshots for a session.
func (h *Handlers) DeleteVersionHistory(c *gin.Context) {
	if err := h.backups.DeleteVersionHistory(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

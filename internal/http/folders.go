package http

import (
	"github.com/gin-gonic/gin"
)

type folderRequest struct {
	Name     string `json:"name"`
	Color    string `json:"color"`
	Icon     string `json:"icon"`
	ParentID string `json:"parent_id"`
}

type folderUpdateRequest struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
	Icon  *string `json:"icon"`
}

// ListFolders returns all folders.
func (h *Handlers) ListFolders(c *gin.Context) {
	folders, err := h.sessions.ListFolders(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, folders)
}

// CreateFolder creates a folder.
func (h *Handlers) CreateFolder(c *gin.Context) {
	var req folderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	folder, err := h.sessions.CreateFolder(c.Request.Context(), req.Name, req.Color, req.Icon, req.ParentID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, folder)
}

// UpdateFolder renames or restyles a folder.
func (h *Handlers) UpdateFolder(c *gin.Context) {
	var req folderUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	folder, err := h.sessions.UpdateFolder(c.Request.Context(), c.Param("id"), req.Name, req.Color, req.Icon)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, folder)
}

// DeleteFolder removes a folder, cascading to direct children.
func (h *Handlers) DeleteFolder(c *gin.Context) {
	if err := h.sessions.DeleteFolder(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

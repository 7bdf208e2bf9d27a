package http

import (
	"github.com/gin-gonic/gin"

	"github.com/tabvault/tabvault/internal/search"
)

// SearchSessions runs a fuzzy query over session metadata.
func (h *Handlers) SearchSessions(c *gin.Context) {
	matches, err := h.index.SearchSessions(c.Request.Context(), c.Query("q"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, matches)
}

// SearchWithFilters composes a text query with structural filters.
func (h *Handlers) SearchWithFilters(c *gin.Context) {
	var filters search.Filters
	if err := c.ShouldBindJSON(&filters); err != nil {
		badRequest(c, err)
		return
	}

	matches, err := h.index.SearchWithFilters(c.Request.Context(), filters)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, matches)
}

// SearchTabs searches tab titles and URLs, either within one session
// (session_id query param) or across all sessions.
func (h *Handlers) SearchTabs(c *gin.Context) {
	ctx := c.Request.Context()
	query := c.Query("q")

	if sessionID := c.Query("session_id"); sessionID != "" {
		matches, err := h.index.SearchTabsInSession(ctx, sessionID, query)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, matches)
		return
	}

	matches, err := h.index.SearchTabsGlobal(ctx, query)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, matches)
}

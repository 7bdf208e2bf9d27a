package http

import (
	"github.com/gin-gonic/gin"
)

// GetSettings returns settings merged over defaults.
func (h *Handlers) GetSettings(c *gin.Context) {
	settings, err := h.store.GetSettings(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, settings)
}

// UpdateSettings applies a partial settings update over the stored values and
// reschedules the backup timer when the interval changed.
func (h *Handlers) UpdateSettings(c *gin.Context) {
	ctx := c.Request.Context()
	settings, err := h.store.GetSettings(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	previous := settings.BackupIntervalMinutes

	// Binding over the current record keeps omitted fields untouched.
	if err := c.ShouldBindJSON(&settings); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.store.SaveSettings(ctx, settings); err != nil {
		fail(c, err)
		return
	}

	if settings.BackupIntervalMinutes != previous {
		h.machine.Reschedule(settings.BackupIntervalMinutes)
	}
	ok(c, settings)
}

// GetStatistics returns the usage counters.
func (h *Handlers) GetStatistics(c *gin.Context) {
	stats, err := h.store.GetStatistics(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, stats)
}

// ClearStatistics resets the usage counters.
func (h *Handlers) ClearStatistics(c *gin.Context) {
	if err := h.store.ClearStatistics(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

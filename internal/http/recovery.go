package http

import (
	"github.com/gin-gonic/gin"
)

// GetEmergencySessions returns the emergency ring buffer, newest first.
func (h *Handlers) GetEmergencySessions(c *gin.Context) {
	sessions, err := h.sessions.EmergencySessions(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, sessions)
}

// TriggerEmergencyBackup takes one backup immediately.
func (h *Handlers) TriggerEmergencyBackup(c *gin.Context) {
	session, err := h.sessions.CreateEmergency(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, session)
}

// ClearEmergencySessions empties the ring buffer.
func (h *Handlers) ClearEmergencySessions(c *gin.Context) {
	if err := h.sessions.ClearEmergencySessions(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// CheckCrash reports whether an unclean shutdown was detected.
func (h *Handlers) CheckCrash(c *gin.Context) {
	detected, at, err := h.machine.WasCrashDetected(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"detected": detected, "detected_at": at})
}

// ClearCrash acknowledges a detected crash.
func (h *Handlers) ClearCrash(c *gin.Context) {
	if err := h.machine.ClearCrashDetection(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

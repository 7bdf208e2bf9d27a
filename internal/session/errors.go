package session

import "errors"

var (
	// ErrSessionNotFound is returned by operations that require an existing
	// session. Read accessors return nil instead.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoValidTabs is returned when a capture yields zero storable tabs.
	ErrNoValidTabs = errors.New("no valid tabs to save")

	// ErrNoTabsToBackup is the emergency-capture variant of ErrNoValidTabs.
	ErrNoTabsToBackup = errors.New("no tabs to backup")

	// ErrNotEnoughSessions is returned when a merge names fewer than two
	// source sessions.
	ErrNotEnoughSessions = errors.New("need at least 2 sessions to merge")

	// ErrCorruptSession marks a record whose flags and tab data disagree,
	// e.g. an uncompressed session with no tabs but a leftover compressed
	// blob. Restoring zero tabs silently would look like data loss.
	ErrCorruptSession = errors.New("session tab data is corrupt")

	// ErrFolderNotFound is returned when a folder id does not exist.
	ErrFolderNotFound = errors.New("folder not found")
)

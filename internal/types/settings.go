package types

// Settings is the process-wide user configuration record. It is stored as a
// single merged record: reads always overlay stored values on top of
// DefaultSettings so newly introduced fields backfill transparently.
type Settings struct {
	CompressionThreshold  int      `json:"compression_threshold"`
	LazyLoad              bool     `json:"lazy_load"`
	RestorePinned         bool     `json:"restore_pinned"`
	SaveGroups            bool     `json:"save_groups"`
	CaptureScroll         bool     `json:"capture_scroll"`
	CaptureFormData       bool     `json:"capture_form_data"`
	DetectDuplicates      bool     `json:"detect_duplicates"`
	ExcludedDomains       []string `json:"excluded_domains"`
	MaxEmergencySessions  int      `json:"max_emergency_sessions"`
	MaxVersionsPerSession int      `json:"max_versions_per_session"`
	BackupIntervalMinutes int      `json:"backup_interval_minutes"`
	MaxTags               int      `json:"max_tags"`
}

// DefaultSettings returns the documented default for every settings field.
func DefaultSettings() Settings {
	return Settings{
		CompressionThreshold:  20,
		LazyLoad:              true,
		RestorePinned:         true,
		SaveGroups:            true,
		CaptureScroll:         true,
		CaptureFormData:       false,
		DetectDuplicates:      true,
		ExcludedDomains:       []string{},
		MaxEmergencySessions:  5,
		MaxVersionsPerSession: 10,
		BackupIntervalMinutes: 15,
		MaxTags:               10,
	}
}

// Statistics accumulates monotonic usage counters. Counters are updated
// additively and never reset except by an explicit clear.
type Statistics struct {
	SessionsSaved    int64  `json:"sessions_saved"`
	TabsSaved        int64  `json:"tabs_saved"`
	SessionsRestored int64  `json:"sessions_restored"`
	TabsRestored     int64  `json:"tabs_restored"`
	LastUsedAt       *int64 `json:"last_used_at,omitempty"` // epoch millis
}

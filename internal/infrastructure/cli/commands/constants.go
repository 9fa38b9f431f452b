package commands

// Default flag values
const (
	DefaultHistoryLimit  = 10
	DefaultRecentLimit   = 5
	DefaultSummaryLines  = 20
	DefaultTopToolsLimit = 10
)

// Error messages
const (
	ErrToolRequired   = "--tool is required"
	ErrSchemeRequired = "--scheme is required"
	ErrInvalidLimit   = "--limit must be >= 1"
)

// Success messages
const (
	MsgConfigurationValid       = "Configuration valid"
	MsgNoDifferencesFromDefault = "No differences from default configuration."
	MsgNoDevicesFound           = "No available devices match."
	MsgNoPreferredDevice        = "No preferred device."
	MsgNoBuildsRecorded         = "No builds recorded yet."
	MsgNoCachedResponses        = "No cached responses."
	MsgResponsesCleared         = "Response cache cleared."
	MsgDevicesCleared           = "Device cache cleared; usage and boot history kept."
	MsgProjectsCleared          = "Project cache cleared."
	MsgPersistenceDisabledHint  = "Persistence is disabled; state will not survive this process."
	MsgResponseNotPersisted     = "Persistence is disabled, so this id expires with this process. Run 'xcmcp persistence enable' to read it from later commands."
)

package constant

// Event types published on the bus as silo.<type>.
const (
	EventSearchSubmitted = "search.submitted"
	EventSearchFailed    = "search.failed"
	EventChatStarted     = "chat.started"
	EventLiveEnded       = "live.ended"
)

// TopicSessionState carries state snapshots from the orchestrators to the hub.
const TopicSessionState = "session.state"

const (
	LocalSessionID = "session_id"
	LocalClientID  = "client_id"
)

// Control messages a browser sends on the live socket.
const (
	LiveControlPauseToggle   = "pause_toggle"
	LiveControlEnd           = "end"
	LiveControlPlaybackEnded = "playback_ended"
	LiveControlMicDenied     = "mic_denied"
)

// MaxImageBytes bounds a decoded query image.
const MaxImageBytes = 7 * 1024 * 1024

package constant

// Ключи для структурированных логов
const (
	Error     = "error"
	UserID    = "user_id"
	UserName  = "user_name"
	SessionID = "session_id"
	CallID    = "call_id"
	EnvType   = "envelope_type"
)

package log

const (
	// HTTP
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldRoute     = "route"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"
	FieldUpgrade   = "ws_upgrade"

	// Actor, set by pkg/middleware under the same keys
	FieldUserID = "user_id"
	FieldRole   = "role"

	FieldService = "service"

	// Chat relay
	FieldConnID    = "conn_id"
	FieldRoom      = "room"
	FieldMessageID = "message_id"

	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)

package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Service
	FieldService    = "service"
	FieldInstanceID = "instance_id"

	// Overlay
	FieldStreamerID = "streamer_id"
	FieldUserID     = "user_id"
	FieldEvent      = "event"
	FieldChannel    = "channel"
	FieldConnID     = "conn_id"
	FieldRole       = "role"
	FieldSource     = "source"
)

package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	// Terminal failures: the session must tear down and the user has to
	// reconnect explicitly.
	ReasonTransportDial     ReasonCode = "transport_dial"
	ReasonTransportClosed   ReasonCode = "transport_closed"
	ReasonTransportSend     ReasonCode = "transport_send"
	ReasonHandshake         ReasonCode = "handshake"
	ReasonDevicePermission  ReasonCode = "device_permission"
	ReasonDeviceUnavailable ReasonCode = "device_unavailable"

	// Recoverable anomalies: logged and ignored, session continues.
	ReasonProtocolAnomaly ReasonCode = "protocol_anomaly"

	// Backend-reported semantic errors: surfaced as a notice, session stays
	// connected.
	ReasonBackendSemantic ReasonCode = "backend_semantic"

	// Tool-call failures: always answered back to the backend, never fatal.
	ReasonToolUnknown ReasonCode = "tool_unknown"
	ReasonToolTimeout ReasonCode = "tool_timeout"
	ReasonToolFailed  ReasonCode = "tool_failed"

	ReasonFinanceQuery ReasonCode = "finance_query"
)

package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldSensorID    = "sensor_id"
	FieldAccountID   = "account_id"
	FieldAccountType = "account_type"
	FieldSnapshotID  = "snapshot_id"
	FieldNetWorth    = "net_worth_cents"
	FieldAccounts    = "accounts"
	FieldInterval    = "interval"
	FieldSheetRef    = "sheet_ref"
)

// Components defines standard component names
const (
	ComponentApp         = "app"
	ComponentHTTP        = "http"
	ComponentMonarch     = "monarch"
	ComponentCoordinator = "coordinator"
	ComponentSensor      = "sensor"
	ComponentStorage     = "storage"
	ComponentAMQP        = "amqp"
	ComponentExporter    = "exporter"
	ComponentCache       = "cache"
	ComponentConfig      = "config"
)

// Operations defines standard operation names
const (
	OpLogin    = "login"
	OpRefresh  = "refresh"
	OpFetch    = "fetch"
	OpPersist  = "persist"
	OpPublish  = "publish"
	OpConsume  = "consume"
	OpExport   = "export"
	OpPrune    = "prune"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"

	FieldMonth      = "month"
	FieldBudgetID   = "budget_id"
	FieldBudgetName = "budget_name"
	FieldCategoryID = "category_id"
	FieldAccountIDs = "account_ids"
	FieldGeneration = "generation"

	FieldJobID       = "job_id"
	FieldJobStatus   = "job_status"
	FieldProgress    = "progress"
	FieldTxnCount    = "transaction_count"
	FieldCategorized = "categorized_count"
)

// Components defines standard component names
const (
	ComponentApp          = "app"
	ComponentHTTP         = "http"
	ComponentSummary      = "summary"
	ComponentResolver     = "resolver"
	ComponentOrchestrator = "orchestrator"
	ComponentBackend      = "backend"
	ComponentStorage      = "storage"
	ComponentAMQP         = "amqp"
	ComponentExport       = "export"
	ComponentCache        = "cache"
)

// Operations defines standard operation names
const (
	OpAggregate = "aggregate"
	OpResolve   = "resolve"
	OpSubmit    = "submit"
	OpPoll      = "poll"
	OpCancel    = "cancel"
	OpRetry     = "retry"
	OpExport    = "export"
	OpList      = "list"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)

package telemetry

// Attribute names used on spans
const (
	// Operation attributes, one span per conversion request
	AttrOperationName   = "pdfoffice.operation.name"   // Operation identifier (e.g., "merge")
	AttrOperationInputs = "pdfoffice.operation.inputs" // Number of staged input files
	AttrOperationParams = "pdfoffice.operation.params" // Sanitised form fields (JSON)
	AttrRequestID       = "pdfoffice.request.id"       // Request identifier echoed in X-Request-ID

	// External process attributes
	AttrProcessBinary   = "process.executable.name"
	AttrProcessArgCount = "process.command_args.count"

	// Result attributes shared by all spans
	AttrResultSuccess = "pdfoffice.result.success" // Execution success (boolean)
	AttrResultError   = "pdfoffice.result.error"   // Error message if failed (string)
)

// Span names
const (
	SpanNameOperation = "pdfoffice.operation" // Conversion request span
	SpanNameProcess   = "converter.process"   // External converter span
	SpanNameHTTP      = "pdfoffice.http"      // Inbound HTTP request span
)

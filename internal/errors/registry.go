package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Key Errors (E001-E099)
	// ============================================

	"E001": {
		Category:   CategoryKey,
		Message:    "Empty shared state key",
		Suggestion: `Pass a non-empty key, e.g. UseSharedState("counter", 0). Prefix it with @ to persist it.`,
	},

	// ============================================
	// Persistence Errors (E100-E199)
	// ============================================

	"E101": {
		Category:   CategoryPersistence,
		Message:    "Value could not be serialized",
		Suggestion: "Durable values must be encodable by the configured codec. The in-memory value was kept.",
	},
	"E102": {
		Category:   CategoryPersistence,
		Message:    "Durable record could not be decoded",
		Suggestion: "The record was treated as missing. Delete the key to discard the corrupt record.",
	},
	"E103": {
		Category:   CategoryPersistence,
		Message:    "Storage write failed",
		Suggestion: "The in-memory value was kept. Check quota and permissions of the storage medium.",
	},
	"E104": {
		Category:   CategoryPersistence,
		Message:    "Storage read failed",
		Suggestion: "The record was treated as missing.",
	},
	"E105": {
		Category:   CategoryPersistence,
		Message:    "Storage remove failed",
		Suggestion: "The in-memory cell was removed; the durable record may reappear after a reload.",
	},
	"E106": {
		Category: CategoryPersistence,
		Message:  "Storage is closed",
	},

	// ============================================
	// Hub Errors (E200-E299)
	// ============================================

	"E201": {
		Category:   CategoryProtocol,
		Message:    "Invalid hub frame",
		Suggestion: `Frames are JSON objects of the form {"type":"event","event":{...}}.`,
	},
	"E202": {
		Category: CategoryProtocol,
		Message:  "Hub connection closed",
	},

	// ============================================
	// Config Errors (E300-E399)
	// ============================================

	"E301": {
		Category:   CategoryConfig,
		Message:    "Invalid configuration",
		Suggestion: "Run with defaults by removing the offending field.",
	},
	"E302": {
		Category:   CategoryConfig,
		Message:    "Unsupported configuration format",
		Suggestion: "Use sharedstate.json, sharedstate.toml or sharedstate.yaml.",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

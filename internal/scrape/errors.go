package scrape

import "fmt"

// Error codes returned at the scraper boundary. Scrapers never panic and
// never return bare errors to the orchestrator; every failure maps to one
// of these codes so a run log can always be written.
const (
	ErrNone           = 0
	ErrConfigNotFound = 100
	ErrPageAccess     = 200
	ErrFrameAccess    = 210
	ErrLocatorMissing = 300
	ErrRowParsing     = 310
	ErrPagination     = 320
	ErrDataProcessing = 330
	ErrMissingTitle   = 340
	ErrMissingURL     = 350
	ErrDateParse      = 360
	ErrRenderEngine   = 400
	ErrUnknown        = 900
)

var errorNames = map[int]string{
	ErrNone:           "success",
	ErrConfigNotFound: "configuration not found",
	ErrPageAccess:     "page access error",
	ErrFrameAccess:    "frame access error",
	ErrLocatorMissing: "locator not found",
	ErrRowParsing:     "row parsing error",
	ErrPagination:     "pagination error",
	ErrDataProcessing: "data processing error",
	ErrMissingTitle:   "missing title",
	ErrMissingURL:     "missing url",
	ErrDateParse:      "date parse error",
	ErrRenderEngine:   "rendering engine error",
	ErrUnknown:        "unknown error",
}

// ErrorName returns the human-readable name for a scrape error code.
func ErrorName(code int) string {
	if name, ok := errorNames[code]; ok {
		return name
	}
	return fmt.Sprintf("error %d", code)
}

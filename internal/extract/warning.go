package extract

import "fmt"

// Extraction stages that can fail without failing the document.
const (
	StageLayout = "layout"
	StageText   = "text"
	StageTables = "tables"
	StageImages = "images"
)

// Warning records a best-effort extraction step that failed on one page.
// Callers may log and ignore it; it distinguishes "nothing found" from "extractor failed".
type Warning struct {
	Page  int
	Stage string
	Err   error
}

func newWarning(page int, stage string, err error) *Warning {
	return &Warning{Page: page, Stage: stage, Err: err}
}

func (w *Warning) Error() string {
	return fmt.Sprintf("page %d %s: %v", w.Page, w.Stage, w.Err)
}

func (w *Warning) Unwrap() error {
	return w.Err
}

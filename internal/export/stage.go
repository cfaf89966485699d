// Package export turns a report into a downloadable PDF.
package export

// Stage is a step of the export pipeline.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageMounting    Stage = "mounting"
	StageSettling    Stage = "settling"
	StageRasterizing Stage = "rasterizing"
	StageAssembling  Stage = "assembling"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Terminal reports whether no further stage follows.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

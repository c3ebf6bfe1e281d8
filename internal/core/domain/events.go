package domain

import (
	"os"
	"sync"
)

// Stage names the pipeline step a progress event reports on.
type Stage string

const (
	StageProfiled          Stage = "profiled"
	StageAdvisory          Stage = "advisory"
	StageExpanding         Stage = "expanding"
	StageResolvingMetadata Stage = "resolving_metadata"
	StageMetadataResolved  Stage = "metadata_resolved"
	StageTrying            Stage = "trying"
	StageOversize          Stage = "oversize"
)

// State is a pipeline state-machine state.
type State string

const (
	StateInit             State = "INIT"
	StateProfiled         State = "PROFILED"
	StateMetadataResolved State = "METADATA_RESOLVED"
	StateTrying           State = "TRYING"
	StateDelivered        State = "DELIVERED"
	StateDurationRejected State = "DURATION_REJECTED"
	StateExhausted        State = "EXHAUSTED"
	StateError            State = "ERROR"
)

// ResultKind is the user-facing class of a terminal result.
type ResultKind string

const (
	ResultDelivered ResultKind = "DELIVERED"
	ResultRejected  ResultKind = "REJECTED"
	ResultFailed    ResultKind = "FAILED"
)

// Progress is a non-terminal pipeline event.
type Progress struct {
	Stage  Stage
	Detail string
}

// Result is the single terminal event of a run.
type Result struct {
	Kind     ResultKind
	State    State
	Reason   string
	Metadata *MediaMetadata
	Artifact *Artifact
	Tier     string

	// TiersTried lists tier labels in the order they were attempted.
	TiersTried []string

	// RecordID is 0 when no attempt record was created.
	RecordID int64

	// OfferAlternateKind is set when a video ran out of ladder; the
	// caller may start a new audio request.
	OfferAlternateKind bool

	Err error
}

// Event is either a Progress or a Result.
type Event struct {
	Progress *Progress
	Result   *Result
}

// Artifact is a produced media file that has been moved out of its
// attempt workspace. The consumer owns it and must call Release.
type Artifact struct {
	Path      string
	SizeBytes int64
	Tier      string

	once sync.Once
}

// NewArtifact wraps a file that now belongs to the caller.
func NewArtifact(path string, size int64, tier string) *Artifact {
	return &Artifact{Path: path, SizeBytes: size, Tier: tier}
}

// Release deletes the file. Safe to call more than once.
func (a *Artifact) Release() error {
	if a == nil {
		return nil
	}
	var err error
	a.once.Do(func() {
		if rmErr := os.Remove(a.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = rmErr
		}
	})
	return err
}

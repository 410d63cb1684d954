// Package generation defines the boundary to the external guide-generation
// provider and the artifact shape it returns.
package generation

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Input identifies one generation attempt: the owning job and the resolved
// source document to turn into structured step content.
type Input struct {
	JobID       uuid.UUID
	DocumentURL string
}

// Step is a single generated assembly step.
type Step struct {
	Title           string `json:"title"`
	Instruction     string `json:"instruction"`
	IllustrationURL string `json:"illustrationUrl,omitempty"`
	Tip             string `json:"tip,omitempty"`
}

// Metadata records which models produced the artifact and what was read.
type Metadata struct {
	PrimaryModel    string `json:"primaryModel"`
	SecondaryModel  string `json:"secondaryModel,omitempty"`
	SourcePageCount int    `json:"sourcePageCount"`
}

// Artifact is the provider's output for one generation attempt.
type Artifact struct {
	Steps             []Step   `json:"steps"`
	OverallConfidence float64  `json:"overallConfidence"`
	QualityFlags      []string `json:"qualityFlags,omitempty"`
	Metadata          Metadata `json:"metadata"`
}

func (a Artifact) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

func UnmarshalArtifact(raw []byte) (*Artifact, error) {
	var artifact Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// Generator is the external generation boundary. Implementations may make
// several provider calls per invocation; the dispatcher budgets for that
// through the rate governor before invoking.
type Generator interface {
	Generate(ctx context.Context, input Input) (*Artifact, error)
}

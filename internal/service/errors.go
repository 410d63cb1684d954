package service

import (
	"fmt"

	"github.com/google/uuid"
)

type ErrProductNotFound struct {
	error
}

func NewErrProductNotFound(id uuid.UUID) *ErrProductNotFound {
	return &ErrProductNotFound{fmt.Errorf("product %s not found", id)}
}

type ErrNoSourceDocument struct {
	error
}

func NewErrNoSourceDocument(productID uuid.UUID) *ErrNoSourceDocument {
	return &ErrNoSourceDocument{fmt.Errorf("product %s has no source document to generate from", productID)}
}

type ErrJobAlreadyActive struct {
	error
}

func NewErrJobAlreadyActive(productID, jobID uuid.UUID) *ErrJobAlreadyActive {
	return &ErrJobAlreadyActive{fmt.Errorf("product %s already has active job %s", productID, jobID)}
}

type ErrJobNotFound struct {
	error
}

func NewErrJobNotFound(id uuid.UUID) *ErrJobNotFound {
	return &ErrJobNotFound{fmt.Errorf("job %s not found", id)}
}

type ErrInvalidJobState struct {
	error
}

func NewErrInvalidJobState(id uuid.UUID, status, operation string) *ErrInvalidJobState {
	return &ErrInvalidJobState{fmt.Errorf("cannot %s job %s in status %q", operation, id, status)}
}

type ErrNoStoredArtifact struct {
	error
}

func NewErrNoStoredArtifact(id uuid.UUID) *ErrNoStoredArtifact {
	return &ErrNoStoredArtifact{fmt.Errorf("job %s has no stored artifact to publish", id)}
}

// Package directory exposes the practitioner and patient registry the
// scheduler consumes. The scheduler only ever reads here; ownership of
// the records sits with the clinic administration screens.
package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrDirectoryUnavailable = errors.New("directory unavailable")

type Practitioner struct {
	ID          uuid.UUID
	DisplayName string
	Specialty   *string
}

type Patient struct {
	ID          uuid.UUID
	DisplayName string
	Email       *string
}

type Service interface {
	ListPractitioners(ctx context.Context) ([]Practitioner, error)
	ListPatients(ctx context.Context) ([]Patient, error)
}

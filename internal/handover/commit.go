package handover

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nurseos/internal/fhir"
)

const categoryCode = "handover"

// CommitRequest is what every commit strategy receives.
type CommitRequest struct {
	PatientID string
	Shift     Shift
	Content   string
}

// CommitStrategy is one way of storing a handover upstream. Strategies are
// tried in order until one succeeds; this is not a retry on transient errors.
type CommitStrategy struct {
	Name   string
	Commit func(ctx context.Context, req CommitRequest) error
}

type AttemptError struct {
	Strategy string
	Err      error
}

func (e AttemptError) Error() string {
	return e.Strategy + ": " + e.Err.Error()
}

func (e AttemptError) Unwrap() error {
	return e.Err
}

// CommitError reports that every strategy failed, one AttemptError per
// strategy in the order they ran.
type CommitError struct {
	Attempts []AttemptError
}

func (e *CommitError) Error() string {
	if len(e.Attempts) == 0 {
		return "no commit strategy configured"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Error()
	}
	return "commit failed: " + strings.Join(parts, "; ")
}

func (e *CommitError) Unwrap() []error {
	out := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		out[i] = a
	}
	return out
}

// Last is the error of the final attempt, the one shown to the user.
func (e *CommitError) Last() error {
	if len(e.Attempts) == 0 {
		return errors.New("no commit strategy configured")
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// DocumentWriter is the upstream document API in both of its call forms.
type DocumentWriter interface {
	SaveDocument(ctx context.Context, doc fhir.Document) error
	SaveDocumentPositional(ctx context.Context, patientID, category, title, content string) error
}

// DefaultStrategies tries the structured call first and falls back to the
// positional one.
func DefaultStrategies(w DocumentWriter) []CommitStrategy {
	return []CommitStrategy{
		{
			Name: "structured",
			Commit: func(ctx context.Context, req CommitRequest) error {
				return w.SaveDocument(ctx, fhir.Document{
					PatientID:    req.PatientID,
					Content:      req.Content,
					CategoryCode: categoryCode,
				})
			},
		},
		{
			Name: "positional",
			Commit: func(ctx context.Context, req CommitRequest) error {
				return w.SaveDocumentPositional(ctx, req.PatientID, categoryCode, fmt.Sprintf("Entrega %s", req.Shift), req.Content)
			},
		},
	}
}

// commitInOrder returns the name of the strategy that succeeded.
func commitInOrder(ctx context.Context, strategies []CommitStrategy, req CommitRequest) (string, error) {
	failure := &CommitError{}
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			failure.Attempts = append(failure.Attempts, AttemptError{Strategy: s.Name, Err: err})
			break
		}
		err := s.Commit(ctx, req)
		if err == nil {
			return s.Name, nil
		}
		failure.Attempts = append(failure.Attempts, AttemptError{Strategy: s.Name, Err: err})
	}
	return "", failure
}

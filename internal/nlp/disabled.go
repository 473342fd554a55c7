package nlp

import (
	"context"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/platform/errors"
)

// Disabled stands in when no provider is configured. Every eligible analysis
// fails softly and is recorded on the response row.
type Disabled struct{}

func (Disabled) Analyze(context.Context, string, domain.AnalysisOptions) (*domain.AnalysisResults, error) {
	return nil, errors.AnalysisError("nlp provider not configured", nil)
}

func (Disabled) Provider() string { return "disabled" }

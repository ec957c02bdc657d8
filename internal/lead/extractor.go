package lead

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/ent0n29/tensai/internal/conversation"
	"github.com/ent0n29/tensai/internal/inference"
	"github.com/ent0n29/tensai/internal/observability"
)

const extractionInstruction = `You are tasked with extracting the following details from this conversation:
- Name (if provided)
- Phone Number
- Email
- Any pain points or comments shared by the user

Return ONLY the information as a JSON object in this format:
{
    "name": "",
    "phone": "",
    "email": "",
    "pain_points": ""
}`

// Inferer is the subset of inference.Client the extractor needs.
type Inferer interface {
	Infer(ctx context.Context, turns []conversation.Turn) (string, error)
}

type Extractor struct {
	inferer Inferer
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewExtractor(inferer Inferer, logger *zap.Logger, metrics *observability.Metrics) *Extractor {
	return &Extractor{
		inferer: inferer,
		logger:  observability.OrNop(logger),
		metrics: metrics,
	}
}

// Extract asks the model for the lead fields present in turns. It never
// fails: inference errors and unparseable replies yield an empty Record.
func (e *Extractor) Extract(ctx context.Context, turns []conversation.Turn) Record {
	transcript, err := json.Marshal(turns)
	if err != nil {
		e.metrics.ObserveExtractionFailure("marshal")
		return Record{}
	}
	reply, err := e.inferer.Infer(ctx, []conversation.Turn{
		{Role: conversation.RoleSystem, Content: extractionInstruction},
		{Role: conversation.RoleUser, Content: "The Conversation so far: " + string(transcript)},
	})
	if err != nil {
		reason := "inference"
		var ierr *inference.InferenceError
		if errors.As(err, &ierr) {
			reason = "inference_" + string(ierr.Kind)
		}
		e.metrics.ObserveExtractionFailure(reason)
		e.logger.Warn("lead extraction inference failed", zap.Error(err))
		return Record{}
	}

	rec, err := ParseReply(reply)
	if err != nil {
		e.metrics.ObserveExtractionFailure("parse")
		e.logger.Debug("lead extraction reply not parseable", zap.Error(err))
		return Record{}
	}
	return rec
}

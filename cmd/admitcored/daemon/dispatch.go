package daemon

import (
	"context"
	"errors"

	"github.com/docker/admission-core/pkg/orchestrator"
	"github.com/docker/admission-core/pkg/transport"
)

// dispatchAdapter satisfies transport.Dispatcher over an
// *orchestrator.Orchestrator, translating between the MCP-facing
// DispatchInput/Output shapes and the orchestrator's own Message/
// Handoff/SecurityViolation types.
type dispatchAdapter struct {
	orch *orchestrator.Orchestrator
}

func (d dispatchAdapter) Dispatch(ctx context.Context, in transport.DispatchInput) (transport.DispatchOutput, error) {
	handoff, err := d.orch.Dispatch(ctx, orchestrator.Message{
		FromRole: in.FromRole,
		ToRole:   in.ToRole,
		Content:  in.Content,
	})
	if err != nil {
		var violation *orchestrator.SecurityViolation
		if errors.As(err, &violation) {
			return transport.DispatchOutput{
				Blocked:     true,
				BlockReason: violation.BlockReason,
			}, nil
		}
		return transport.DispatchOutput{}, err
	}

	return transport.DispatchOutput{
		MessageID:   handoff.MessageID,
		ContentHash: handoff.ContentHash,
	}, nil
}

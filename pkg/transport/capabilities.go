package transport

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ScanInput is the L1 Scan request: a raw candidate message.
type ScanInput struct {
	Text string `json:"text" jsonschema:"the candidate message to scan for known attack patterns"`
}

// ScanOutput reports L1's fast pattern-match verdict.
type ScanOutput struct {
	Blocked        bool     `json:"blocked" jsonschema:"whether the scan layer blocked the message"`
	Score          float64  `json:"score" jsonschema:"the scan layer's threat score"`
	MatchedPattern []string `json:"matched_patterns,omitempty" jsonschema:"names of patterns that matched"`
}

// AnalyzeInput is the L2 Analyze request.
type AnalyzeInput struct {
	Text string `json:"text" jsonschema:"the message to analyze against the pattern index"`
}

// AnalyzeOutput reports L2's nearest-neighbor classification.
type AnalyzeOutput struct {
	Classification string  `json:"classification" jsonschema:"attack, suspicious, or informational"`
	Confidence     float64 `json:"confidence" jsonschema:"confidence in the classification, 0 to 1"`
}

// SafeInput is the L3 Safety request.
type SafeInput struct {
	Text string `json:"text" jsonschema:"the message to check against the safety layer"`
}

// SafeOutput reports L3's fail-closed verdict.
type SafeOutput struct {
	Verdict     string `json:"verdict" jsonschema:"allow or block"`
	BlockReason string `json:"block_reason,omitempty" jsonschema:"populated when verdict is block"`
}

// PiiInput is the L4 PII request.
type PiiInput struct {
	Text string `json:"text" jsonschema:"the message to scan for personally identifiable information"`
}

// PiiOutput reports L4's redaction result.
type PiiOutput struct {
	RedactedText string   `json:"redacted_text" jsonschema:"text with any PII replaced by REDACTED tokens"`
	Entities     []string `json:"entities,omitempty" jsonschema:"kinds of PII entities found"`
}

// LearnInput adds a new confirmed pattern to the attack-pattern index.
type LearnInput struct {
	Text     string            `json:"text" jsonschema:"the pattern text to learn"`
	Label    string            `json:"label" jsonschema:"the label to associate with the pattern"`
	Metadata map[string]string `json:"metadata,omitempty" jsonschema:"arbitrary metadata to store alongside the pattern"`
}

// LearnOutput reports whether the pattern was accepted into the index.
type LearnOutput struct {
	Accepted bool `json:"accepted" jsonschema:"whether the pattern was stored"`
}

// StatsOutput reports engine health for monitoring integrations that
// cannot reach the HTTP health endpoint directly.
type StatsOutput struct {
	PatternCount   int    `json:"pattern_count" jsonschema:"number of patterns currently indexed"`
	BreakerState   string `json:"breaker_state" jsonschema:"CLOSED, OPEN, or HALF_OPEN"`
	WitnessEntries int    `json:"witness_entries" jsonschema:"number of buffered witness log entries"`
}

// DispatchInput is a Handoff Orchestrator dispatch request.
type DispatchInput struct {
	FromRole string `json:"from_role" jsonschema:"the dispatching agent's role"`
	ToRole   string `json:"to_role" jsonschema:"the receiving agent's role"`
	Content  string `json:"content" jsonschema:"the message content to run through the Gate Pipeline"`
}

// DispatchOutput reports a handoff's outcome. Blocked is true and
// MessageID/ContentHash are empty when the content was BLOCKED and
// never delivered.
type DispatchOutput struct {
	Blocked     bool   `json:"blocked" jsonschema:"whether the dispatch was refused by the Gate Pipeline"`
	BlockReason string `json:"block_reason,omitempty" jsonschema:"populated when blocked is true"`
	MessageID   string `json:"message_id,omitempty" jsonschema:"the delivered handoff's message id"`
	ContentHash string `json:"content_hash,omitempty" jsonschema:"sha-256 of the delivered text"`
}

// Dispatcher is implemented by an orchestrator.Orchestrator adapter.
// It is optional: a Server built without one simply omits the
// "dispatch" tool.
type Dispatcher interface {
	Dispatch(ctx context.Context, in DispatchInput) (DispatchOutput, error)
}

func registerTools(server *mcp.Server, engine Engine, dispatcher Dispatcher) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "scan",
		Description: "Run the fast pattern-match scan layer against a candidate message",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in ScanInput) (*mcp.CallToolResult, ScanOutput, error) {
		out, err := engine.Scan(ctx, in.Text)
		if err != nil {
			return nil, ScanOutput{}, fmt.Errorf("scan: %w", err)
		}
		return nil, out, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze",
		Description: "Run the pattern-index nearest-neighbor analysis layer against a message",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in AnalyzeInput) (*mcp.CallToolResult, AnalyzeOutput, error) {
		out, err := engine.Analyze(ctx, in.Text)
		if err != nil {
			return nil, AnalyzeOutput{}, fmt.Errorf("analyze: %w", err)
		}
		return nil, out, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "safe",
		Description: "Run the fail-closed safety layer against a message",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in SafeInput) (*mcp.CallToolResult, SafeOutput, error) {
		out, err := engine.Safe(ctx, in.Text)
		if err != nil {
			return nil, SafeOutput{}, fmt.Errorf("safe: %w", err)
		}
		return nil, out, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pii",
		Description: "Run the PII detection and redaction layer against a message",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in PiiInput) (*mcp.CallToolResult, PiiOutput, error) {
		out, err := engine.Pii(ctx, in.Text)
		if err != nil {
			return nil, PiiOutput{}, fmt.Errorf("pii: %w", err)
		}
		return nil, out, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "learn",
		Description: "Add a confirmed pattern to the attack-pattern index",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in LearnInput) (*mcp.CallToolResult, LearnOutput, error) {
		out, err := engine.Learn(ctx, in)
		if err != nil {
			return nil, LearnOutput{}, fmt.Errorf("learn: %w", err)
		}
		return nil, out, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stats",
		Description: "Report engine health: pattern index size, breaker state, witness log size",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, StatsOutput, error) {
		out, err := engine.Stats(ctx)
		if err != nil {
			return nil, StatsOutput{}, fmt.Errorf("stats: %w", err)
		}
		return nil, out, nil
	})

	if dispatcher == nil {
		return
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "dispatch",
		Description: "Dispatch an inter-agent message through the Handoff Orchestrator",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in DispatchInput) (*mcp.CallToolResult, DispatchOutput, error) {
		out, err := dispatcher.Dispatch(ctx, in)
		if err != nil {
			return nil, DispatchOutput{}, fmt.Errorf("dispatch: %w", err)
		}
		return nil, out, nil
	})
}

package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for chat observability spans and metrics.
var (
	AttrProvider   = attribute.Key("llm.provider")
	AttrTurnStatus = attribute.Key("chat.turn.status")
	AttrTurnTokens = attribute.Key("chat.turn.token_events")
	AttrTurnTools  = attribute.Key("chat.turn.tool_calls")

	AttrToolName         = attribute.Key("tool.name")
	AttrToolStatus       = attribute.Key("tool.status")
	AttrToolResultLength = attribute.Key("tool.result_length")
)

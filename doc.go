// Package skiff is the conversational core of an AI-agent dashboard.
//
// It turns a user message into a model response while transparently invoking
// tools (web search, URL fetch, workspace file read/write), across two
// structurally different upstream LLM wire protocols, and exposes the same
// conversational capability to two front-ends: a browser SSE client and a
// long-polling Telegram bridge.
//
// # Architecture
//
//   - [Engine] — the single orchestration entry point. Loads the system
//     prompt and recent history, enforces a single-flight concurrency gate,
//     drives a [Provider], and persists turns to the event log.
//   - [Provider] — one streaming agentic loop per upstream API family.
//     Implementations live in provider/openaicompat (completions-style SSE)
//     and provider/anthropic (messages-style typed SSE). Both emit the
//     normalized [Event] protocol.
//   - [Tool] / [ToolRegistry] — the four allow-listed capabilities the model
//     may call: tools/search, tools/fetch, tools/file.
//   - frontend/telegram — a long-polling channel adapter that pairs with
//     exactly one external user and consumes the engine as a blocking client.
//   - httpapi — the SSE and blocking HTTP surface for the dashboard.
//
// # Quick Start
//
//	reg := skiff.NewToolRegistry()
//	reg.Add(fetch.New())
//	reg.Add(file.New(workspace, "scratch"))
//
//	provider := openaicompat.New(apiKey, model, "https://api.openai.com/v1", reg)
//	log := sqlite.New("skiff.db")
//
//	engine := skiff.NewEngine(provider, log,
//		skiff.WithWorkspace(workspace))
//
//	for ev := range engine.StreamTurn(ctx, "hello") {
//		fmt.Println(ev.Type)
//	}
package skiff

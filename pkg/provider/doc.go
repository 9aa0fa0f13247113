// Package provider defines the protocol-agnostic interface for upstream
// chat-completion backends. Each adapter implementation (anthropic,
// openai, ollama) handles its own wire protocol internally and yields a
// normalized lazy sequence of StreamChunk values, keeping backend
// protocol details invisible to the engine.
package provider

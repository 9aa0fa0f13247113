// Package api defines the wire-level types of the copilot gateway: chat
// requests, the five-variant stream event union sent to clients, the
// structured error taxonomy, and identifier generation. These types are
// shared by the transport, engine, and provider layers; no other package
// defines client-visible shapes.
package api

// Package core provides the domain types shared by every kbagent package:
//
//   - Content and Parts (the append-only conversation representation)
//   - Events (the ordered stream a request produces for its caller)
//   - Collaborator contracts for knowledge retrieval and ingestion
//   - ToolContext (the scoped surface handed to tool executors)
//   - The error taxonomy used by the loop, the registry and the tools
//
// Concrete behaviour (model providers, vector stores, the agent loop itself)
// lives in sibling packages that depend only on these small types.
package core

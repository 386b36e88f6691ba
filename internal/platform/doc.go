// Package platform is the boundary to the remote agent platform.
//
// Ownership boundary:
// - explicit record types per resource kind
// - list response normalization (bare array or {"items": [...]})
// - HTTP transport and error classification
//
// The reconciliation engine consumes the API interface only; nothing in this
// package decides what to create, attach or detach. No retries are performed
// here or anywhere else in agentctl.
package platform

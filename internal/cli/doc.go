// Package cli holds no code. The Cobra command tree lives in
// cmd/mycelicmemory.
package cli

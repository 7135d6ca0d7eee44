// =============================================================================
// Invoice Generator - Main Entry Point
// =============================================================================
//
// USAGE:
//   invogen serve              - Start the HTTP API
//   invogen generate           - Render invoices offline
//   invogen template info      - Show the stored template's placeholders
//   invogen template install   - Replace the stored template
//   invogen version            - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : Core logic: documents, totals, filling, conversion,
//                      the template store, the render pipeline and the API
//   - pkg/utils/     : Workspaces, atomic writes and summary logs
//   - templates/     : The stored invoice template
//
// =============================================================================

package main

import (
	"github.com/stormdotcom/invo-gen-fastapi/cmd"
)

func main() {
	cmd.Execute()
}

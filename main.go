// =============================================================================
// chms-migrate - Main Entry Point
// =============================================================================
//
// USAGE:
//   chms-migrate export     - Translate the export into an interchange package
//   chms-migrate stages     - List the stages in run order
//   chms-migrate validate   - Validate the configuration
//   chms-migrate version    - Display the application version
//
// ARCHITECTURE:
//   - cmd/       : CLI command definitions (Cobra)
//   - internal/  : Sources, identity, translation, pipeline and writers
//   - pkg/       : Package directory and log file helpers
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/chms-migrate/cmd"
)

func main() {
	cmd.Execute()
}

// Package model defines the domain types shared across the refinery CLI:
// stage and run statuses, stage results, the run report sent to
// notification webhooks, and the CLIError/ExitCode error scheme used to
// translate failures into process exit codes.
package model

// Package runner executes pipeline stage commands.
//
// Two implementations exist: Local runs commands through the host
// shell, and Docker runs each command as a one-shot container with the
// working tree bind-mounted. Both stream output as the command runs and
// return the captured output for the run report.
package runner

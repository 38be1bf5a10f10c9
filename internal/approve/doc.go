// Package approve implements the manual approval gate that sits
// between the diff inspection and the commit phase.
//
// On an interactive terminal the gate is a bubbletea yes/no prompt
// (optionally time-bounded); in non-interactive contexts approval must
// come from the --yes flag, and its absence is an error rather than an
// indefinite block.
package approve

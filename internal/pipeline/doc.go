// Package pipeline resolves stage execution order and runs stages.
//
// The "needs" edges of the pipeline file form a DAG; execution order is
// its topological sort with declaration order breaking ties, so a file
// without any needs runs exactly top to bottom. Execution is strictly
// sequential unless the pipeline opts into parallel mode, in which case
// stages of the same dependency level run concurrently.
package pipeline

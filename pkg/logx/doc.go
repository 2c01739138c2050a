// Package logx is a thin structured-logging layer over zerolog.
//
// Everything here writes to stderr (and optionally a log file): stdout is
// reserved for the scheduler's JSON decision output, which callers parse.
package logx

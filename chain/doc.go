// Package chain runs prompt templates, model calls and output parsers as an ordered
// pipeline of stages.
//
// Typed stages compose with Pipe and Pipe3; the result is a Chain backed by a flat,
// dynamically typed Sequence, so nested pipes report flat stage indices. Stages run
// strictly one after another and the first failure aborts the rest. Template and
// parser errors (see promptchain.IsStructural) surface unchanged; any other failure is
// wrapped in *promptchain.StageError.
package chain

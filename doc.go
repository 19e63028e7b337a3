// Package promptchain composes prompt templates, chat model calls and output parsers
// into small pipelines. Templates use {name} placeholders and role-tagged message
// slots with history placeholders; see the chain and outputparser packages for the
// executor and the parsers.
package promptchain

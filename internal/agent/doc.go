// Package agent answers conversations.
//
// Each request is routed first: arithmetic is computed without the model,
// news and lookup questions force a search before the model summarises, and
// everything else runs the tool-calling loop between the model and the
// registered tools.
package agent

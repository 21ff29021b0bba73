// Package kovi is a framework for building chat bots that speak the
// OneBot v11 protocol over WebSocket. It connects to a OneBot-compatible
// server, dispatches inbound events to registered plugins, and routes
// plugin API calls back to the server, correlating asynchronous replies
// by echo token.
//
// A typical program creates a [Server] config, builds a [Bot], registers
// one or more plugins with [Bot.Plugin], and calls [Bot.Run].
package kovi

// Package scripts holds the gateway programs served by the cgisession
// binary. Each one is a cgisession.Handler: it gets a decoded request and
// returns a response, and never touches the process environment itself.
package scripts

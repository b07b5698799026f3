// Package integration drives a complete relay over real sockets.
package integration

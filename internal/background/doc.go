// Package background runs docmirror work in a detached child process that
// outlives the command that started it. A PID file guards against starting
// a second child while one is still running.
package background

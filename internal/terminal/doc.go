// Package terminal owns the in-process side of a live terminal connection:
// bridges wrapping one spawned attachment to a multiplexed session (or an
// in-memory echo interpreter), and the registry tracking which connections
// currently hold a bridge. Durability lives in the tmux layer; everything
// here dies with the process and is rebuilt from nothing on restart.
package terminal

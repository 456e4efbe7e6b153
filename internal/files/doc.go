// Package files gives the bot and the device API read and delete access to
// a single directory tree.
//
// All paths are interpreted relative to the configured root and rejected
// with ErrOutsideRoot if they resolve anywhere else.
package files

// Package jsonstore persists small registries as JSON files.
//
// A FileStore maps string ids to records and is used by the user and device
// registries. Loading never fails: a missing or corrupt file produces an
// empty registry and a log entry. Saving rewrites the whole file.
package jsonstore

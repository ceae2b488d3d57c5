// Package slot implements the durable slot sensors restore from after a restart.
//
// A Repository stores one snapshot per sensor unique id. FileRepository keeps
// all of them in one protobuf JSON file, SQLiteRepository in a table and
// KVRepository in a JetStream key-value bucket. Slot binds a repository to
// one sensor and maps "not found" to an absent prior snapshot.
package slot

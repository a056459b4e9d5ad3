/*
Package types defines the data structures shared by the Hive coordinator
and Drone workers: the Worker registry record, its Health state, and the
Task/Response envelopes that travel between them.

These are plain data types; the state machine transitions live in
pkg/registry and the wire encoding lives in pkg/wire.
*/
package types

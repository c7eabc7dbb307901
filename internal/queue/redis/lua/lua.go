// Package lua holds the atomic Redis scripts behind the reactor queue.
package lua

import _ "embed"

// Add pushes a payload onto the order list only if the pending set did not
// already hold it.
//
//go:embed add.lua
var Add string

// Fetch pops the head payload, clears its pending mark and records a lease
// under the caller's delivery token.
//
//go:embed fetch.lua
var Fetch string

// Reap returns expired leases to the queue through the same dedup path as Add.
//
//go:embed reap.lua
var Reap string

// Ack drops one delivery's lease.
//
//go:embed ack.lua
var Ack string

// DeadLetter appends to the capped dead-letter list.
//
//go:embed deadletter.lua
var DeadLetter string

// Package notify delivers application events to open presence channels.
//
// [Dispatcher] sends on the channels registered in this process. [Relay]
// fans events out to every node through Redis pub/sub so a principal
// connected to another node is still reached.
package notify

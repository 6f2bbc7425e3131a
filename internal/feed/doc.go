// Package feed broadcasts run events and progress snapshots to WebSocket
// observers. A Hub fans each published Message out to every connected client
// without blocking the publisher; slow clients drop messages.
package feed

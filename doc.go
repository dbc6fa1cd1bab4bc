// Package puma provides a fault tolerant client for a cluster of binlog
// relay servers. Relays tail MySQL binary logs and serve decoded change
// events to named clients over gRPC.
//
// A ClusterClient fetches batches of events for one client name. Only one
// process per client name fetches at a time; the others block on a
// distributed lock (see package plock) until the holder closes its client or
// dies. Relay servers are discovered through a Router (see package prouter).
// When the bound relay leaves the cluster, or a call to it fails, the client
// switches to the next relay the router offers.
//
// Consumption follows an explicit checkpoint protocol:
//
//	msg, err := cl.Fetch(ctx, 100, time.Second) // events after the acked position
//	...process msg.Events...
//	err = cl.Ack(ctx, msg.LastBinlogInfo)       // commit
//	// or
//	err = cl.Rollback(ctx, pos)                 // fetch again from pos
//
// Delivery is at-least-once; consumers should be idempotent.
//
// Run drives a Consumer with this protocol and optionally keeps its own
// durable checkpoint in a CheckpointStore (see packages psql and pblob) so a
// consumer can resume from its own position rather than the relay's.
//
// Events are a closed set of variants: *RowChangeEvent, *DDLEvent,
// *TransactionEvent, *GTIDEvent and *UnparsedEvent for anything this package
// does not decode.
package puma

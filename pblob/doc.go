// Package pblob leverages the gocloud.dev/blob package and provides a
// puma.CheckpointStore that keeps one small JSON blob per consumer.
//
// Blob stores have no compare-and-swap, so a checkpoint is only as safe as
// the consumer's exclusivity. Run it behind the cluster lock.
package pblob

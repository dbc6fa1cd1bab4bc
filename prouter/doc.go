// Package prouter provides puma.Router implementations: a static list of
// relay addresses and membership discovered from Consul.
package prouter

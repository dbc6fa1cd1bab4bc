// Package ppatterns provides common patterns for running puma consumers.
package ppatterns

// Package app wires a pipeline run together: it loads the pipeline file,
// builds the step registry, assembles the graph and executes it while
// recording progress in the ledger and on the notification channels. It is
// independent of the CLI that drives it.
package app

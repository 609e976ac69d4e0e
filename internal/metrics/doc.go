// Package metrics provides conversion metrics behind a Recorder interface.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	type Resolver struct {
//	    recorder metrics.Recorder
//	}
//
// When metrics.textfile is configured the pipeline swaps in a
// PrometheusRecorder and writes the registry in the node_exporter textfile
// format at the end of each run. The watch command can additionally serve the
// registry over HTTP.
package metrics

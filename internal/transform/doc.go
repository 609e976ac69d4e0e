// Package transform defines the Transform Invoker contract: apply a tree
// transformation program to an input document with named string parameters,
// write the result to an output path and return the program's diagnostic
// messages.
//
// Two invokers are provided. ExecInvoker shells out to xsltproc and collects
// xsl:message output from stderr. NativeInvoker dispatches to in-process
// programs registered by name (see package native), which lets the pipeline
// run without any XSLT processor installed.
//
// Decorators add the per-invocation deadline (WithTimeout) and backoff retries
// for transient failures (WithRetry).
package transform

/*
Package types defines Kiln's shared domain types: the supported language
set, run limits, run requests and records, artifact and uploaded-file
descriptors, and the kinded error used at the API boundary.

Types here are plain data. Behavior lives in the packages that own each
concern (pkg/limits, pkg/orchestrator, pkg/storage, pkg/sandbox); keeping
the data model dependency-free lets every package import it without cycles.
*/
package types

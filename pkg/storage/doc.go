/*
Package storage implements Kiln's content-addressed blob store for uploaded
inputs and run artifacts.

# Layout

A single root directory with two subdirectories:

	<root>/
	├── uploads/
	│   └── file_AbC123xYz789/
	│       ├── input.txt        payload under its declared filename
	│       └── meta.json        id, name, size, sha256, content type
	└── artifacts/
	    └── file_Qw45Rt67Ui89/
	        ├── report.txt
	        └── meta.json

Ids are file_ plus 12 alphanumeric characters from crypto/rand. Directory
creation on a fresh random id is the only synchronization the store needs;
two concurrent ingests can never collide on a directory name in practice.

Uploaded files are immutable: the SHA-256 recorded in the sidecar is
computed once during the copy and never recomputed. Artifacts are reachable
only through signed URLs minted at ingestion time; the store itself keeps no
record of which run produced an artifact, so artifacts can outlive their run
record.

Nothing here is garbage-collected during process lifetime. Cleanup of old
artifact directories is operator tooling.
*/
package storage

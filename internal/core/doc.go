// Package core sequences the ingestion stages into pipeline runs.
//
// This package holds the orchestration logic independent of any transport.
// It is driven by the CLI, the HTTP API, and tests without modification.
//
// # Dataset Registry
//
// Datasets are registered at init time using [Register]. Each [Dataset]
// names the schema descriptor it validates against and the store and table
// it loads into:
//
//	core.Register(core.Dataset{
//	    Name:     "training",
//	    SchemaID: "schema_train",
//	    Store:    "training",
//	    Table:    "training_raw_data_t",
//	})
//
// # Runs
//
// [Service.Run] performs one run for a dataset. The flow is:
//
//  1. Skip when the staging directory holds no files
//  2. Load the schema descriptor; a missing or malformed one stops the run
//  3. Archive the previous run's rejects, snapshot, processed and results
//  4. Validate: column count, then fully missing columns, then fill blanks
//  5. Evolve the table and load each surviving file in its own transaction
//  6. Export the table snapshot and move loaded files to processed
//
// Files that fail validation or loading move to the rejects directory and the
// run continues. Runs are serialized by a single-slot [RunLimiter].
//
// # Error Handling
//
// Technical errors are mapped to operator-facing messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - SCH001-SCH002: Schema descriptor errors
//   - VAL001-VAL002: File validation errors
//   - DB001-DB005: Store errors (connection, evolution, insert)
//   - ARC001, EXP001: Archive and snapshot export errors
//   - RUN001-RUN004: Run errors (unknown dataset, busy, cancelled)
//
// # Run History
//
// When a [Recorder] is configured every run and every file outcome is
// written to the run journal. Journal failures are logged and never fail a
// run.
package core

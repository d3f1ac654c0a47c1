// Package custody provides the chain-of-custody tracking core for a
// records-management backoffice: tracked objects (dockets, evidence items,
// equipment, files, tools), their append-only custody ledger, and the
// transactional coordinator that keeps the materialized current state in
// agreement with the ledger under concurrent mutation.
//
// It exposes a single Service interface. Every mutation runs the same
// protocol: authorize against an AccessGate, serialize behind a per-object
// guard, validate against current state and the location tree, then commit
// the custody event and the projection delta as one atomic unit. Repository
// implementations (memory, Postgres) and attachment blob stores (memory,
// filesystem, S3) are provided under subpackages.
//
// # Consistency Model
//
// The ledger is the system of record. The registry row for an object is a
// projection of its chain of custody and can always be recomputed by replay
// (ReconstructAt); VerifyConsistency performs exactly that self-check.
// Custody events are never updated or deleted - corrections are new events.
package custody

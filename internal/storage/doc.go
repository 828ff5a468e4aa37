// Package storage provides the pluggable persistence layer for sessions and
// tokens, plus the cross-process locking capability consumed by the token
// refresher.
//
// Three variants implement the Storage interface:
//
//   - MemoryStorage: process-local maps, used for testing and single-process
//     embedding.
//   - FileStorage: one JSON document per key with per-token-key advisory file
//     locks, for independent processes sharing a directory.
//   - RedisStorage: records and SET-NX lease locks in Redis, for hosts that
//     share a credential store without a shared filesystem.
//
// Absent keys are a normal outcome (nil, nil), distinguished from storage
// malfunction, which always wraps oauth.ErrStorageFailure.
package storage

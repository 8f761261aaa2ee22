// Package store provides persistence for ciphermesh's key material, sessions
// and message bookkeeping.
//
// File-backed stores serialise JSON under the configured home directory and
// replace files atomically (temp file then rename). All methods are
// concurrency-safe via internal locking.
//
// The package includes:
//   - Identity (IdentityFileStore, age-sealed when a passphrase is set)
//   - One-time pre-keys (PreKeyFileStore)
//   - Signed pre-keys (SignedPreKeyFileStore)
//   - Ratchet sessions per device address (SessionFileStore)
//   - Sent records (SentFileStore, MongoSentStore)
//   - The write-once decrypted item cache (DecryptedFileStore,
//     RedisDecryptedCache, and the LRUDecryptedCache front)
package store

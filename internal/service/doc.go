// Package service orchestrates the document pipeline: ingestion (convert,
// encrypt, upload, persist), retrieval with decryption, deletion, and the
// asynchronous enrichment jobs (text extraction, insights, thumbnails).
// It coordinates the keymanager, storage, store, and queue packages without
// owning any of their mechanics.
package service

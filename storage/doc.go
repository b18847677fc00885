// Package storage provides content-addressed storage for sealed vault
// payloads with pluggable backends.
//
// The package offers a unified interface for storing and retrieving content
// identified by SHA-256 hash across multiple backends:
//
//   - File system storage for local deployments and testing
//   - S3-compatible object storage for cloud deployments
//   - IPFS storage for decentralized content
//   - HashiCorp Vault KV v2 storage for operators already running Vault
//
// # Storage URI Format
//
// Backends are specified using URI form:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Examples:
//
//	file:///var/lib/custodia/payloads
//	s3://ACCESS:SECRET@bucket/prefix?region=us-west-2
//	ipfs://ipfs.example.com:5001/
//	vault://vault.example.com:8200/secret/custodia?tls=true
//
// # Content Addressing
//
// The content ID of any blob is the SHA-256 hash of its bytes. The same
// payload therefore has the same ID on every backend, which lets the
// multi-backend replicate writes and fall back across reads without extra
// bookkeeping. Sealed payloads are immutable once written: a failed read is
// always safe to retry.
package storage

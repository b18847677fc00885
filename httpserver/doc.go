// Package httpserver exposes the vault ledger and recovery coordinator over
// HTTP.
//
// The server separates three surfaces: the API itself (chi router with
// request logging), health/drain endpoints for orchestration, and a metrics
// listener on its own address. Mutating endpoints increment per-operation
// counters; the error taxonomy of the interfaces package maps onto HTTP
// status codes, with 425 Too Early reserved for temporal guards so clients
// can distinguish "wait" from "denied".
package httpserver

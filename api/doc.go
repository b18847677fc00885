// Package api defines the wire types of the custodia HTTP API and a Go
// client for it.
//
// Caller identity travels in the X-Custodia-Identity header as a hex
// address. The service treats it as already authenticated; signature
// verification belongs to the layer in front of this service.
//
// # Endpoints
//
//	POST /api/vaults                 create a vault (caller is owner)
//	POST /api/vaults/{id}/checkin    owner liveness refresh
//	POST /api/vaults/{id}/trigger    start recovery (anyone, time-gated)
//	POST /api/vaults/{id}/claim      release share to beneficiary
//	POST /api/vaults/{id}/cancel     owner terminates the vault
//	GET  /api/vaults/{id}            vault snapshot
//	GET  /api/vaults/{id}/status     advisory status (oracle)
//	GET  /api/vaults?owner=&beneficiary=   list IDs by identity
//	GET  /api/vaults/count           total vaults ever created
//	GET  /api/events?since=N         append-only event log
//	GET  /api/payloads/{ref}         sealed ciphertext by content ID
package api

// Package api provides the request/response client for the order-management
// gateway.
//
// Endpoints:
//   - GET  /api/processing/customer/{id} - full order list for a customer
//   - POST /api/orders                   - create an order
//   - POST /api/auth/login               - obtain a bearer token
//   - POST /api/auth/register            - create an account, returns a token
//
// The live notification stream is not served here; see package stream.
package api

// Package model defines shared data types for the live order feed.
//
// Conventions:
//   - Money: decimal.Decimal internally, fixed two-decimal strings on the
//     wire (the backend serializes BigDecimal as a string)
//   - Timestamps: ISO-8601 strings, passed through untouched
//   - IDs: opaque strings assigned by the backend
package model

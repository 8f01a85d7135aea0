// Package ir provides the canonical value and record types shared by the
// ledgerbox packages.
//
// This package contains type definitions and their canonical encoding only.
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - NO null values
//   - All JSON tags use snake_case
//   - Identifiers are SHA-256 over canonical JSON with a domain prefix
package ir

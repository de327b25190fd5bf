// Package auth issues and verifies the bearer tokens that protect the
// NearClip Core HTTP API.
//
// Tokens are HS256 JWTs carrying a subject and one of three roles
// (viewer → controller → owner). Permissions are a static role mapping;
// there is no user database.
package auth

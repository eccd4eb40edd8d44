// Package auth issues and verifies HS256 access tokens and hashes passwords
// with bcrypt.
package auth

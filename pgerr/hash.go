package pgerr

import (
	"crypto/md5" //nolint:gosec // required by the PostgreSQL wire protocol, not used for security
	"encoding/hex"
)

// MD5Password computes the PostgreSQL MD5 authentication response:
// "md5" + md5(hex(md5(password + user)) + salt).
func MD5Password(user, password string, salt [4]byte) string {
	inner := md5.Sum([]byte(password + user)) //nolint:gosec
	innerHex := hex.EncodeToString(inner[:])
	outer := md5.Sum(append([]byte(innerHex), salt[:]...)) //nolint:gosec
	return "md5" + hex.EncodeToString(outer[:])
}

// StatementName derives a stable prepared-statement name from SQL text so
// that identical query text shares a server-side prepared statement within
// a session. Collisions across the working set are treated as impossible.
func StatementName(sql string) string {
	digest := md5.Sum([]byte(sql)) //nolint:gosec
	return "stmt_" + hex.EncodeToString(digest[:])
}

package proto

import (
	"crypto/md5"
	"encoding/base64"
)

// HashPassword derives the wire form of a lobby password. The protocol
// mandates base64(md5(password)); the cleartext is never sent.
func HashPassword(password string) string {
	sum := md5.Sum([]byte(password))
	return base64.StdEncoding.EncodeToString(sum[:])
}

package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// CurrentSchemaVersion is the leading byte of every encoded session.
const CurrentSchemaVersion = 1

const flagSecondFactorVerified = 1

// Layout (v1):
//
//	[0]      schema version
//	[1]      principal id length N
//	[2:2+N]  principal id
//	[2+N]    flags
//	[3+N:]   created_at ms (int64 BE), expires_at ms (int64 BE)
//
// The Lua scripts in store.go parse the same layout; keep them in sync.

// Encode serializes s into the compact binary form stored in Redis.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	if len(s.PrincipalID) == 0 {
		return nil, errors.New("principalID required")
	}
	if len(s.PrincipalID) > 255 {
		return nil, errors.New("principalID too long")
	}

	var buf bytes.Buffer
	buf.Grow(19 + len(s.PrincipalID))

	buf.WriteByte(CurrentSchemaVersion)
	buf.WriteByte(byte(len(s.PrincipalID)))
	buf.WriteString(s.PrincipalID)

	var flags byte
	if s.SecondFactorVerified {
		flags = flagSecondFactorVerified
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode. The session id is not part of the
// blob; callers set it from the key.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != CurrentSchemaVersion {
		return nil, fmt.Errorf("unsupported session schema version %d", version)
	}

	s := &Session{}

	principalLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if principalLen == 0 {
		return nil, errors.New("empty principal id")
	}
	principal := make([]byte, principalLen)
	if _, err := io.ReadFull(reader, principal); err != nil {
		return nil, err
	}
	s.PrincipalID = string(principal)

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	s.SecondFactorVerified = flags&flagSecondFactorVerified != 0

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in session blob")
	}

	return s, nil
}

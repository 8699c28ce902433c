package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Blob layout, schema v1. Fixed-length fields come first so the rotation
// script can address them at constant offsets; only the identity strings
// are length-prefixed at the tail.
//
//	[0]      version
//	[1]      flags (bit0 = revoked)
//	[2:34]   refresh hash (current)
//	[34:66]  refresh hash (prior)
//	[66:74]  created at, unix seconds, big endian
//	[74:82]  last rotated at
//	[82:90]  expires at
//	[90:]    user id, user agent, ip — each 1-byte length prefixed
const (
	schemaVersion1 = 1

	flagRevoked = 0x01

	fixedHeaderSize = 90
	maxFieldLen     = 255
)

var (
	// ErrCorrupt is returned when a stored blob cannot be decoded.
	ErrCorrupt = errors.New("session blob corrupt")

	errUserIDRequired = errors.New("session user id required")
	errUserIDTooLong  = errors.New("session user id too long")
)

// Encode serializes a [Session] into the v1 binary blob. The user agent and
// IP are truncated to 255 bytes; the user ID must fit because it is identity,
// not annotation.
func Encode(s *Session) ([]byte, error) {
	if s.UserID == "" {
		return nil, errUserIDRequired
	}
	if len(s.UserID) > maxFieldLen {
		return nil, errUserIDTooLong
	}

	ua := truncate(s.UserAgent)
	ip := truncate(s.IP)

	var buf bytes.Buffer
	buf.Grow(fixedHeaderSize + 3 + len(s.UserID) + len(ua) + len(ip))

	buf.WriteByte(schemaVersion1)
	buf.WriteByte(flagsByte(s))
	buf.Write(s.RefreshHash[:])
	buf.Write(s.PrevRefreshHash[:])

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.LastRotatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)
	buf.WriteByte(byte(len(ua)))
	buf.WriteString(ua)
	buf.WriteByte(byte(len(ip)))
	buf.WriteString(ip)

	return buf.Bytes(), nil
}

// Decode parses a v1 binary blob. sessionID is caller-supplied because the
// blob does not repeat the Redis key.
func Decode(sessionID string, data []byte) (*Session, error) {
	if len(data) < fixedHeaderSize+1 {
		return nil, ErrCorrupt
	}

	reader := bytes.NewReader(data)

	version, _ := reader.ReadByte()
	if version != schemaVersion1 {
		return nil, ErrCorrupt
	}

	flags, _ := reader.ReadByte()
	if flags&^flagRevoked != 0 {
		return nil, ErrCorrupt
	}

	s := &Session{
		SessionID: sessionID,
		Revoked:   flags&flagRevoked != 0,
	}

	if _, err := io.ReadFull(reader, s.RefreshHash[:]); err != nil {
		return nil, ErrCorrupt
	}
	if _, err := io.ReadFull(reader, s.PrevRefreshHash[:]); err != nil {
		return nil, ErrCorrupt
	}

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, ErrCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &s.LastRotatedAt); err != nil {
		return nil, ErrCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, ErrCorrupt
	}

	var err error
	if s.UserID, err = readString(reader); err != nil {
		return nil, ErrCorrupt
	}
	if s.UserID == "" {
		return nil, ErrCorrupt
	}
	if s.UserAgent, err = readString(reader); err != nil {
		return nil, ErrCorrupt
	}
	if s.IP, err = readString(reader); err != nil {
		return nil, ErrCorrupt
	}

	if reader.Len() != 0 {
		return nil, ErrCorrupt
	}

	return s, nil
}

func readString(reader *bytes.Reader) (string, error) {
	length, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	if length == 0 {
		return "", nil
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func flagsByte(s *Session) byte {
	var flags byte
	if s.Revoked {
		flags |= flagRevoked
	}
	return flags
}

func truncate(v string) string {
	if len(v) > maxFieldLen {
		return v[:maxFieldLen]
	}
	return v
}

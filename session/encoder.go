package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionFormatVersionCurrent = 1

// ErrCorrupt is returned by Decode for blobs it cannot read.
var ErrCorrupt = errors.New("session blob corrupt")

// Encode serialises s into the versioned binary layout stored in Redis.
// SessionID is not part of the blob; it is the Redis key.
func Encode(s *Session) ([]byte, error) {
	if !s.Protection.Valid() {
		return nil, errors.New("invalid protection level")
	}
	if s.Remember > RememberExtended {
		return nil, errors.New("invalid remember class")
	}

	var buf bytes.Buffer
	buf.Grow(1 + 8 + 2 + 64 + 16)

	buf.WriteByte(sessionFormatVersionCurrent)
	if err := binary.Write(&buf, binary.BigEndian, s.AccountID); err != nil {
		return nil, err
	}
	buf.WriteByte(byte(s.Remember))
	buf.WriteByte(byte(s.Protection))
	buf.Write(s.Fingerprint[:])
	buf.Write(s.ClientHash[:])

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode. Any structural problem,
// including trailing bytes, yields ErrCorrupt.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil || version != sessionFormatVersionCurrent {
		return nil, ErrCorrupt
	}

	s := &Session{}
	if err := binary.Read(reader, binary.BigEndian, &s.AccountID); err != nil {
		return nil, ErrCorrupt
	}

	remember, err := reader.ReadByte()
	if err != nil || RememberClass(remember) > RememberExtended {
		return nil, ErrCorrupt
	}
	s.Remember = RememberClass(remember)

	protection, err := reader.ReadByte()
	if err != nil || !ProtectionLevel(protection).Valid() {
		return nil, ErrCorrupt
	}
	s.Protection = ProtectionLevel(protection)

	if _, err := io.ReadFull(reader, s.Fingerprint[:]); err != nil {
		return nil, ErrCorrupt
	}
	if _, err := io.ReadFull(reader, s.ClientHash[:]); err != nil {
		return nil, ErrCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, ErrCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, ErrCorrupt
	}
	if reader.Len() != 0 {
		return nil, ErrCorrupt
	}

	return s, nil
}

package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	schemaVersionCurrent = 1

	flagRemembered byte = 1 << 0
)

// Encode serializes s without its id, which is the storage key.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(160 + len(s.Email) + len(s.Username))

	buf.WriteByte(schemaVersionCurrent)

	for _, field := range []struct {
		name  string
		value string
	}{
		{"accountID", s.AccountID},
		{"email", s.Email},
		{"username", s.Username},
		{"rememberSelector", s.RememberSelector},
		{"marker", s.Marker},
	} {
		if len(field.value) > 255 {
			return nil, fmt.Errorf("%s too long", field.name)
		}
		buf.WriteByte(byte(len(field.value)))
		buf.WriteString(field.value)
	}

	var flags byte
	if s.Remembered {
		flags |= flagRemembered
	}
	buf.WriteByte(flags)

	buf.Write(s.AddressHash[:])
	buf.Write(s.AgentHash[:])

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses the output of Encode.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != schemaVersionCurrent {
		return nil, fmt.Errorf("unsupported session schema version %d", version)
	}

	s := &Session{}
	for _, dst := range []*string{&s.AccountID, &s.Email, &s.Username, &s.RememberSelector, &s.Marker} {
		n, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*dst = string(raw)
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if flags&^flagRemembered != 0 {
		return nil, fmt.Errorf("unknown session flags %#x", flags)
	}
	s.Remembered = flags&flagRemembered != 0

	if _, err := io.ReadFull(reader, s.AddressHash[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, s.AgentHash[:]); err != nil {
		return nil, err
	}

	var created, expires int64
	if err := binary.Read(reader, binary.BigEndian, &created); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return nil, err
	}
	s.CreatedAt = time.UnixMilli(created)
	s.ExpiresAt = time.UnixMilli(expires)

	if reader.Len() != 0 {
		return nil, errors.New("trailing session bytes")
	}
	if s.AccountID == "" {
		return nil, errors.New("session without account")
	}

	return s, nil
}

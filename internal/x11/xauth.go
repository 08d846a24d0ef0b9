package x11

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Address families used in Xauthority files.
const (
	FamilyInternet = 0
	FamilyLocal    = 256
	FamilyWild     = 65535
)

// CookieName is the only authorization protocol forwarded.
const CookieName = "MIT-MAGIC-COOKIE-1"

// AuthEntry is one Xauthority record.
type AuthEntry struct {
	Family  uint16
	Address string
	Number  string
	Name    string
	Data    []byte
}

// ReadAuthority parses an Xauthority file.
func ReadAuthority(r io.Reader) ([]AuthEntry, error) {
	br := bufio.NewReader(r)
	var entries []AuthEntry
	for {
		var family uint16
		if err := binary.Read(br, binary.BigEndian, &family); err != nil {
			if err == io.EOF {
				return entries, nil
			}
			return nil, fmt.Errorf("invalid Xauthority: %w", err)
		}
		var fields [4][]byte
		for i := range fields {
			b, err := readCounted(br)
			if err != nil {
				return nil, fmt.Errorf("invalid Xauthority: %w", err)
			}
			fields[i] = b
		}
		entries = append(entries, AuthEntry{
			Family:  family,
			Address: string(fields[0]),
			Number:  string(fields[1]),
			Name:    string(fields[2]),
			Data:    fields[3],
		})
	}
}

func readCounted(r io.Reader) ([]byte, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// WriteAuthority serializes entries in Xauthority format.
func WriteAuthority(w io.Writer, entries []AuthEntry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if err := binary.Write(bw, binary.BigEndian, e.Family); err != nil {
			return err
		}
		for _, field := range [][]byte{[]byte(e.Address), []byte(e.Number), []byte(e.Name), e.Data} {
			if len(field) > 0xffff {
				return errors.New("Xauthority field too long")
			}
			if err := binary.Write(bw, binary.BigEndian, uint16(len(field))); err != nil {
				return err
			}
			if _, err := bw.Write(field); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// FindCookie picks the MIT cookie for display d on the machine called
// hostname. Wildcard entries match any address.
func FindCookie(entries []AuthEntry, hostname string, d Display) (AuthEntry, bool) {
	number := strconv.Itoa(d.Number)
	for _, e := range entries {
		if e.Name != CookieName || (e.Number != "" && e.Number != number) {
			continue
		}
		switch {
		case e.Family == FamilyWild:
			return e, true
		case d.Local() && e.Family == FamilyLocal && e.Address == hostname:
			return e, true
		case !d.Local() && e.Address == d.Host:
			return e, true
		}
	}
	return AuthEntry{}, false
}

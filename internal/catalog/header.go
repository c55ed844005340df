// Package catalog reads and writes HEALPix-sharded target catalogs.
// Each shard file carries a self-describing TOML header followed by
// fixed-width big-endian rows, optionally zstd-compressed a chunk at
// a time so appended chunks concatenate cleanly.
package catalog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Shard files open with this magic followed by a big-endian uint32
// header length and the TOML header itself.
var fileMagic = []byte("SKYCAT01")

// A header pixel list longer than this is dropped rather than written;
// such a file can still be read directly but cannot join a sharded
// directory.
const maxHeaderPixels = 5000

// Header describes one shard file.
type Header struct {
	NSide        int64   `toml:"nside"`
	Nested       bool    `toml:"nested"`
	Pixels       []int64 `toml:"pixels"`
	Survey       string  `toml:"survey"`
	Resolved     bool    `toml:"resolved"`
	Maskbits     bool    `toml:"maskbits"`
	Supplemental bool    `toml:"supplemental"`
	DarkBright   bool    `toml:"darkbright"`
	// Obscon names the observing-conditions restriction applied at
	// write time, empty when unrestricted.
	Obscon     string            `toml:"obscon,omitempty"`
	Compressed bool              `toml:"compressed"`
	Columns    []string          `toml:"columns"`
	Deps       map[string]string `toml:"deps,omitempty"`
}

func writeHeader(w io.Writer, h *Header) error {
	body, err := toml.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode shard header: %w", err)
	}
	if _, err := w.Write(fileMagic); err != nil {
		return err
	}
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(body)))
	if _, err := w.Write(length[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func readHeader(r io.Reader) (*Header, error) {
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read shard magic: %w", err)
	}
	if !bytes.Equal(magic, fileMagic) {
		return nil, fmt.Errorf("not a catalog shard (magic %q)", magic)
	}
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, fmt.Errorf("read shard header length: %w", err)
	}
	body := make([]byte, binary.BigEndian.Uint32(length[:]))
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read shard header: %w", err)
	}
	var h Header
	if err := toml.Unmarshal(body, &h); err != nil {
		return nil, fmt.Errorf("decode shard header: %w", err)
	}
	return &h, nil
}

// ReadHeader reads only the header of a shard file, without touching
// its rows.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h, err := readHeader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

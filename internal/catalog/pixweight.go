package catalog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/pelletier/go-toml/v2"

	"skycat/internal/healpix"
	"skycat/internal/logging"
)

var weightMagic = []byte("SKYWT01\x00")

type weightHeader struct {
	NSide  int64 `toml:"nside"`
	Nested bool  `toml:"nested"`
}

// PixWeight is a full-sky map of per-pixel weights in the nested
// scheme, one value per pixel.
type PixWeight struct {
	NSide  int64
	Values []float64
}

// NewPixWeight allocates an all-zero weight map.
func NewPixWeight(nside int64) (*PixWeight, error) {
	if err := healpix.CheckNSide(nside); err != nil {
		return nil, err
	}
	return &PixWeight{NSide: nside, Values: make([]float64, healpix.NPix(nside))}, nil
}

// WritePixWeight stores a weight map.
func WritePixWeight(path string, w *PixWeight) error {
	if int64(len(w.Values)) != healpix.NPix(w.NSide) {
		return fmt.Errorf("pixweight: %d values but nside %d has %d pixels",
			len(w.Values), w.NSide, healpix.NPix(w.NSide))
	}
	body, err := toml.Marshal(weightHeader{NSide: w.NSide, Nested: true})
	if err != nil {
		return fmt.Errorf("encode weight header: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(weightMagic); err != nil {
		return err
	}
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(body)))
	if _, err := f.Write(length[:]); err != nil {
		return err
	}
	if _, err := f.Write(body); err != nil {
		return err
	}

	buf := make([]byte, 8*len(w.Values))
	for i, v := range w.Values {
		binary.BigEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	if _, err := f.Write(buf); err != nil {
		return err
	}
	return f.Close()
}

// LoadPixWeight reads a weight map from disk.
func LoadPixWeight(path string) (*PixWeight, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	magic := make([]byte, len(weightMagic))
	if _, err := io.ReadFull(f, magic); err != nil {
		return nil, fmt.Errorf("%s: read weight magic: %w", path, err)
	}
	if !bytes.Equal(magic, weightMagic) {
		return nil, fmt.Errorf("%s: not a pixel weight map", path)
	}
	var length [4]byte
	if _, err := io.ReadFull(f, length[:]); err != nil {
		return nil, fmt.Errorf("%s: read weight header length: %w", path, err)
	}
	body := make([]byte, binary.BigEndian.Uint32(length[:]))
	if _, err := io.ReadFull(f, body); err != nil {
		return nil, fmt.Errorf("%s: read weight header: %w", path, err)
	}
	var h weightHeader
	if err := toml.Unmarshal(body, &h); err != nil {
		return nil, fmt.Errorf("%s: decode weight header: %w", path, err)
	}
	if !h.Nested {
		return nil, fmt.Errorf("%s: weight map is not in the nested scheme", path)
	}
	if err := healpix.CheckNSide(h.NSide); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	npix := healpix.NPix(h.NSide)
	buf := make([]byte, 8*npix)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("%s: read %d weights: %w", path, npix, err)
	}
	w := &PixWeight{NSide: h.NSide, Values: make([]float64, npix)}
	for i := range w.Values {
		w.Values[i] = math.Float64frombits(binary.BigEndian.Uint64(buf[i*8:]))
	}
	return w, nil
}

// Resample re-expresses a weight map at another nside: degrading
// averages each pixel's children, upgrading replicates the parent
// value. Upgrading past the stored resolution adds no information, so
// it is logged rather than rejected.
func (w *PixWeight) Resample(nside int64, logger *slog.Logger) (*PixWeight, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := healpix.CheckNSide(nside); err != nil {
		return nil, err
	}
	if nside == w.NSide {
		out := &PixWeight{NSide: nside, Values: make([]float64, len(w.Values))}
		copy(out.Values, w.Values)
		return out, nil
	}

	out := &PixWeight{NSide: nside, Values: make([]float64, healpix.NPix(nside))}
	if nside < w.NSide {
		// Nested child pixels of one parent are contiguous.
		ratio := (w.NSide / nside) * (w.NSide / nside)
		for parent := range out.Values {
			var sum float64
			base := int64(parent) * ratio
			for c := int64(0); c < ratio; c++ {
				sum += w.Values[base+c]
			}
			out.Values[parent] = sum / float64(ratio)
		}
		return out, nil
	}

	logger.Info("resampling weight map above its stored resolution",
		logging.Int64("stored_nside", w.NSide),
		logging.Int64("requested_nside", nside))
	ratio := (nside / w.NSide) * (nside / w.NSide)
	for child := range out.Values {
		out.Values[child] = w.Values[int64(child)/ratio]
	}
	return out, nil
}

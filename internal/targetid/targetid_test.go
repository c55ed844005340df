package targetid_test

import (
	"errors"
	"testing"

	"skycat/internal/targetid"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name                              string
		objid, brickid, release, mock, sky int64
	}{
		{"zeros", 0, 0, 0, 0, 0},
		{"typical", 234, 12, 4000, 0, 0},
		{"sky object", 1, 330368, 8000, 0, 1},
		{"mock object", 77, 9, 7999, 1, 0},
		{"max widths", 1<<22 - 1, 1<<20 - 1, 1<<16 - 1, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := targetid.Encode(tc.objid, tc.brickid, tc.release, tc.mock, tc.sky)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			objid, brickid, release, mock, sky := targetid.Decode(id)
			if objid != tc.objid || brickid != tc.brickid || release != tc.release || mock != tc.mock || sky != tc.sky {
				t.Fatalf("Decode(Encode) = (%d,%d,%d,%d,%d), want (%d,%d,%d,%d,%d)",
					objid, brickid, release, mock, sky,
					tc.objid, tc.brickid, tc.release, tc.mock, tc.sky)
			}
		})
	}
}

func TestEncodeRejectsOverflow(t *testing.T) {
	cases := []struct {
		name                              string
		objid, brickid, release, mock, sky int64
	}{
		{"objid", 1 << 22, 0, 0, 0, 0},
		{"brickid", 0, 1 << 20, 0, 0, 0},
		{"release", 0, 0, 1 << 16, 0, 0},
		{"mock", 0, 0, 0, 2, 0},
		{"sky", 0, 0, 0, 0, 2},
		{"negative", -1, 0, 0, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := targetid.Encode(tc.objid, tc.brickid, tc.release, tc.mock, tc.sky)
			var fe *targetid.FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldError, got %v", err)
			}
		})
	}
}

func TestEncodeBatch(t *testing.T) {
	ids, err := targetid.EncodeBatch(targetid.Fields{
		ObjID:   []int64{234, 12},
		BrickID: []int64{234, 12},
		Release: []int64{4000, 4000},
		Sky:     []int64{1, 0},
	})
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}
	f := targetid.DecodeBatch(ids)
	if f.ObjID[0] != 234 || f.ObjID[1] != 12 {
		t.Fatalf("objid round trip: %v", f.ObjID)
	}
	if f.Sky[0] != 1 || f.Sky[1] != 0 {
		t.Fatalf("sky round trip: %v", f.Sky)
	}
	if f.Mock[0] != 0 || f.Mock[1] != 0 {
		t.Fatalf("omitted mock column should decode to zero: %v", f.Mock)
	}
}

func TestEncodeBatchLengthMismatch(t *testing.T) {
	_, err := targetid.EncodeBatch(targetid.Fields{
		ObjID:   []int64{1, 2, 3},
		BrickID: []int64{1},
	})
	if err == nil {
		t.Fatal("expected mismatched column lengths to fail")
	}
}

func TestSurveySourceRoundTrip(t *testing.T) {
	id, err := targetid.EncodeSurveySource(2, 129, 4503599627370495)
	if err != nil {
		t.Fatalf("EncodeSurveySource: %v", err)
	}
	survey, source, orig := targetid.DecodeSurveySource(id)
	if survey != 2 || source != 129 || orig != 4503599627370495 {
		t.Fatalf("round trip = (%d, %d, %d)", survey, source, orig)
	}
}

func TestSurveySourceRejectsWideUserID(t *testing.T) {
	if _, err := targetid.EncodeSurveySource(0, 0, targetid.MaxUserID+1); err == nil {
		t.Fatal("caller id wider than 52 bits must be fatal")
	}
	if _, err := targetid.EncodeSurveySource(16, 0, 0); err == nil {
		t.Fatal("survey tag wider than 4 bits must be fatal")
	}
}

func TestSurveySourceBatchPreservesUniqueness(t *testing.T) {
	ids, err := targetid.EncodeSurveySourceBatch(1, 3, []int64{10, 11, 12})
	if err != nil {
		t.Fatalf("EncodeSurveySourceBatch: %v", err)
	}
	seen := map[int64]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate encoded id %d", id)
		}
		seen[id] = true
	}

	if _, err := targetid.EncodeSurveySourceBatch(1, 3, []int64{10, 10}); err == nil {
		t.Fatal("duplicate inputs must be reported as a collision")
	}
}

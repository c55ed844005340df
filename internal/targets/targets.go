// Package targets defines the in-memory record for one astronomical
// survey target and the tagged survey-generation variant that selects
// which classification columns and mask tables apply to a batch.
package targets

// Target is one row of a target catalog. The classification words are
// interpreted against the batch's survey generation: main and SV
// batches use Desi/BGS/MWS, commissioning batches use Cmx.
type Target struct {
	// Imaging provenance.
	Release   int32
	BrickID   int32
	BrickName string
	ObjID     int32
	MorphType string
	RA        float64
	Dec       float64
	PhotSys   byte // 'N' or 'S'

	// Classification words.
	DesiTarget uint64
	BGSTarget  uint64
	MWSTarget  uint64
	CmxTarget  uint64

	// Scheduling fields set by the finalizer and the store.
	TargetID           int64
	SubPriority        float64
	PriorityInit       int64
	NumObsInit         int64
	PriorityInitDark   int64
	NumObsInitDark     int64
	PriorityInitBright int64
	NumObsInitBright   int64
	ObsConditions      int64

	// Observations taken so far; consumed by the numobs rules.
	NumObs int32

	// Pixel index at the catalog nside, set when writing.
	HPXPixel int64
}

// ZCat is the per-epoch observation history of one target. It is
// supplied externally, one record per target, aligned with the batch
// being scored.
type ZCat struct {
	Z          float64
	ZWarn      int64
	NumObs     int64
	NumObsMore int64
}


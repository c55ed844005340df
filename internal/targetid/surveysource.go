package targetid

import "fmt"

// Layout of the survey/source-class packing applied to externally
// supplied identifiers: 52 bits of caller identifier, 8 bits of
// per-survey source class, 4 bits of survey tag.
const (
	UserBits   = 52
	SourceBits = 8
	SurveyBits = 4

	userShift   = 0
	sourceShift = UserBits
	surveyShift = UserBits + SourceBits

	// MaxUserID is the largest caller identifier that survives the
	// packing unchanged.
	MaxUserID = 1<<UserBits - 1
	// MaxSource and MaxSurvey bound the provenance tags.
	MaxSource = 1<<SourceBits - 1
	MaxSurvey = 1<<SurveyBits - 1
)

// EncodeSurveySource folds survey and source-class provenance into the
// high bits of a caller-supplied identifier. If the input identifiers
// were unique the outputs are unique too; an identifier that collides
// with the reserved high bits is fatal.
func EncodeSurveySource(survey, source, originalID int64) (int64, error) {
	if err := checkField("SURVEY", survey, SurveyBits); err != nil {
		return 0, err
	}
	if err := checkField("SOURCE", source, SourceBits); err != nil {
		return 0, err
	}
	if err := checkField("ORIGINAL_ID", originalID, UserBits); err != nil {
		return 0, err
	}
	return survey<<surveyShift | source<<sourceShift | originalID<<userShift, nil
}

// DecodeSurveySource recovers the survey tag, source class and original
// identifier from a packed value.
func DecodeSurveySource(id int64) (survey, source, originalID int64) {
	survey = id >> surveyShift & MaxSurvey
	source = id >> sourceShift & MaxSource
	originalID = id & MaxUserID
	return survey, source, originalID
}

// EncodeSurveySourceBatch packs one survey/source tag across a batch of
// caller identifiers and verifies the outputs remain pairwise distinct.
func EncodeSurveySourceBatch(survey, source int64, originalIDs []int64) ([]int64, error) {
	out := make([]int64, len(originalIDs))
	seen := make(map[int64]struct{}, len(originalIDs))
	for i, orig := range originalIDs {
		id, err := EncodeSurveySource(survey, source, orig)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("targetid: encoded identifier collision for original id %d", orig)
		}
		seen[id] = struct{}{}
		out[i] = id
	}
	return out, nil
}

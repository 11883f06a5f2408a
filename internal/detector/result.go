package detector

import (
	"bytes"
	"encoding/json"
	"fmt"

	"behavior-backend/internal/models"

	"gorm.io/datatypes"
)

// Result is the parsed subset of a Detector response the backend acts on.
// The full body is kept separately and stored verbatim.
type Result struct {
	HasAbnormal      bool
	BehaviorType     *string
	Confidence       *float64
	VisualizationURL *string
	Frames           []Frame
}

// Frame is one entry of abnormal_frames.
type Frame struct {
	FrameNumber  *int                       `json:"frame_number"`
	Timestamp    *float64                   `json:"timestamp"`
	BehaviorType *string                    `json:"behavior_type"`
	Confidence   *float64                   `json:"confidence"`
	BoundingBox  json.RawMessage            `json:"bbox"`
	Keypoints    json.RawMessage            `json:"keypoints"`
	Extra        map[string]json.RawMessage `json:"-"`
}

type wireResult struct {
	HasAbnormal      *bool             `json:"has_abnormal"`
	BehaviorType     *string           `json:"behavior_type"`
	Confidence       *float64          `json:"confidence"`
	VisualizationURL *string           `json:"visualization_url"`
	AbnormalFrames   []json.RawMessage `json:"abnormal_frames"`
}

// ParseResult validates a 2xx body. It must be a JSON object whose
// has_abnormal field is a boolean; everything else is optional.
func ParseResult(body []byte) (*Result, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrMalformedResponse)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	rawFlag, ok := probe["has_abnormal"]
	if !ok {
		return nil, fmt.Errorf("%w: has_abnormal is missing", ErrMalformedResponse)
	}
	var flag bool
	if err := json.Unmarshal(rawFlag, &flag); err != nil || bytes.Equal(bytes.TrimSpace(rawFlag), []byte("null")) {
		return nil, fmt.Errorf("%w: has_abnormal is not a boolean", ErrMalformedResponse)
	}

	var w wireResult
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	r := &Result{
		HasAbnormal:      flag,
		BehaviorType:     nonEmpty(w.BehaviorType),
		Confidence:       w.Confidence,
		VisualizationURL: nonEmpty(w.VisualizationURL),
	}
	for _, raw := range w.AbnormalFrames {
		f, err := parseFrame(raw)
		if err != nil {
			// a bad frame entry does not invalidate the detection
			continue
		}
		r.Frames = append(r.Frames, f)
	}
	return r, nil
}

func parseFrame(raw json.RawMessage) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return Frame{}, err
	}
	for _, k := range []string{"frame_number", "timestamp", "behavior_type", "confidence", "bbox", "keypoints"} {
		delete(all, k)
	}
	if len(all) > 0 {
		f.Extra = all
	}
	return f, nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// Behaviors converts frames into BehaviorData rows. Frames without a behavior
// type fall back to the detection-level type.
func (r *Result) Behaviors() []models.BehaviorData {
	if len(r.Frames) == 0 {
		return nil
	}
	out := make([]models.BehaviorData, 0, len(r.Frames))
	for _, f := range r.Frames {
		behavior := ""
		switch {
		case f.BehaviorType != nil && *f.BehaviorType != "":
			behavior = *f.BehaviorType
		case r.BehaviorType != nil:
			behavior = *r.BehaviorType
		default:
			continue
		}
		row := models.BehaviorData{
			BehaviorType: behavior,
			FrameNumber:  f.FrameNumber,
			Timestamp:    f.Timestamp,
		}
		if f.Confidence != nil {
			row.Confidence = *f.Confidence
		}
		if len(f.BoundingBox) > 0 && string(f.BoundingBox) != "null" {
			row.BoundingBox = datatypes.JSON(f.BoundingBox)
		}
		if len(f.Keypoints) > 0 && string(f.Keypoints) != "null" {
			row.Keypoints = datatypes.JSON(f.Keypoints)
		}
		if len(f.Extra) > 0 {
			if b, err := json.Marshal(f.Extra); err == nil {
				row.AdditionalInfo = datatypes.JSON(b)
			}
		}
		out = append(out, row)
	}
	return out
}

// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package process

// Metadata keys the core reads and writes.
const (
	MetadataResult         = "result"
	MetadataExtensions     = "extensions"
	MetadataCommercialURLs = "commercialImageUrls"
)

// Video describes the source video of a job.
type Video struct {
	SourceURL string                 `json:"sourceUrl,omitempty"`
	LocalPath string                 `json:"localPath,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Frame is one extracted product frame and its accumulated attributes.
type Frame struct {
	ID               string                 `json:"id"`
	LocalPath        string                 `json:"localPath,omitempty"`
	RemoteURL        string                 `json:"remoteUrl,omitempty"`
	Timestamp        float64                `json:"timestamp"`
	Score            *float64               `json:"score,omitempty"`
	Classification   map[string]interface{} `json:"classification,omitempty"`
	BestPerSecond    bool                   `json:"bestPerSecond,omitempty"`
	IsFinalSelection bool                   `json:"isFinalSelection,omitempty"`
	RowID            int64                  `json:"rowId,omitempty"`
}

// ScoreValue returns the frame's score, treating a missing score as 0.
func (f *Frame) ScoreValue() float64 {
	if f.Score == nil {
		return 0
	}
	return *f.Score
}

// CommercialImage is one generated commercial-ready image.
type CommercialImage struct {
	FrameID   string `json:"frameId"`
	Version   string `json:"version"`
	LocalPath string `json:"localPath,omitempty"`
	RemoteURL string `json:"remoteUrl,omitempty"`
}

// Data is the pipeline data envelope threaded through the processors of one
// job. Processors return the additions and replacements to merge into it;
// they never share it across jobs.
type Data struct {
	Video            *Video                 `json:"video,omitempty"`
	Frames           []*Frame               `json:"frames,omitempty"`
	CommercialImages []*CommercialImage     `json:"commercialImages,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// NewData creates an empty envelope.
func NewData() *Data {
	return &Data{Metadata: map[string]interface{}{}}
}

// AvailableIO infers the capability set present in the envelope. It is used
// to seed stack validation from the initial data; during execution the
// capability set is advanced by the declared produces tags instead.
func (d *Data) AvailableIO() IOSet {
	s := IOSet{}
	if d == nil {
		return s
	}
	if d.Video != nil && (d.Video.SourceURL != "" || d.Video.LocalPath != "") {
		s.Add(IOVideo)
	}
	if len(d.Frames) > 0 {
		s.Add(IOFrames, IOImages)
		for _, f := range d.Frames {
			if f.Score != nil {
				s.Add(IOFrameScores)
			}
			if len(f.Classification) > 0 {
				s.Add(IOFrameClassifications)
			}
		}
	}
	if len(d.CommercialImages) > 0 {
		s.Add(IOCommercialImages)
	}
	return s
}

// FinalFrames returns the frames marked as final selection.
func (d *Data) FinalFrames() []*Frame {
	out := []*Frame{}
	for _, f := range d.Frames {
		if f.IsFinalSelection {
			out = append(out, f)
		}
	}
	return out
}

// Merge merges a processor result delta into the envelope. Top-level fields
// are replaced when set; metadata is merged deeply so that processors can
// accumulate extension values without clobbering each other.
func (d *Data) Merge(delta *Data) {
	if delta == nil {
		return
	}
	if delta.Video != nil {
		d.Video = delta.Video
	}
	if delta.Frames != nil {
		d.Frames = delta.Frames
	}
	if delta.CommercialImages != nil {
		d.CommercialImages = delta.CommercialImages
	}
	if len(delta.Metadata) > 0 {
		if d.Metadata == nil {
			d.Metadata = map[string]interface{}{}
		}
		d.Metadata = deepMerge(d.Metadata, delta.Metadata)
	}
}

func deepMerge(dst, src map[string]interface{}) map[string]interface{} {
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]interface{})
		dstMap, dstIsMap := dst[k].(map[string]interface{})
		if srcIsMap && dstIsMap {
			dst[k] = deepMerge(dstMap, srcMap)
			continue
		}
		dst[k] = v
	}
	return dst
}

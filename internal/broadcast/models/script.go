package models

import "time"

type SegmentPriority string

const (
	PriorityTopStory SegmentPriority = "TopStory"
	PriorityMajor    SegmentPriority = "Major"
	PriorityStandard SegmentPriority = "Standard"
	PriorityLight    SegmentPriority = "Light"
)

type VisualContentType string

const (
	EditorialImage   VisualContentType = "EditorialImage"
	GeneratedMap     VisualContentType = "GeneratedMap"
	StockFootage     VisualContentType = "StockFootage"
	AiGeneratedImage VisualContentType = "AiGeneratedImage"
	GeneratedGraphic VisualContentType = "GeneratedGraphic"
)

type VisualStrategy string

const (
	EditorialImagesOnly      VisualStrategy = "EditorialImagesOnly"
	EditorialImagesWithMaps  VisualStrategy = "EditorialImagesWithMaps"
	MapsAndDataGraphics      VisualStrategy = "MapsAndDataGraphics"
	StockFootageStrategy     VisualStrategy = "StockFootage"
	AiGeneratedIllustrations VisualStrategy = "AiGeneratedIllustrations"
	CombinedStrategy         VisualStrategy = "Combined"
)

type Script struct {
	BroadcastID              string      `json:"broadcast_id"`
	GeneratedAt              time.Time   `json:"generated_at"`
	Language                 string      `json:"language"`
	TotalSegments            int         `json:"total_segments"`
	EstimatedDurationSeconds int         `json:"estimated_duration_seconds"`
	Intro                    ScriptIntro `json:"intro"`
	Segments                 []Segment   `json:"segments"`
	Outro                    ScriptOutro `json:"outro"`
}

type ScriptIntro struct {
	AnchorText string `json:"anchor_text"`
	Tone       string `json:"tone"`
}

type ScriptOutro struct {
	AnchorText string `json:"anchor_text"`
	Tone       string `json:"tone"`
}

// Segment is one news item's worth of script content.
type Segment struct {
	SegmentNumber int             `json:"segment_number"`
	Category      Category        `json:"category"`
	Headline      string          `json:"headline"`
	Source        string          `json:"source"`
	SourceURL     string          `json:"source_url"`
	Priority      SegmentPriority `json:"priority"`
	AnchorIntro   Section         `json:"anchor_intro"`
	Voiceover     Section         `json:"broll_voiceover"`
	VisualContent VisualContent   `json:"visual_content"`
	AnchorOutro   Section         `json:"anchor_outro"`
	LowerThird    LowerThird      `json:"lower_third"`
}

// Section is a spoken block of a segment.
type Section struct {
	Text             string `json:"text"`
	Tone             string `json:"tone"`
	EstimatedSeconds int    `json:"estimated_seconds"`
}

type VisualContent struct {
	Type     string         `json:"type"`
	Strategy VisualStrategy `json:"visual_strategy"`
	Scenes   []VisualScene  `json:"scenes"`
}

type VisualScene struct {
	Description     string            `json:"description"`
	Type            VisualContentType `json:"type"`
	DurationSeconds int               `json:"duration_seconds"`
	Prompt          string            `json:"prompt,omitempty"`
	SearchTerms     []string          `json:"search_terms,omitempty"`
	SourceHint      string            `json:"source_hint,omitempty"`
	DataHint        string            `json:"data_hint,omitempty"`
}

type LowerThird struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

// Clone returns a deep copy of s. A nil script clones to nil.
func (s *Script) Clone() *Script {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Segments = make([]Segment, len(s.Segments))
	for i, seg := range s.Segments {
		scenes := make([]VisualScene, len(seg.VisualContent.Scenes))
		for j, sc := range seg.VisualContent.Scenes {
			sc.SearchTerms = append([]string(nil), sc.SearchTerms...)
			scenes[j] = sc
		}
		seg.VisualContent.Scenes = scenes
		cp.Segments[i] = seg
	}
	return &cp
}

// Segment returns the segment with the given 1-based number.
func (s *Script) Segment(number int) (Segment, bool) {
	if s == nil {
		return Segment{}, false
	}
	for _, seg := range s.Segments {
		if seg.SegmentNumber == number {
			return seg, true
		}
	}
	return Segment{}, false
}

// Package mock provides deterministic implementations of every capability
// port. Outputs depend only on inputs, so replayed tasks produce the same
// artifact paths.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/newsroom/internal/broadcast/models"
	"github.com/romariotrain/newsroom/internal/broadcast/ports"
)

// New returns a port set backed entirely by mocks.
func New(logger zerolog.Logger) ports.Set {
	return ports.Set{
		News:     NewNewsSource(logger),
		Script:   NewScriptGenerator(logger),
		Speech:   NewSpeechSynthesizer(logger),
		Avatar:   NewAvatarRenderer(logger),
		Visual:   NewVisualProvider(logger),
		Composer: NewVideoComposer(logger),
	}
}

func hash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:16]
}

type NewsSource struct {
	logger zerolog.Logger
	clock  func() time.Time
}

func NewNewsSource(logger zerolog.Logger) *NewsSource {
	return &NewsSource{
		logger: logger.With().Str("component", "mock_news").Logger(),
		clock:  time.Now,
	}
}

type catalogueEntry struct {
	id, title, summary, content, source, url, image string
	category                                        models.Category
	age                                             time.Duration
}

var catalogue = []catalogueEntry{
	{
		id:       "mock-001",
		title:    "Kraftiga översvämningar drabbar Västsverige",
		summary:  "Räddningstjänsten har under natten fått in över tvåhundra larm om översvämningar i Göteborgsregionen.",
		content:  "Under det senaste dygnet har kraftiga skyfall orsakat stora översvämningar i Göteborgsregionen. Räddningstjänsten har fått in över 200 larm och flera vägar har stängts av.",
		source:   "SVT Nyheter",
		url:      "https://www.svt.se/nyheter/lokalt/vast/oversvamningar-goteborg",
		image:    "https://www.svt.se/image/wide/992/oversvamning.jpg",
		category: models.Inrikes,
		age:      2 * time.Hour,
	},
	{
		id:       "mock-002",
		title:    "EU skärper reglerna för artificiell intelligens",
		summary:  "EU-parlamentet har röstat igenom nya skärpta regler för AI-system.",
		content:  "EU-parlamentet har med bred majoritet antagit nya regler för artificiell intelligens. Reglerna innebär krav på transparens för AI-genererat innehåll.",
		source:   "Dagens Nyheter",
		url:      "https://www.dn.se/varlden/eu-skarper-ai-regler",
		image:    "https://www.dn.se/images/eu-parlament-ai.jpg",
		category: models.Utrikes,
		age:      4 * time.Hour,
	},
	{
		id:       "mock-003",
		title:    "Malmö FF vinner svenska cupen",
		summary:  "Malmö FF besegrade AIK med 3-2 i en dramatisk cupfinal.",
		content:  "Malmö FF tog hem svenska cupen efter en rafflande final mot AIK. Matchen slutade 3-2.",
		source:   "Expressen",
		url:      "https://www.expressen.se/sport/fotboll/malmo-ff-vinner-cupen",
		image:    "https://www.expressen.se/images/malmo-cup.jpg",
		category: models.Sport,
		age:      time.Hour,
	},
	{
		id:       "mock-004",
		title:    "Riksbanken sänker styrräntan till 2,5 procent",
		summary:  "Riksbanken meddelar att styrräntan sänks med 0,25 procentenheter.",
		content:  "Riksbanken har beslutat att sänka reporäntan med 0,25 procentenheter till 2,5 procent.",
		source:   "SVT Nyheter",
		url:      "https://www.svt.se/nyheter/ekonomi/riksbanken-sanker-rantan",
		image:    "https://www.svt.se/image/wide/992/riksbanken.jpg",
		category: models.Ekonomi,
		age:      3 * time.Hour,
	},
	{
		id:       "mock-005",
		title:    "Ny cybersäkerhetsattack mot svenska myndigheter",
		summary:  "Flera svenska myndigheter har drabbats av en koordinerad cyberattack.",
		content:  "MSB bekräftar att flera svenska myndigheter utsatts för en koordinerad cyberattack under natten.",
		source:   "Sveriges Radio",
		url:      "https://sverigesradio.se/artikel/cyberattack",
		category: models.Teknik,
		age:      5 * time.Hour,
	},
	{
		id:       "mock-006",
		title:    "Kulturministern presenterar ny filmsatsning",
		summary:  "Regeringen satsar 200 miljoner kronor på svensk filmproduktion.",
		content:  "Kulturministern presenterade en ny satsning på svensk film. Totalt 200 miljoner kronor fördelas under tre år.",
		source:   "Dagens Nyheter",
		url:      "https://www.dn.se/kultur-noje/ny-filmsatsning",
		image:    "https://www.dn.se/images/film.jpg",
		category: models.Kultur,
		age:      6 * time.Hour,
	},
	{
		id:       "mock-007",
		title:    "Regeringen presenterar ny energipolitik",
		summary:  "Energiministern lägger fram förslag om utbyggd kärnkraft och vindkraft.",
		content:  "Regeringen har presenterat en ny energipolitisk strategi med fokus på kärnkraft och vindkraft.",
		source:   "SVT Nyheter",
		url:      "https://www.svt.se/nyheter/inrikes/ny-energipolitik",
		image:    "https://www.svt.se/image/wide/992/energi.jpg",
		category: models.Politik,
		age:      7 * time.Hour,
	},
}

// FetchArticles returns catalogue articles in the requested categories, in
// catalogue order, up to max. The time window is not applied.
func (s *NewsSource) FetchArticles(ctx context.Context, hours int, categories []models.Category, max int) ([]models.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if max <= 0 {
		return []models.Article{}, nil
	}
	want := models.Request{Categories: categories}
	now := s.clock().UTC()

	out := make([]models.Article, 0, max)
	for _, e := range catalogue {
		if len(out) >= max {
			break
		}
		if !want.Includes(e.category) {
			continue
		}
		out = append(out, models.Article{
			ID:          e.id,
			Title:       e.title,
			Summary:     e.summary,
			Content:     e.content,
			SourceName:  e.source,
			SourceURL:   e.url,
			ImageURL:    e.image,
			Category:    e.category,
			PublishedAt: now.Add(-e.age),
			FetchedAt:   now,
		})
	}

	s.logger.Info().
		Int("hours", hours).
		Int("max", max).
		Int("count", len(out)).
		Msg("returning mock articles")
	return out, nil
}

type ScriptGenerator struct {
	logger zerolog.Logger
	clock  func() time.Time
}

func NewScriptGenerator(logger zerolog.Logger) *ScriptGenerator {
	return &ScriptGenerator{
		logger: logger.With().Str("component", "mock_script").Logger(),
		clock:  time.Now,
	}
}

func (g *ScriptGenerator) GenerateScript(ctx context.Context, articles []models.Article) (*models.Script, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := make([]string, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}

	script := &models.Script{
		BroadcastID:              hash(ids...),
		GeneratedAt:              g.clock().UTC(),
		Language:                 "sv",
		TotalSegments:            len(articles),
		EstimatedDurationSeconds: 60 + len(articles)*60 + 30,
		Intro: models.ScriptIntro{
			AnchorText: "God kväll och välkommen till Nyhetskollen. Jag heter Anna Lindström. Ikväll tar vi en titt på de senaste händelserna.",
			Tone:       "warm, professional, welcoming",
		},
		Outro: models.ScriptOutro{
			AnchorText: "Det var allt för ikväll. Tack för att ni tittade. Vi ses imorgon. God natt.",
			Tone:       "warm, closing",
		},
	}

	for i, a := range articles {
		outro := "Vi går vidare."
		if i == len(articles)-1 {
			outro = "Och det leder oss till avslutningen av dagens sändning."
		}
		subtitle := a.Summary
		if r := []rune(subtitle); len(r) > 60 {
			subtitle = string(r[:60]) + "..."
		}

		script.Segments = append(script.Segments, models.Segment{
			SegmentNumber: i + 1,
			Category:      a.Category,
			Headline:      a.Title,
			Source:        a.SourceName,
			SourceURL:     a.SourceURL,
			Priority:      priority(i, len(articles)),
			AnchorIntro: models.Section{
				Text:             "Vi går vidare till nästa nyhet. " + a.Summary,
				Tone:             ToneFor(a.Category),
				EstimatedSeconds: 12,
			},
			Voiceover: models.Section{
				Text:             a.Content,
				Tone:             ToneFor(a.Category),
				EstimatedSeconds: 35,
			},
			VisualContent: models.VisualContent{
				Type:     "mock",
				Strategy: strategyFor(a.Category),
				Scenes: []models.VisualScene{
					{
						Description:     "Illustrativ bild för: " + a.Title,
						Type:            models.StockFootage,
						DurationSeconds: 8,
						SearchTerms:     []string{strings.ToLower(string(a.Category))},
					},
					{
						Description:     "Kompletterande bild för: " + a.Title,
						Type:            models.AiGeneratedImage,
						DurationSeconds: 8,
						Prompt:          fmt.Sprintf("Editorial illustration of %s, conceptual, magazine style", a.Category),
					},
				},
			},
			AnchorOutro: models.Section{
				Text:             outro,
				Tone:             "transitional",
				EstimatedSeconds: 4,
			},
			LowerThird: models.LowerThird{
				Title:    strings.ToUpper(a.Title),
				Subtitle: subtitle,
			},
		})
	}

	g.logger.Info().
		Int("segments", script.TotalSegments).
		Int("estimated_seconds", script.EstimatedDurationSeconds).
		Msg("generated mock script")
	return script, nil
}

func priority(i, n int) models.SegmentPriority {
	switch {
	case i == 0:
		return models.PriorityTopStory
	case i < 3:
		return models.PriorityMajor
	case i < n-1:
		return models.PriorityStandard
	default:
		return models.PriorityLight
	}
}

// ToneFor returns the narration tone used for a news category.
func ToneFor(c models.Category) string {
	switch c {
	case models.Inrikes:
		return "serious, informative"
	case models.Utrikes:
		return "serious, concerned"
	case models.Sport:
		return "enthusiastic, energetic"
	case models.Politik, models.Ekonomi:
		return "neutral, analytical"
	case models.Noje:
		return "light, entertaining"
	case models.Teknik:
		return "curious, informative"
	case models.Vader:
		return "informative, practical"
	case models.Kultur:
		return "warm, interested"
	default:
		return "neutral, professional"
	}
}

func strategyFor(c models.Category) models.VisualStrategy {
	switch c {
	case models.Ekonomi:
		return models.MapsAndDataGraphics
	case models.Teknik:
		return models.AiGeneratedIllustrations
	case models.Vader:
		return models.CombinedStrategy
	default:
		return models.EditorialImagesWithMaps
	}
}

type SpeechSynthesizer struct {
	logger zerolog.Logger
}

func NewSpeechSynthesizer(logger zerolog.Logger) *SpeechSynthesizer {
	return &SpeechSynthesizer{logger: logger.With().Str("component", "mock_tts").Logger()}
}

// SynthesizeSpeech names the audio after a hash of the text and estimates
// its length at 2.5 words per second.
func (s *SpeechSynthesizer) SynthesizeSpeech(ctx context.Context, text, tone string) (ports.SpeechResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.SpeechResult{}, err
	}
	words := len(strings.Fields(text))
	h := hash(text)
	res := ports.SpeechResult{
		AudioPath:       "mock://audio/" + h + ".mp3",
		DurationSeconds: float64(words) / 2.5,
		ContentHash:     h,
	}
	s.logger.Debug().Int("words", words).Float64("duration", res.DurationSeconds).Msg("generated mock audio")
	return res, nil
}

type AvatarRenderer struct {
	logger zerolog.Logger
}

func NewAvatarRenderer(logger zerolog.Logger) *AvatarRenderer {
	return &AvatarRenderer{logger: logger.With().Str("component", "mock_avatar").Logger()}
}

func (r *AvatarRenderer) RenderAvatar(ctx context.Context, audioPath, tone string) (ports.AvatarResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.AvatarResult{}, err
	}
	res := ports.AvatarResult{
		VideoPath:       "mock://avatar/" + strings.ToLower(hash(audioPath, tone)) + ".mp4",
		DurationSeconds: 15,
	}
	r.logger.Debug().Str("audio", audioPath).Msg("generated mock avatar video")
	return res, nil
}

type VisualProvider struct {
	logger zerolog.Logger
}

func NewVisualProvider(logger zerolog.Logger) *VisualProvider {
	return &VisualProvider{logger: logger.With().Str("component", "mock_broll").Logger()}
}

// GenerateVisual returns stock footage as video and everything else as an image.
func (p *VisualProvider) GenerateVisual(ctx context.Context, req ports.VisualRequest) (ports.VisualResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.VisualResult{}, err
	}
	isVideo := req.ContentType == models.StockFootage
	ext := "jpg"
	if isVideo {
		ext = "mp4"
	}
	res := ports.VisualResult{
		Path:            fmt.Sprintf("mock://broll/%s.%s", strings.ToLower(hash(string(req.ContentType), req.Description, req.Prompt)), ext),
		DurationSeconds: 8,
		IsVideo:         isVideo,
	}
	if isVideo {
		res.Attribution = "Pexels (mock)"
	}
	p.logger.Debug().Str("type", string(req.ContentType)).Str("description", req.Description).Msg("generated mock b-roll")
	return res, nil
}

type VideoComposer struct {
	logger zerolog.Logger
}

func NewVideoComposer(logger zerolog.Logger) *VideoComposer {
	return &VideoComposer{logger: logger.With().Str("component", "mock_composer").Logger()}
}

func (c *VideoComposer) ComposeVideo(ctx context.Context, script *models.Script, assets *models.CompositionAssets) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if script == nil {
		return "", fmt.Errorf("%w: nil script", models.ErrInvalidArgument)
	}
	c.logger.Info().
		Str("broadcast_id", script.BroadcastID).
		Int("segments", script.TotalSegments).
		Msg("mock composing video")
	return "mock://broadcasts/" + script.BroadcastID + ".mp4", nil
}

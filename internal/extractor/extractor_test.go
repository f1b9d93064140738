package extractor

import (
	"testing"

	"llm-aeo-tracker/internal/config"
	"llm-aeo-tracker/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const evAnswer = `Here are the best electric car companies:

1. **Tesla** - The leading EV maker with excellent range.
2. **BYD** - Popular in China.
3. **Rivian** - Innovative trucks.
4. **Nikola** - Criticized for poor execution and lawsuit problems.`

type stubDetector string

func (s stubDetector) Detect(string) string { return string(s) }

func newTestExtractor(mutate func(*Options)) *Extractor {
	opts := OptionsFromConfig(config.Default())
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts, nil)
}

func intPtr(v int) *int { return &v }

func TestExtract_ListPositions(t *testing.T) {
	ex := newTestExtractor(nil)

	tests := []struct {
		brand     string
		position  *int
		sentiment domain.Sentiment
	}{
		{brand: "Tesla", position: intPtr(1), sentiment: domain.SentimentPositive},
		{brand: "BYD", position: intPtr(2), sentiment: domain.SentimentPositive},
		// the Nikola item next door outweighs Rivian's own praise
		{brand: "rivian", position: intPtr(3), sentiment: domain.SentimentNegative},
		{brand: "Lucid", position: nil, sentiment: domain.SentimentNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.brand, func(t *testing.T) {
			got := ex.Extract(evAnswer, tt.brand, nil)
			assert.Equal(t, tt.position, got.Position)
			assert.Equal(t, tt.sentiment, got.Sentiment)
		})
	}
}

func TestExtract_NegativeWindow(t *testing.T) {
	ex := newTestExtractor(func(o *Options) { o.Window = 0 })

	got := ex.Extract(evAnswer, "Nikola", nil)

	require.NotNil(t, got.Position)
	assert.Equal(t, 4, *got.Position)
	assert.Equal(t, domain.SentimentNegative, got.Sentiment)
	assert.Equal(t, "Nikola - Criticized for poor execution and lawsuit problems.", got.Snippet)
}

func TestExtract_NoMatch(t *testing.T) {
	ex := newTestExtractor(nil)

	got := ex.Extract(evAnswer, "Polestar", []string{"Volvo EV"})

	assert.Nil(t, got.Position)
	assert.Equal(t, domain.SentimentNeutral, got.Sentiment)
	assert.Empty(t, got.Snippet)
	assert.Zero(t, got.Occurrences)
}

func TestExtract_EmptyBrand(t *testing.T) {
	ex := newTestExtractor(nil)

	got := ex.Extract(evAnswer, "  ", nil)

	assert.Nil(t, got.Position)
	assert.Equal(t, domain.SentimentNeutral, got.Sentiment)
}

func TestExtract_WordBoundaries(t *testing.T) {
	ex := newTestExtractor(nil)

	assert.Nil(t, ex.Extract("Teslamotors fan club meets today.", "Tesla", nil).Position)
	assert.NotNil(t, ex.Extract("Everyone talks about TESLA, again.", "Tesla", nil).Position)
	assert.NotNil(t, ex.Extract("We tried Mercedes-Benz last week.", "Mercedes-Benz", nil).Position)
}

func TestExtract_Aliases(t *testing.T) {
	ex := newTestExtractor(nil)

	got := ex.Extract("Social networks vary. Facebook dominates by reach.", "Meta", []string{"Facebook"})

	require.NotNil(t, got.Position)
	assert.Equal(t, 1, *got.Position)
	assert.Equal(t, "Facebook dominates by reach.", got.Snippet)
}

func TestExtract_CompetitorsCountAsEntities(t *testing.T) {
	ex := newTestExtractor(nil)
	text := "Many brands compete. BYD leads on volume. Tesla follows closely."

	alone := ex.Extract(text, "Tesla", nil)
	withCompetitors := ex.ExtractWithEntities(text, "Tesla", nil, []string{"BYD"})

	require.NotNil(t, alone.Position)
	require.NotNil(t, withCompetitors.Position)
	assert.Equal(t, 1, *alone.Position)
	assert.Equal(t, 2, *withCompetitors.Position)
}

func TestExtract_SameSegmentSharesRank(t *testing.T) {
	ex := newTestExtractor(nil)
	text := "Intro text here. BYD and Tesla lead the market."

	byd := ex.ExtractWithEntities(text, "BYD", nil, []string{"Tesla"})
	tesla := ex.ExtractWithEntities(text, "Tesla", nil, []string{"BYD"})

	require.NotNil(t, byd.Position)
	require.NotNil(t, tesla.Position)
	assert.Equal(t, *byd.Position, *tesla.Position)
}

func TestExtract_ParagraphMode(t *testing.T) {
	text := "Many brands compete. BYD leads on volume. Tesla follows closely.\n\nTesla also sells energy storage."
	sentence := newTestExtractor(nil)
	paragraph := newTestExtractor(func(o *Options) { o.Mode = config.SegmentParagraph })

	s := sentence.ExtractWithEntities(text, "Tesla", nil, []string{"BYD"})
	p := paragraph.ExtractWithEntities(text, "Tesla", nil, []string{"BYD"})

	require.NotNil(t, s.Position)
	require.NotNil(t, p.Position)
	assert.Equal(t, 2, *s.Position)
	assert.Equal(t, 2, s.Occurrences)
	assert.Equal(t, 1, *p.Position)
	assert.Equal(t, 2, p.Occurrences)
}

func TestExtract_ListItemsNotEntities(t *testing.T) {
	ex := newTestExtractor(func(o *Options) { o.ListItemsAreEntities = false })

	got := ex.Extract(evAnswer, "Rivian", nil)

	require.NotNil(t, got.Position)
	assert.Equal(t, 1, *got.Position)
}

func TestExtract_LanguageDetection(t *testing.T) {
	text := "1. Tesla es la mejor marca de autos eléctricos."

	spanish := New(OptionsFromConfig(config.Default()), stubDetector("es"))
	unknown := New(OptionsFromConfig(config.Default()), stubDetector("de"))

	es := spanish.Extract(text, "Tesla", nil)
	fallback := unknown.Extract(text, "Tesla", nil)

	assert.Equal(t, "es", es.Language)
	assert.Equal(t, domain.SentimentPositive, es.Sentiment)
	assert.Equal(t, "en", fallback.Language)
	assert.Equal(t, domain.SentimentNeutral, fallback.Sentiment)
}

func TestExtract_PhraseLexicon(t *testing.T) {
	ex := newTestExtractor(func(o *Options) {
		o.Lexicons = map[string]config.Lexicon{
			"en": {Negative: []string{"falls short"}},
		}
	})

	got := ex.Extract("Acme falls short on support.", "Acme", nil)

	assert.Equal(t, domain.SentimentNegative, got.Sentiment)
}

func TestExtract_SnippetTruncation(t *testing.T) {
	ex := newTestExtractor(func(o *Options) { o.MaxSnippet = 20 })

	got := ex.Extract("Tesla builds cars, batteries, solar roofs and software.", "Tesla", nil)

	assert.Equal(t, "Tesla builds cars...", got.Snippet)
	assert.LessOrEqual(t, len([]rune(got.Snippet)), 20)
}

func TestExtract_Idempotent(t *testing.T) {
	ex := newTestExtractor(nil)

	first := ex.ExtractWithEntities(evAnswer, "BYD", []string{"Build Your Dreams"}, []string{"Tesla"})
	second := ex.ExtractWithEntities(evAnswer, "BYD", []string{"Build Your Dreams"}, []string{"Tesla"})

	assert.Equal(t, first, second)
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Version 3.5 shipped. Is it good? Yes! Done")

	assert.Equal(t, []string{"Version 3.5 shipped.", " Is it good?", " Yes!", " Done"}, got)
}

func TestCountMatches(t *testing.T) {
	assert.Equal(t, 2, countMatches("tesla tesla", "tesla"))
	assert.Equal(t, 0, countMatches("teslas", "tesla"))
	assert.Equal(t, 1, countMatches("(tesla)", "tesla"))
	assert.Equal(t, 0, countMatches("anything", ""))
}

func TestExtract_OccurrencesCountEveryMention(t *testing.T) {
	ex := newTestExtractor(nil)

	tests := []struct {
		name    string
		text    string
		brand   string
		aliases []string
		want    int
	}{
		{name: "repeated in one sentence", text: "Tesla beats Tesla rivals and Tesla wins.", brand: "Tesla", want: 3},
		{name: "across sentences", text: "Tesla leads. Critics doubt Tesla. Tesla ships anyway.", brand: "Tesla", want: 3},
		{name: "overlapping alias counted once", text: "Tesla Motors was renamed. Tesla grew.", brand: "Tesla", aliases: []string{"Tesla Motors"}, want: 2},
		{name: "alias and brand", text: "Meta owns Facebook and Instagram.", brand: "Meta", aliases: []string{"Facebook"}, want: 2},
		{name: "glued words ignored", text: "Teslamotors is not Tesla.", brand: "Tesla", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ex.Extract(tt.text, tt.brand, tt.aliases)
			assert.Equal(t, tt.want, got.Occurrences)
		})
	}
}

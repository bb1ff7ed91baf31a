package chunker

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"
)

// DefaultCharsPerToken is the heuristic divisor used when the tokenizer is
// unavailable: roughly four characters per token for English-like text.
const DefaultCharsPerToken = 4

// Estimator counts tokens with the model's tiktoken encoding, falling back
// to a fixed characters-per-token heuristic when the encoding cannot be
// loaded (offline environments, unknown models). Safe for concurrent use.
type Estimator struct {
	model         string
	charsPerToken int
	log           zerolog.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewEstimator creates an estimator for the named model. The encoding is
// loaded lazily on first use.
func NewEstimator(model string, log zerolog.Logger) *Estimator {
	return &Estimator{
		model:         model,
		charsPerToken: DefaultCharsPerToken,
		log:           log.With().Str("component", "tokenizer").Logger(),
	}
}

// Estimate returns the token count of text, or the ceil(len/charsPerToken)
// heuristic when tokenization is unavailable.
func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}

	e.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(e.model)
		if err != nil {
			e.log.Warn().Err(err).Str("model", e.model).
				Msg("tokenizer unavailable, falling back to chars-per-token heuristic")
			return
		}
		e.enc = enc
	})

	if e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	return (len(text) + e.charsPerToken - 1) / e.charsPerToken
}

package gateway

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// SamplingParams are the tunables an agent version can carry in its
// model_params map. Unknown keys are provider-specific passthrough and
// are ignored here.
type SamplingParams struct {
	MaxTokens   int      `mapstructure:"max_tokens"`
	Temperature float32  `mapstructure:"temperature"`
	TopP        float32  `mapstructure:"top_p"`
	Stop        []string `mapstructure:"stop"`
}

// DecodeSamplingParams converts a loosely typed model_params map (TOML
// integers arrive as int64, floats as float64) into typed params.
func DecodeSamplingParams(raw map[string]any) (SamplingParams, error) {
	var params SamplingParams
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &params,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return params, errors.Wrap(err, "building model params decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return params, errors.Wrap(err, "decoding model params")
	}
	return params, nil
}

// ApplyTo copies the set parameters onto a chat request, leaving
// request values in place where the params are zero.
func (p SamplingParams) ApplyTo(req *ChatRequest) {
	if p.MaxTokens > 0 {
		req.MaxTokens = p.MaxTokens
	}
	if p.Temperature > 0 {
		req.Temperature = p.Temperature
	}
	if p.TopP > 0 {
		req.TopP = p.TopP
	}
	if len(p.Stop) > 0 {
		req.Stop = p.Stop
	}
}

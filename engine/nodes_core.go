package engine

import "fmt"

type rootSettings struct {
	Mono
	channel int
}

// rootNode passes its first child through; the runtime sums its output into
// host output channel `channel`.
type rootNode struct{}

func (rootNode) Configure(_ Env, props Props) (Settings, error) {
	ch, err := props.Index("channel", 0)
	if err != nil {
		return nil, err
	}

	return rootSettings{channel: ch}, nil
}

func (rootNode) Process(bc *BlockContext, _ Settings) {
	if len(bc.Inputs) > 0 {
		copy(bc.Outputs[0], bc.Inputs[0])
	}
}

type constSettings struct {
	Mono
	value float64
}

type constNode struct{}

func (constNode) Configure(_ Env, props Props) (Settings, error) {
	v, err := props.Number("value", 0)
	if err != nil {
		return nil, err
	}

	return constSettings{value: v}, nil
}

func (constNode) Process(bc *BlockContext, s Settings) {
	v := s.(constSettings).value

	out := bc.Outputs[0]
	for i := range out {
		out[i] = v
	}
}

type inSettings struct {
	Mono
	channel int
}

// inNode reads one host input channel. Missing channels read as silence.
type inNode struct{}

func (inNode) Configure(_ Env, props Props) (Settings, error) {
	ch, err := props.Index("channel", 0)
	if err != nil {
		return nil, err
	}

	return inSettings{channel: ch}, nil
}

func (inNode) Process(bc *BlockContext, s Settings) {
	ch := s.(inSettings).channel
	if ch < len(bc.HostInputs) {
		copy(bc.Outputs[0], bc.HostInputs[ch])
	}
}

type srNode struct{}

func (srNode) Configure(Env, Props) (Settings, error) { return Mono{}, nil }

func (srNode) Process(bc *BlockContext, _ Settings) {
	out := bc.Outputs[0]
	for i := range out {
		out[i] = bc.SampleRate
	}
}

type timeNode struct{}

func (timeNode) Configure(Env, Props) (Settings, error) { return Mono{}, nil }

func (timeNode) Process(bc *BlockContext, _ Settings) {
	out := bc.Outputs[0]
	for i := range out {
		out[i] = float64(bc.SampleTime + int64(i))
	}
}

// optionalString returns a string property and whether it was set. A set
// value must be a non-empty string.
func optionalString(props Props, key string) (string, bool, error) {
	if raw, ok := props[key]; !ok || raw == nil {
		return "", false, nil
	}

	s, err := props.String(key, "")
	if err != nil {
		return "", false, err
	}

	if s == "" {
		return "", false, fmt.Errorf("%w: %q must not be empty", InvalidPropertyValue, key)
	}

	return s, true, nil
}

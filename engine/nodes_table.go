package engine

import (
	"fmt"
	"math"
)

type tableSettings struct {
	Mono
	res *Resource
}

// tableNode reads channel 0 of a shared resource with linear interpolation.
// Child 0 is the read position in [0, 1] across the whole resource.
type tableNode struct{}

func (tableNode) Configure(env Env, props Props) (Settings, error) {
	res, err := lookupPath(env, props)
	if err != nil {
		return nil, err
	}

	return tableSettings{res: res}, nil
}

func (tableNode) Process(bc *BlockContext, s Settings) {
	res := s.(tableSettings).res
	if res == nil || len(bc.Inputs) == 0 {
		return
	}

	data := res.Channel(0)
	last := float64(len(data) - 1)
	out := bc.Outputs[0]

	for i, x := range bc.Inputs[0] {
		switch {
		case x <= 0 || math.IsNaN(x):
			out[i] = data[0]
		case x >= 1:
			out[i] = data[len(data)-1]
		default:
			out[i] = lerpAt(data, x*last)
		}
	}
}

// lerpAt reads data at a fractional index. Positions at or past the last
// sample read the last sample; positions past the end read 0.
func lerpAt(data []float64, pos float64) float64 {
	left := int(pos)
	if left < 0 || left >= len(data) {
		return 0
	}

	if left+1 >= len(data) {
		return data[left]
	}

	alpha := pos - float64(left)

	return data[left] + alpha*(data[left+1]-data[left])
}

// lookupPath resolves the optional "path" property against the resource
// table. An unknown name is InvalidPropertyValue.
func lookupPath(env Env, props Props) (*Resource, error) {
	path, ok, err := optionalString(props, "path")
	if err != nil || !ok {
		return nil, err
	}

	res, found := env.Resource(path)
	if !found {
		return nil, fmt.Errorf("%w: no shared resource named %q", InvalidPropertyValue, path)
	}

	return res, nil
}

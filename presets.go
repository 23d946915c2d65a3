package tunnel

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

var ErrUnknownFormat = errors.New("unknown params file format")

type paramsCodec struct {
	marshal   func(v any) ([]byte, error)
	unmarshal func(data []byte, v any) error
}

func codecFor(filename string) (paramsCodec, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return paramsCodec{
			marshal:   func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") },
			unmarshal: json.Unmarshal,
		}, nil
	case ".toml":
		return paramsCodec{marshal: toml.Marshal, unmarshal: toml.Unmarshal}, nil
	default:
		return paramsCodec{}, fmt.Errorf("%s: %w", filename, ErrUnknownFormat)
	}
}

func SaveParams(filename string, p Params) error {
	codec, err := codecFor(filename)
	if err != nil {
		return err
	}
	bytes, err := codec.marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	return os.WriteFile(filename, bytes, 0644)
}

// LoadParams reads a .json or .toml params file. Fields missing from the file
// keep their DefaultParams value. The result is not sanitized.
func LoadParams(filename string) (Params, error) {
	p := DefaultParams()
	codec, err := codecFor(filename)
	if err != nil {
		return p, err
	}
	bytes, err := os.ReadFile(filename)
	if err != nil {
		return p, err
	}
	if err := codec.unmarshal(bytes, &p); err != nil {
		return DefaultParams(), fmt.Errorf("failed to decode %s: %w", filename, err)
	}
	return p, nil
}

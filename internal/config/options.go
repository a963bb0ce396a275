package config

import (
	"os"

	"github.com/go-viper/mapstructure/v2"
)

// Decode fills output from the stage options. String values may refer to
// environment variables with ${VAR}; they are expanded first.
func (s *Stage) Decode(output any) error {
	return decode(expand(s.Options), output)
}

func expand(v any) any {
	switch x := v.(type) {
	case string:
		return os.ExpandEnv(x)
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = expand(v)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, v := range x {
			s[i] = expand(v)
		}
		return s
	}
	return v
}

func decode(input any, output any) error {
	config := &mapstructure.DecoderConfig{
		TagName:          "json",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           output,
	}

	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return err
	}

	return decoder.Decode(input)
}

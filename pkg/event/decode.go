package event

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeConfig decodes a loosely typed connector config map, as produced by
// viper, into out. Strings are converted to durations and comma separated
// strings to slices.
func DecodeConfig(in map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("create config decoder: %w", err)
	}
	if err := decoder.Decode(in); err != nil {
		return fmt.Errorf("decode connector config: %w", err)
	}
	return nil
}

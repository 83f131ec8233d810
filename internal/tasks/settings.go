package tasks

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/aristath/taskflow/internal/plugin"
)

// decodeSettings decodes a task's config map onto out, which already holds
// the defaults. Unknown keys are rejected.
func decodeSettings(name string, cfg plugin.Config, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
		Result:           out,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return fmt.Errorf("%s: create decoder: %w", name, err)
	}
	if err := decoder.Decode(map[string]any(cfg)); err != nil {
		return fmt.Errorf("%s: decode config: %w", name, err)
	}
	return nil
}

package strategy

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Decode copies setting values onto out, a pointer to a config struct tagged
// with `mapstructure`. Keys absent from setting keep the value already in out.
// Numeric strings and floats are converted to the field type.
func Decode(setting Setting, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(setting)); err != nil {
		return fmt.Errorf("decoding setting: %w", err)
	}
	return nil
}

func errUnknownClass(class string) error {
	return fmt.Errorf("unknown strategy class %q", class)
}

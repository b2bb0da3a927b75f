package pwm

import (
	"pwmgen-go/errcode"
	"pwmgen-go/types"
)

// As asserts a payload to the concrete value type T. Pointers are not
// accepted. A nil payload is treated as the zero value of T.
func As[T any](v any) (T, errcode.Code) {
	var zero T
	if v == nil {
		return zero, ""
	}
	t, ok := v.(T)
	if !ok {
		return zero, errcode.InvalidPayload
	}
	return t, ""
}

// asPWMConfig accepts either the strongly-typed in-process payload or
// the generic map shape produced by JSON/YAML decoders.
func asPWMConfig(v any) (types.PWMConfig, errcode.Code) {
	switch p := v.(type) {
	case types.PWMConfig:
		return p, ""
	case map[string]any:
		var cfg types.PWMConfig
		var code errcode.Code
		if cfg.PeriodNs, code = asUint(p["period_ns"]); code != "" {
			return types.PWMConfig{}, code
		}
		if cfg.DutyNs, code = asUint(p["duty_ns"]); code != "" {
			return types.PWMConfig{}, code
		}
		switch pol := p["polarity"]; pol {
		case nil, "normal":
		case "inversed":
			cfg.Polarity = types.PolarityInversed
		default:
			return types.PWMConfig{}, errcode.InvalidPayload
		}
		if en, ok := p["enabled"]; ok {
			b, isBool := en.(bool)
			if !isBool {
				return types.PWMConfig{}, errcode.InvalidPayload
			}
			cfg.Enabled = b
		}
		return cfg, ""
	}
	return types.PWMConfig{}, errcode.InvalidPayload
}

// asUint widens the numeric types JSON decoders hand out. A missing
// field (nil) reads as zero.
func asUint(v any) (uint64, errcode.Code) {
	switch n := v.(type) {
	case nil:
		return 0, ""
	case uint64:
		return n, ""
	case int:
		if n < 0 {
			return 0, errcode.InvalidPayload
		}
		return uint64(n), ""
	case int64:
		if n < 0 {
			return 0, errcode.InvalidPayload
		}
		return uint64(n), ""
	case float64:
		if n < 0 {
			return 0, errcode.InvalidPayload
		}
		return uint64(n), ""
	}
	return 0, errcode.InvalidPayload
}

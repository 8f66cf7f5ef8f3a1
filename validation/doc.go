// Package validation checks stream options and configuration.
//
// Struct tag validation backs option and config structs:
//
//	type options struct {
//	    HighWaterMark int `validate:"gte=0"`
//	}
//	err := validation.Validate(opts)
//
// Programmatic validation collects several failures before reporting them:
//
//	v := validation.New()
//	v.NonNegative("high_water_mark", hwm).StreamID("id", id)
//	err := v.Validate()
package validation

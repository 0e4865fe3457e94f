package vellum

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultDateLayout is the layout used for dates rendered without an
// explicit format argument.
const DefaultDateLayout = "Jan. 2, 2006"

var defaultPrinter = message.NewPrinter(language.English)

// TemplateLocaltime converts a time to the local timezone when timezone
// support is on. Values of other types pass through unchanged.
func TemplateLocaltime(v any, useTZ bool) any {
	if !useTZ {
		return v
	}
	if t, ok := v.(time.Time); ok {
		return t.Local()
	}
	return v
}

// Localize formats numbers and times for the active locale when the context
// asks for localization. Values of other types pass through unchanged.
func Localize(v any, c *Context) any {
	if c == nil || !c.UseL10N {
		return v
	}
	switch t := v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return contextPrinter(c).Sprint(number.Decimal(t))
	case time.Time:
		return t.Format(DefaultDateLayout)
	}
	return v
}

func contextPrinter(c *Context) *message.Printer {
	if c.template != nil && c.template.engine != nil {
		return c.template.engine.printer
	}
	return defaultPrinter
}

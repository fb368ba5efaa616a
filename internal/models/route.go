package models

const (
	DefaultRouteColor     = "#0066cc"
	DefaultRouteTextColor = "#ffffff"
)

type Route struct {
	ID        string `json:"id"`
	ShortName string `json:"short_name"`
	LongName  string `json:"long_name"`
	Color     string `json:"color"`
	TextColor string `json:"text_color"`
}

// NewRoute builds a Route from raw color values. Colors are stored without
// the leading '#' in the feed; empty values fall back to the defaults.
func NewRoute(id, shortName, longName, rawColor, rawTextColor string) Route {
	color := DefaultRouteColor
	if rawColor != "" {
		color = "#" + rawColor
	}
	textColor := DefaultRouteTextColor
	if rawTextColor != "" {
		textColor = "#" + rawTextColor
	}

	return Route{
		ID:        id,
		ShortName: shortName,
		LongName:  longName,
		Color:     color,
		TextColor: textColor,
	}
}

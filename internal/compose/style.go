package compose

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// RGB is an 8-bit-per-channel color.
type RGB struct {
	R, G, B int
}

// Style is the color palette for one document. Values are fixed at build
// time; a Compositor never mutates its Style.
type Style struct {
	Primary        RGB // section headings
	Secondary      RGB // subheadings, inline code, banner
	Body           RGB // flowing text
	CodeBackground RGB // code block and callout fill
	BoxDefinition  RGB // callout accent, definition boxes
	BoxTip         RGB // callout accent, tip boxes
}

// DefaultStyle returns the stock palette.
func DefaultStyle() Style {
	return Style{
		Primary:        RGB{44, 62, 80},
		Secondary:      RGB{52, 152, 219},
		Body:           RGB{51, 51, 51},
		CodeBackground: RGB{240, 240, 240},
		BoxDefinition:  RGB{52, 152, 219},
		BoxTip:         RGB{39, 174, 96},
	}
}

// themeFile is the on-disk YAML shape. Every field is optional; omitted
// fields keep their DefaultStyle value.
type themeFile struct {
	Primary        string `yaml:"primary"`
	Secondary      string `yaml:"secondary"`
	Body           string `yaml:"body"`
	CodeBackground string `yaml:"code_background"`
	BoxDefinition  string `yaml:"box_definition"`
	BoxTip         string `yaml:"box_tip"`
}

// LoadTheme reads a YAML theme overlay and applies it over DefaultStyle.
func LoadTheme(path string) (Style, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Style{}, fmt.Errorf("read theme: %w", err)
	}
	return ParseTheme(data)
}

// ParseTheme applies YAML theme bytes over DefaultStyle.
func ParseTheme(data []byte) (Style, error) {
	var tf themeFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return Style{}, fmt.Errorf("parse theme: %w", err)
	}

	st := DefaultStyle()
	fields := []struct {
		hex  string
		dst  *RGB
		name string
	}{
		{tf.Primary, &st.Primary, "primary"},
		{tf.Secondary, &st.Secondary, "secondary"},
		{tf.Body, &st.Body, "body"},
		{tf.CodeBackground, &st.CodeBackground, "code_background"},
		{tf.BoxDefinition, &st.BoxDefinition, "box_definition"},
		{tf.BoxTip, &st.BoxTip, "box_tip"},
	}
	for _, f := range fields {
		if f.hex == "" {
			continue
		}
		rgb, err := parseHexColor(f.hex)
		if err != nil {
			return Style{}, fmt.Errorf("theme field %s: %w", f.name, err)
		}
		*f.dst = rgb
	}
	return st, nil
}

// parseHexColor accepts "#rrggbb" or "rrggbb".
func parseHexColor(s string) (RGB, error) {
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return RGB{}, fmt.Errorf("invalid hex color %q", s)
	}
	var rgb RGB
	for i, dst := range []*int{&rgb.R, &rgb.G, &rgb.B} {
		hi, ok1 := hexVal(s[i*2])
		lo, ok2 := hexVal(s[i*2+1])
		if !ok1 || !ok2 {
			return RGB{}, fmt.Errorf("invalid hex color %q", s)
		}
		*dst = hi<<4 | lo
	}
	return rgb, nil
}

func hexVal(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}

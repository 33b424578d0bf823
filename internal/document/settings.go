package document

import (
	"fmt"
	"strings"
)

// Margin holds page offsets in points.
type Margin struct {
	Top    float64 `json:"top" yaml:"top"`
	Bottom float64 `json:"bottom" yaml:"bottom"`
	Left   float64 `json:"left" yaml:"left"`
	Right  float64 `json:"right" yaml:"right"`
}

// DefaultMarginPoints is applied to every side by DefaultMargin.
const DefaultMarginPoints = 40

// DefaultMargin returns 40pt on all sides.
func DefaultMargin() Margin {
	return Margin{
		Top:    DefaultMarginPoints,
		Bottom: DefaultMarginPoints,
		Left:   DefaultMarginPoints,
		Right:  DefaultMarginPoints,
	}
}

// UniformMargin returns a margin with the same offset on every side.
func UniformMargin(points float64) Margin {
	return Margin{Top: points, Bottom: points, Left: points, Right: points}
}

// PageSize is a page descriptor in points (1/72 inch).
type PageSize struct {
	Name   string  `json:"name,omitempty" yaml:"name"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

var (
	A3     = PageSize{Name: "A3", Width: 842, Height: 1191}
	A4     = PageSize{Name: "A4", Width: 595, Height: 842}
	A5     = PageSize{Name: "A5", Width: 420, Height: 595}
	Letter = PageSize{Name: "LETTER", Width: 612, Height: 792}
	Legal  = PageSize{Name: "LEGAL", Width: 612, Height: 1008}
)

var standardPageSizes = map[string]PageSize{
	A3.Name:     A3,
	A4.Name:     A4,
	A5.Name:     A5,
	Letter.Name: Letter,
	Legal.Name:  Legal,
}

// PageSizeByName looks up a standard page size, ignoring case.
func PageSizeByName(name string) (PageSize, bool) {
	size, ok := standardPageSizes[strings.ToUpper(strings.TrimSpace(name))]
	return size, ok
}

// Rotate swaps width and height.
func (p PageSize) Rotate() PageSize {
	p.Width, p.Height = p.Height, p.Width
	return p
}

// Landscape reports whether the page is wider than tall.
func (p PageSize) Landscape() bool {
	return p.Width > p.Height
}

// Settings describes page geometry for a single document.
type Settings struct {
	PageSize PageSize `json:"page_size"`
	Margin   Margin   `json:"margin"`
}

// DefaultSettings returns an A4 page with DefaultMargin.
func DefaultSettings() Settings {
	return Settings{
		PageSize: A4,
		Margin:   DefaultMargin(),
	}
}

// Validate rejects geometry that leaves no printable area.
func (s Settings) Validate() error {
	m := s.Margin
	if m.Top < 0 || m.Bottom < 0 || m.Left < 0 || m.Right < 0 {
		return fmt.Errorf("%w: margins must not be negative", ErrInvalidArgument)
	}
	if s.PageSize.Width <= 0 || s.PageSize.Height <= 0 {
		return fmt.Errorf("%w: page size must have a positive area", ErrInvalidArgument)
	}
	if m.Left+m.Right >= s.PageSize.Width || m.Top+m.Bottom >= s.PageSize.Height {
		return fmt.Errorf("%w: margins exceed page size", ErrInvalidArgument)
	}
	return nil
}

package views

import (
	"strconv"
	"strings"
)

// Outlines, keyed by symbol name without the fill suffix.
const (
	shapeCircle      = "circle"
	shapeSquare      = "square"
	shapeDiamond     = "diamond"
	shapeStar        = "star"
	shapeTriangle    = "triangle"
	shapeArrow       = "arrow"
	shapeDoubleArrow = "double_arrow"
)

var rotations = map[string]int{
	"arrow_up":                0,
	"arrow_right":             90,
	"arrow_down":              180,
	"arrow_left":              270,
	"double_arrow_horizontal": 0,
	"double_arrow_vertical":   90,
}

func shapeOf(name string) string {
	if _, ok := rotations[name]; ok {
		if strings.HasPrefix(name, shapeDoubleArrow) {
			return shapeDoubleArrow
		}
		return shapeArrow
	}
	return strings.TrimSuffix(strings.TrimSuffix(name, "_f"), "_h")
}

func rotation(name string) string {
	return "rotate(" + strconv.Itoa(rotations[name]) + " 50 50)"
}

func opacity(dimmed bool) string {
	if dimmed {
		return "0.3"
	}
	return "1"
}

func glyphLabel(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

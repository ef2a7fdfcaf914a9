// Package crs identifies coordinate reference systems and reprojects
// geometries between them.
//
// A CRS is named by an authority code such as "EPSG:4326". Codes are
// normalized on construction so that "epsg:3857" and
// "urn:ogc:def:crs:EPSG::3857" compare equal to "EPSG:3857".
//
// Reprojection goes through geographic WGS84 coordinates (X = longitude,
// Y = latitude, degrees). Every registered CRS knows how to reach WGS84 and
// come back, except engineering CRSs, which have no transform path to any
// other CRS.
package crs

import (
	"strings"
)

// Well-known codes.
const (
	CodeWGS84       = "EPSG:4326"
	CodeWebMercator = "EPSG:3857"
)

// CRS identifies a coordinate reference system. The zero value is the
// unknown CRS. CRS values are comparable with ==.
type CRS struct {
	code string
}

// New creates a CRS from an authority code, normalizing common spellings.
func New(code string) CRS {
	return CRS{code: normalize(code)}
}

// WGS84 returns geographic WGS84 (EPSG:4326).
func WGS84() CRS { return CRS{code: CodeWGS84} }

// WebMercator returns spherical Web Mercator (EPSG:3857).
func WebMercator() CRS { return CRS{code: CodeWebMercator} }

// Code returns the normalized authority code.
func (c CRS) Code() string { return c.code }

// IsValid returns true if the CRS has a code.
func (c CRS) IsValid() bool { return c.code != "" }

// Equal reports whether two CRSs are the same.
func (c CRS) Equal(other CRS) bool { return c.code == other.code }

// String returns the code, or "unknown" for the zero CRS.
func (c CRS) String() string {
	if c.code == "" {
		return "unknown"
	}
	return c.code
}

func normalize(code string) string {
	s := strings.TrimSpace(code)
	if s == "" {
		return ""
	}

	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "urn:ogc:def:crs:"):
		// urn:ogc:def:crs:EPSG::3857 or urn:ogc:def:crs:OGC:1.3:CRS84
		parts := strings.Split(s[len("urn:ogc:def:crs:"):], ":")
		if len(parts) >= 2 {
			authority := strings.ToUpper(parts[0])
			id := parts[len(parts)-1]
			if authority == "OGC" && strings.EqualFold(id, "CRS84") {
				return CodeWGS84
			}
			return authority + ":" + id
		}
	case lower == "crs84" || lower == "ogc:crs84":
		return CodeWGS84
	}

	if i := strings.IndexByte(s, ':'); i > 0 {
		return strings.ToUpper(s[:i]) + ":" + s[i+1:]
	}
	return s
}

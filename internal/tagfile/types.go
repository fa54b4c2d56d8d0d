package tagfile

import "encoding/xml"

// TagFile is the top-level structure of a Doxygen tag file.
type TagFile struct {
	XMLName   xml.Name   `xml:"tagfile"`
	Compounds []Compound `xml:"compound"`
}

// Compound is a documented container (namespace, class, file, ...).
// Optional fields are pointers so a missing element can be told apart from
// an empty one.
type Compound struct {
	Kind     string   `xml:"kind,attr"`
	Name     *string  `xml:"name"`
	Filename *string  `xml:"filename"`
	Members  []Member `xml:"member"`
}

// Member is an entity documented inside a compound.
type Member struct {
	Kind       string  `xml:"kind,attr"`
	Type       string  `xml:"type"`
	Name       *string `xml:"name"`
	AnchorFile *string `xml:"anchorfile"`
	Anchor     *string `xml:"anchor"`
	Arglist    *string `xml:"arglist"` // only meaningful for functions
}

// Text dereferences an optional field, returning "" when absent.
func Text(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

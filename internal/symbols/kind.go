package symbols

// Kind is the documented-entity kind of an index entry.
type Kind int

const (
	KindOther Kind = iota
	KindNamespace
	KindClass
	KindStruct
	KindUnion
	KindInterface
	KindFunction
	KindVariable
	KindTypedef
	KindEnum
	KindEnumValue
	KindDefine
	KindFile
)

var kindNames = map[Kind]string{
	KindOther:     "other",
	KindNamespace: "namespace",
	KindClass:     "class",
	KindStruct:    "struct",
	KindUnion:     "union",
	KindInterface: "interface",
	KindFunction:  "function",
	KindVariable:  "variable",
	KindTypedef:   "typedef",
	KindEnum:      "enum",
	KindEnumValue: "enumvalue",
	KindDefine:    "define",
	KindFile:      "file",
}

var nameToKind map[string]Kind

func init() {
	nameToKind = make(map[string]Kind, len(kindNames))
	for k, v := range kindNames {
		nameToKind[v] = k
	}
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "other"
}

// ParseKind maps a tag file kind attribute to a Kind. Unknown kinds map to
// KindOther.
func ParseKind(s string) Kind {
	return nameToKind[s]
}

// IsClassLike reports whether entries of this kind win the class preference
// stage of resolution.
func (k Kind) IsClassLike() bool {
	return k == KindClass || k == KindStruct || k == KindUnion
}

// nonScopeKinds are compound kinds whose names are not namespace-qualified,
// so their members cannot be keyed under them.
var nonScopeKinds = map[string]bool{
	"file":    true,
	"dir":     true,
	"page":    true,
	"group":   true,
	"example": true,
}

package link

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/jcdickinson/doxylink/internal/symbols"
	"github.com/jcdickinson/doxylink/internal/tagfile"
)

const tag = `<?xml version="1.0"?>
<tagfile>
  <compound kind="namespace">
    <name>PolyVox</name>
    <filename>namespace_poly_vox.html</filename>
  </compound>
  <compound kind="class">
    <name>PolyVox::Volume</name>
    <filename>class_volume.html</filename>
    <member kind="function">
      <name>getVoxelAt</name>
      <anchorfile>class_volume.html</anchorfile>
      <anchor>a1</anchor>
      <arglist>(uint16_t uXPos, uint16_t uYPos, uint16_t uZPos) const</arglist>
    </member>
    <member kind="function">
      <name>getVoxelAt</name>
      <anchorfile>class_volume.html</anchorfile>
      <anchor>a2</anchor>
      <arglist>(const Vector3DUint16 &amp;v3dPos) const</arglist>
    </member>
    <member kind="function">
      <name>getWidth</name>
      <anchorfile>class_volume.html</anchorfile>
      <anchor>a3</anchor>
      <arglist>() const</arglist>
    </member>
  </compound>
</tagfile>`

func testLinker(t *testing.T, root string) *Linker {
	t.Helper()
	tf, err := tagfile.Parse([]byte(tag))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	idx, _ := symbols.Build(tf.Compounds, symbols.BuildOptions{})
	return &Linker{
		Role:                   "polyvox",
		RootDir:                root,
		AddFunctionParentheses: true,
		Resolver:               idx,
	}
}

func TestSplitExplicitTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text     string
		explicit bool
		title    string
		target   string
	}{
		{"PolyVox::Volume", false, "PolyVox::Volume", "PolyVox::Volume"},
		{"the volume <PolyVox::Volume>", true, "the volume", "PolyVox::Volume"},
		{"Array<T>", false, "Array<T>", "Array<T>"},
		{"an array <Array<T>>", true, "an array", "Array<T>"},
		{"empty <>", false, "empty <>", "empty <>"},
		{"  padded  ", false, "padded", "padded"},
	}
	for _, tt := range tests {
		explicit, title, target := SplitExplicitTitle(tt.text)
		if explicit != tt.explicit || title != tt.title || target != tt.target {
			t.Errorf("SplitExplicitTitle(%q) = %v, %q, %q; want %v, %q, %q",
				tt.text, explicit, title, target, tt.explicit, tt.title, tt.target)
		}
	}
}

func TestLink_Class(t *testing.T) {
	t.Parallel()

	l := testLinker(t, "https://example.org/polyvox")
	ref := l.Link("Volume", "index.md")
	if !ref.Resolved {
		t.Fatalf("not resolved: %s", ref.Warning)
	}
	if ref.URL != "https://example.org/polyvox/class_volume.html" {
		t.Errorf("URL = %q", ref.URL)
	}
	if ref.Title != "Volume" || ref.Kind != "class" || ref.Key != "PolyVox::Volume" {
		t.Errorf("ref = %+v", ref)
	}
	if ref.Stage != symbols.StagePiecewise {
		t.Errorf("Stage = %v", ref.Stage)
	}
}

func TestLink_FunctionParentheses(t *testing.T) {
	t.Parallel()

	l := testLinker(t, "/srv/html/")
	ref := l.Link("PolyVox::Volume::getWidth", "index.md")
	if ref.Title != "PolyVox::Volume::getWidth()" {
		t.Errorf("Title = %q", ref.Title)
	}
	if ref.URL != "/srv/html/class_volume.html#a3" {
		t.Errorf("URL = %q", ref.URL)
	}
	if ref.Warning != "" {
		t.Errorf("unexpected warning %q", ref.Warning)
	}

	ref = l.Link("width <PolyVox::Volume::getWidth>", "index.md")
	if ref.Title != "width" {
		t.Errorf("explicit title changed: %q", ref.Title)
	}

	l.AddFunctionParentheses = false
	ref = l.Link("getWidth", "index.md")
	if ref.Title != "getWidth" {
		t.Errorf("Title = %q", ref.Title)
	}
}

func TestLink_Overloads(t *testing.T) {
	t.Parallel()

	l := testLinker(t, "/srv/html")

	ref := l.Link("getVoxelAt(const Vector3DUint16&v3dPos) const", "index.md")
	if !ref.Resolved || ref.URL != "/srv/html/class_volume.html#a2" {
		t.Errorf("by arguments: %+v", ref)
	}
	if ref.Title != "getVoxelAt(const Vector3DUint16&v3dPos) const" {
		t.Errorf("Title = %q", ref.Title)
	}

	ref = l.Link("getVoxelAt", "index.md")
	if !ref.Resolved {
		t.Fatalf("not resolved: %s", ref.Warning)
	}
	// "(const ..." sorts before "(uint16_t ...".
	if ref.URL != "/srv/html/class_volume.html#a2" {
		t.Errorf("URL = %q", ref.URL)
	}
	if !strings.Contains(ref.Warning, "2 overloads") {
		t.Errorf("Warning = %q", ref.Warning)
	}

	ref = l.Link("getVoxelAt(float)", "index.md")
	if ref.Resolved || ref.Warning == "" {
		t.Errorf("unknown overload: %+v", ref)
	}
}

func TestLink_Unresolved(t *testing.T) {
	t.Parallel()

	l := testLinker(t, "/srv/html")
	ref := l.Link("the thing <Nope>", "index.md")
	if ref.Resolved {
		t.Fatal("resolved unknown symbol")
	}
	if ref.Title != "the thing" || ref.URL != "" {
		t.Errorf("ref = %+v", ref)
	}
	if want := `could not find match for "Nope" in "polyvox" tag file`; ref.Warning != want {
		t.Errorf("Warning = %q, want %q", ref.Warning, want)
	}
}

func TestLink_RelativeRoot(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	l := testLinker(t, "api/html")
	l.SrcDir = src

	tests := []struct {
		doc  string
		want string
	}{
		{filepath.Join(src, "index.md"), "api/html/class_volume.html"},
		{filepath.Join(src, "guide", "volumes.md"), "../api/html/class_volume.html"},
		{filepath.Join(src, "a", "b", "c.md"), "../../api/html/class_volume.html"},
	}
	for _, tt := range tests {
		ref := l.Link("PolyVox::Volume", tt.doc)
		if ref.URL != tt.want {
			t.Errorf("doc %s: URL = %q, want %q", tt.doc, ref.URL, tt.want)
		}
	}
}

func TestLink_NoResolver(t *testing.T) {
	t.Parallel()

	l := &Linker{Role: "polyvox", RootDir: "/srv/html"}
	ref := l.Link("Volume", "index.md")
	if ref.Resolved {
		t.Fatal("resolved without a resolver")
	}
	if !strings.Contains(ref.Warning, "not loaded") {
		t.Errorf("Warning = %q", ref.Warning)
	}
}

package llm

import "testing"

func TestRegistry_ExactMatch(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(echoTool("echo"))

	if _, ok := reg.Resolve("echo"); !ok {
		t.Error("exact match failed")
	}
	if _, ok := reg.Resolve("missing"); ok {
		t.Error("resolved a tool that was never registered")
	}
}

func TestRegistry_QualifiedCallShortRegistration(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(echoTool("search"))

	tool, ok := reg.Resolve("github.search")
	if !ok {
		t.Fatal("qualified call did not resolve to short registration")
	}
	if tool.Spec().Name != "search" {
		t.Errorf("resolved %q", tool.Spec().Name)
	}
}

func TestRegistry_ShortCallQualifiedRegistration(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(echoTool("github.search"))

	tool, ok := reg.Resolve("search")
	if !ok {
		t.Fatal("short call did not resolve to qualified registration")
	}
	if tool.Spec().Name != "github.search" {
		t.Errorf("resolved %q", tool.Spec().Name)
	}
}

func TestRegistry_AmbiguousSuffixDoesNotResolve(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(echoTool("github.search"))
	reg.Register(echoTool("jira.search"))

	if _, ok := reg.Resolve("search"); ok {
		t.Error("ambiguous suffix resolved")
	}
	// Fully qualified still resolves.
	if _, ok := reg.Resolve("github.search"); !ok {
		t.Error("exact qualified name did not resolve")
	}
}

func TestRegistry_ExactBeatsSuffix(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(echoTool("search"))
	reg.Register(echoTool("github.search"))

	tool, ok := reg.Resolve("search")
	if !ok {
		t.Fatal("resolve failed")
	}
	if tool.Spec().Name != "search" {
		t.Errorf("exact match should win, got %q", tool.Spec().Name)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(echoTool("echo"))
	reg.Unregister("echo")

	if _, ok := reg.Get("echo"); ok {
		t.Error("tool still present after unregister")
	}
}

func TestRegistry_SpecsSorted(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(echoTool("zeta"))
	reg.Register(echoTool("alpha"))
	reg.Register(echoTool("mid"))

	specs := reg.Specs()
	want := []string{"alpha", "mid", "zeta"}
	if len(specs) != len(want) {
		t.Fatalf("got %d specs", len(specs))
	}
	for i, spec := range specs {
		if spec.Name != want[i] {
			t.Errorf("specs[%d] = %q, want %q", i, spec.Name, want[i])
		}
	}
}

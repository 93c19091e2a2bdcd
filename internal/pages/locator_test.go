package pages

import "testing"

func TestLocatorString(t *testing.T) {
	cases := []struct {
		loc  Locator
		want string
	}{
		{CSS("tbody tr"), "css=tbody tr"},
		{Locator{}, "css=*"},
		{Role("button", "Save and exit"), `role=button[name="Save and exit"]`},
		{RolePattern("button", "next setting"), "role=button[name=/next setting/i]"},
		{Heading("Logic", 3), `role=heading[name="Logic"][level=3]`},
		{Text("^Issues$").First(), "text=/^Issues$/i.nth(0)"},
		{CSS("textarea").LastMatch(), "css=textarea.last()"},
		{CSS("tr").WithText("Workflow template").At(2), `css=tr:has-text("Workflow template").nth(2)`},
		{
			Role("button", "Close").In(Role("dialog", "")),
			`role=dialog >> role=button[name="Close"]`,
		},
	}
	for _, tc := range cases {
		if got := tc.loc.String(); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestLocatorPickersReplaceEachOther(t *testing.T) {
	l := CSS("a").LastMatch().At(1)
	if l.Last || !l.Pick || l.Nth != 1 {
		t.Fatalf("At must clear Last: %+v", l)
	}
	l = l.LastMatch()
	if !l.Last || l.Pick {
		t.Fatalf("LastMatch must clear Pick: %+v", l)
	}
}

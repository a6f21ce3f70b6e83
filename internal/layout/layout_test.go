package layout

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"epdtext/internal/model"
)

func TestSplit(t *testing.T) {
	for _, tc := range []struct {
		name    string
		payload string
		want    []string
	}{
		{name: "empty", payload: "", want: []string{""}},
		{name: "single", payload: "Hello", want: []string{"Hello"}},
		{name: "two", payload: "Hello\nWorld", want: []string{"Hello", "World"}},
		{name: "trailing newline", payload: "Hello\n", want: []string{"Hello"}},
		{name: "only newline", payload: "\n", want: []string{""}},
		{name: "crlf", payload: "a\r\nb\r\n", want: []string{"a", "b"}},
		{name: "blank middle", payload: "a\n\nb", want: []string{"a", "", "b"}},
		{name: "lone cr tail", payload: "a\r", want: []string{"a\r"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(Split(tc.payload), tc.want); diff != "" {
				t.Errorf("Split(%q) difference (-got +want):\n%s", tc.payload, diff)
			}
		})
	}
}

func TestLayoutScenarios(t *testing.T) {
	for _, tc := range []struct {
		name    string
		payload string
		want    []model.Line
	}{
		{
			name:    "hello world",
			payload: "Hello\nWorld",
			want: []model.Line{
				{Text: "Hello", Style: model.Primary, X: 5, Y: 5},
				{Text: "World", Style: model.Secondary, X: 5, Y: 25},
			},
		},
		{
			name:    "empty",
			payload: "",
			want: []model.Line{
				{Text: "", Style: model.Primary, X: 5, Y: 5},
			},
		},
		{
			name:    "three lines",
			payload: "Title\none\ntwo",
			want: []model.Line{
				{Text: "Title", Style: model.Primary, X: 5, Y: 5},
				{Text: "one", Style: model.Secondary, X: 5, Y: 25},
				{Text: "two", Style: model.Secondary, X: 5, Y: 45},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(Layout(tc.payload, DefaultMetrics), tc.want); diff != "" {
				t.Errorf("Layout() difference (-got +want):\n%s", diff)
			}
		})
	}
}

func TestLayoutInvariants(t *testing.T) {
	m := Metrics{X0: 3, Y0: 7, Line0Gap: 22, Pitch: 18}

	for _, payload := range []string{
		"",
		"x",
		"\n\n\n",
		strings.Repeat("line\n", 40),
		"Voilà un exemple de texte \nIl pourrait être envoyé par la raspi \nprincipale et être affiché \npar la pico",
	} {
		lines := Layout(payload, m)
		if len(lines) == 0 {
			t.Fatalf("Layout(%q) returned no lines", payload)
		}
		if lines[0].Style != model.Primary || lines[0].Y != m.Y0 || lines[0].X != m.X0 {
			t.Errorf("Layout(%q)[0] = %+v, want Primary at (%d,%d)", payload, lines[0], m.X0, m.Y0)
		}
		for i := 1; i < len(lines); i++ {
			want := m.Y0 + m.Line0Gap + (i-1)*m.Pitch
			if lines[i].Style != model.Secondary || lines[i].Y != want || lines[i].X != m.X0 {
				t.Errorf("Layout(%q)[%d] = %+v, want Secondary at y=%d", payload, i, lines[i], want)
			}
		}
	}
}

func TestStyleString(t *testing.T) {
	if got := model.Primary.String(); got != "primary" {
		t.Errorf("Primary.String() = %q", got)
	}
	if got := model.Secondary.String(); got != "secondary" {
		t.Errorf("Secondary.String() = %q", got)
	}
}

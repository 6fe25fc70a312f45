package slack

import "testing"

func TestPermalink(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		domain  string
		channel string
		ts      string
		want    string
	}{
		{
			name:    "full inputs",
			domain:  "acme",
			channel: "C1",
			ts:      "1699999999.000100",
			want:    "https://acme.slack.com/archives/C1/p1699999999000100",
		},
		{name: "missing domain", domain: "", channel: "C1", ts: "1699999999.000100", want: ""},
		{name: "missing channel", domain: "acme", channel: "", ts: "1699999999.000100", want: ""},
		{name: "missing timestamp", domain: "acme", channel: "C1", ts: "", want: ""},
		{name: "whitespace domain", domain: "  ", channel: "C1", ts: "1699999999.000100", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Permalink(tc.domain, tc.channel, tc.ts)
			if got != tc.want {
				t.Fatalf("Permalink() = %q, want %q", got, tc.want)
			}
		})
	}
}

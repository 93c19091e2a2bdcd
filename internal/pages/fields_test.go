package pages

import "testing"

func TestFieldValue(t *testing.T) {
	cases := []struct {
		name  string
		field Field
		want  string
	}{
		{"client id by name", Field{Name: "clientId", Type: "text"}, dummyClientID},
		{"client id by label", Field{Context: "oauth client id", Type: "text"}, dummyClientID},
		{"client secret", Field{Name: "client_secret", Type: "password"}, dummyClientSecret},
		{"secret on a text field", Field{Name: "clientsecret", Type: "text"}, dummyText},
		{"host", Field{Placeholder: "Workday host", Type: "url"}, dummyHost},
		{"url", Field{Name: "tokenUrl"}, dummyHost},
		{"name", Field{Context: "configuration name"}, dummyName},
		{"user name", Field{Context: "user name"}, dummyText},
		{"password", Field{Name: "apiKey", Type: "PASSWORD"}, dummySecret},
		{"anything else", Field{Name: "tenant"}, dummyText},
	}
	for _, tc := range cases {
		if got := FieldValue(tc.field); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

package pages

import "strings"

// Dummy values for configuration screens. OAuth fields get base64-shaped
// values because the console validates their format.
const (
	dummyClientID     = "MjkzZWY0NWEtZTNiNy00YzJkLWI5ZjYtOGE3YmMxZDIzNDU2"
	dummyClientSecret = "NGY1ZDYyYzgtOTM0Yi00YWUzLWJhNzItMWQ4ZjdhNjhiOWNm"
	dummyHost         = "https://wd2-impl.workday.com"
	dummyName         = "Test Config"
	dummyText         = "test-value"
	dummySecret       = "test-secret"
)

// FieldValue picks a dummy value for an install-time configuration field
// from its surrounding text, name, placeholder and input type.
func FieldValue(f Field) string {
	combined := strings.ToLower(f.Context + " " + f.Name + " " + f.Placeholder)
	password := strings.EqualFold(f.Type, "password")

	switch {
	case containsAny(combined, "clientid", "client_id", "client id"):
		return dummyClientID
	case password && containsAny(combined, "clientsecret", "client_secret", "client secret"):
		return dummyClientSecret
	case containsAny(combined, "host", "url"):
		return dummyHost
	case strings.Contains(combined, "name") && !strings.Contains(combined, "user"):
		return dummyName
	case password:
		return dummySecret
	default:
		return dummyText
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

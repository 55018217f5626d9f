package useragent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name            string
		userAgent       string
		expectedBrowser string
		expectedOS      string
		expectedDevice  string
	}{
		{
			name:            "Chrome on Windows",
			userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			expectedBrowser: "Chrome",
			expectedOS:      "Windows",
			expectedDevice:  "desktop",
		},
		{
			name:            "Safari on iPhone",
			userAgent:       "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
			expectedBrowser: "Safari",
			expectedOS:      "iOS",
			expectedDevice:  "mobile",
		},
		{
			name:            "Firefox on Linux",
			userAgent:       "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			expectedBrowser: "Firefox",
			expectedOS:      "Linux",
			expectedDevice:  "desktop",
		},
		{
			name:            "Edge on Windows",
			userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
			expectedBrowser: "Edge",
			expectedOS:      "Windows",
			expectedDevice:  "desktop",
		},
		{
			name:            "Chrome on Android phone",
			userAgent:       "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
			expectedBrowser: "Chrome",
			expectedOS:      "Android",
			expectedDevice:  "mobile",
		},
		{
			name:            "Safari on iPad",
			userAgent:       "Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
			expectedBrowser: "Safari",
			expectedOS:      "iPadOS",
			expectedDevice:  "tablet",
		},
		{
			name:            "unrecognized string",
			userAgent:       "something entirely made up",
			expectedBrowser: Unknown,
			expectedOS:      Unknown,
			expectedDevice:  "desktop",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse(tt.userAgent)
			assert.Equal(t, tt.expectedBrowser, result.Browser)
			assert.Equal(t, tt.expectedOS, result.OS)
			assert.Equal(t, tt.expectedDevice, result.Device)
			assert.False(t, result.Bot)
		})
	}
}

func TestParseVersions(t *testing.T) {
	chrome := Parse("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	assert.Equal(t, "120.0.0.0", chrome.BrowserVersion)
	assert.Equal(t, "10", chrome.OSVersion)

	ios := Parse("Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1")
	assert.Equal(t, "17.1", ios.OSVersion)
}

func TestParseBots(t *testing.T) {
	tests := []struct {
		userAgent string
		botName   string
	}{
		{"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", "Googlebot"},
		{"Mozilla/5.0 (compatible; AhrefsBot/7.0; +http://ahrefs.com/robot/)", "AhrefsBot"},
		{"curl/8.4.0", "HTTP Client"},
		{"GPTBot/1.0", "AI Crawler"},
	}

	for _, tt := range tests {
		t.Run(tt.botName, func(t *testing.T) {
			result := Parse(tt.userAgent)
			assert.True(t, result.Bot)
			assert.Equal(t, tt.botName, result.Browser)
			assert.Equal(t, "bot", result.Device)
		})
	}
}

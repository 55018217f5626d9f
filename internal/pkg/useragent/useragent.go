// Package useragent parses User-Agent strings against embedded pattern
// databases. Patterns are ordered; the first match wins.
package useragent

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

const Unknown = "Unknown"

// Result holds the parsed components of a User-Agent string.
type Result struct {
	UserAgent      string
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
	Device         string
	Bot            bool
}

//go:embed database/browsers.yml
//go:embed database/oses.yml
//go:embed database/devices.yml
//go:embed database/bots.yml
var databaseFiles embed.FS

type browserEntry struct {
	Regex   string `yaml:"regex"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type osEntry struct {
	Regex   string `yaml:"regex"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type deviceEntry struct {
	Regex  string `yaml:"regex"`
	Device string `yaml:"device"`
}

type botEntry struct {
	Regex string `yaml:"regex"`
	Name  string `yaml:"name"`
}

type regexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *regexCache {
	return &regexCache{compiled: make(map[string]*pcre.Regexp)}
}

func (rc *regexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

var (
	parser *patternParser
	once   sync.Once
)

type patternParser struct {
	browsers []browserEntry
	oses     []osEntry
	devices  []deviceEntry
	bots     []botEntry
	cache    *regexCache
}

func getParser() *patternParser {
	once.Do(func() {
		parser = &patternParser{cache: newRegexCache()}

		if data, err := databaseFiles.ReadFile("database/browsers.yml"); err == nil {
			if err := yaml.Unmarshal(data, &parser.browsers); err != nil {
				fmt.Printf("Error parsing browsers.yml: %v\n", err)
			}
		}
		if data, err := databaseFiles.ReadFile("database/oses.yml"); err == nil {
			if err := yaml.Unmarshal(data, &parser.oses); err != nil {
				fmt.Printf("Error parsing oses.yml: %v\n", err)
			}
		}
		if data, err := databaseFiles.ReadFile("database/devices.yml"); err == nil {
			if err := yaml.Unmarshal(data, &parser.devices); err != nil {
				fmt.Printf("Error parsing devices.yml: %v\n", err)
			}
		}
		if data, err := databaseFiles.ReadFile("database/bots.yml"); err == nil {
			if err := yaml.Unmarshal(data, &parser.bots); err != nil {
				fmt.Printf("Error parsing bots.yml: %v\n", err)
			}
		}
	})
	return parser
}

// expandVersion substitutes $1, $2, ... placeholders with capture groups and
// normalizes underscore separators to dots (Mac OS X 10_15_7 -> 10.15.7).
func expandVersion(template string, matches []string) string {
	version := template
	for i, match := range matches[1:] {
		placeholder := fmt.Sprintf("$%d", i+1)
		version = strings.ReplaceAll(version, placeholder, match)
	}
	return strings.ReplaceAll(strings.TrimSpace(version), "_", ".")
}

func (p *patternParser) parseBot(ua string) *botEntry {
	for _, bot := range p.bots {
		if regex, err := p.cache.get(bot.Regex); err == nil {
			if regex.MatchString(ua) {
				return &bot
			}
		}
	}
	return nil
}

func (p *patternParser) parseBrowser(ua string) (string, string) {
	for _, entry := range p.browsers {
		if regex, err := p.cache.get(entry.Regex); err == nil {
			if matches := regex.FindStringSubmatch(ua); len(matches) > 0 {
				version := ""
				if entry.Version != "" {
					version = expandVersion(entry.Version, matches)
				}
				return entry.Name, version
			}
		}
	}
	return Unknown, ""
}

func (p *patternParser) parseOS(ua string) (string, string) {
	for _, entry := range p.oses {
		if regex, err := p.cache.get(entry.Regex); err == nil {
			if matches := regex.FindStringSubmatch(ua); len(matches) > 0 {
				version := ""
				if entry.Version != "" {
					version = expandVersion(entry.Version, matches)
				}
				return entry.Name, version
			}
		}
	}
	return Unknown, ""
}

func (p *patternParser) parseDevice(ua string) string {
	for _, entry := range p.devices {
		if regex, err := p.cache.get(entry.Regex); err == nil {
			if regex.MatchString(ua) {
				return entry.Device
			}
		}
	}
	// Anything that matched no mobile or tablet pattern counts as desktop.
	return "desktop"
}

// Parse extracts browser, OS, and device class from a raw User-Agent string.
func Parse(ua string) Result {
	p := getParser()

	if bot := p.parseBot(ua); bot != nil {
		return Result{
			UserAgent: ua,
			Browser:   bot.Name,
			OS:        Unknown,
			Device:    "bot",
			Bot:       true,
		}
	}

	browser, browserVersion := p.parseBrowser(ua)
	os, osVersion := p.parseOS(ua)
	device := p.parseDevice(ua)

	return Result{
		UserAgent:      ua,
		Browser:        browser,
		BrowserVersion: browserVersion,
		OS:             os,
		OSVersion:      osVersion,
		Device:         device,
	}
}

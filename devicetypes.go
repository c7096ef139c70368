package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// canonicalDeviceTypes is the closed tag set the dashboards group by.
var canonicalDeviceTypes = map[string]bool{
	"heating":         true,
	"cooling":         true,
	"lighting":        true,
	"appliances":      true,
	"electronics":     true,
	"water_heating":   true,
	defaultDeviceType: true,
}

// DeviceGlossary maps free-form device tags coming out of extraction onto the
// canonical set. Loaded from an optional yaml file.
type DeviceGlossary struct {
	Terms []DeviceTerm `yaml:"terms"`
}

type DeviceTerm struct {
	Phrase string `yaml:"phrase"`
	Device string `yaml:"device"`
}

func LoadDeviceGlossary(path string) (*DeviceGlossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read device glossary: %w", err)
	}
	var g DeviceGlossary
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse device glossary yaml: %w", err)
	}
	for _, t := range g.Terms {
		device := normalizeTextToken(t.Device)
		if !canonicalDeviceTypes[device] {
			return nil, fmt.Errorf("device glossary: unknown device type '%s' for phrase '%s'", t.Device, t.Phrase)
		}
	}
	return &g, nil
}

// Normalize resolves a free-form tag: canonical tags pass through, glossary
// phrases map to their device, anything else falls back to "other". A nil
// glossary still normalizes canonical tags.
func (g *DeviceGlossary) Normalize(tag string) string {
	token := normalizeTextToken(tag)
	if token == "" {
		return defaultDeviceType
	}
	token = strings.ReplaceAll(token, " ", "_")
	if canonicalDeviceTypes[token] {
		return token
	}
	if g != nil {
		for _, t := range g.Terms {
			phrase := normalizeTextToken(t.Phrase)
			if phrase != "" && strings.Contains(normalizeTextToken(tag), phrase) {
				return normalizeTextToken(t.Device)
			}
		}
	}
	return defaultDeviceType
}

func normalizeTextToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

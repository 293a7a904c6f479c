// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/commtrail/commtrail/lib/directory"
	"github.com/commtrail/commtrail/lib/event"
)

// viewPreset is one named filter set in a views.jsonc file. All fields
// are optional; the zero preset shows every conversation.
type viewPreset struct {
	// Limit bounds the list length. Zero means unbounded.
	Limit int `json:"limit"`

	// Categories restricts the list to the named event categories
	// ("voicecall", "voicemail", "sms", "im", "mms", "other"). Empty
	// means all.
	Categories []string `json:"categories"`

	// Required names address capabilities ("phone", "email",
	// "account") a resolved contact must have at least one of.
	Required []string `json:"required"`

	// ExcludeFavorites drops conversations whose contact is marked
	// favorite.
	ExcludeFavorites bool `json:"exclude_favorites"`
}

// viewSettings is a resolved preset, ready to configure a recency
// list.
type viewSettings struct {
	limit            int
	categories       event.Category
	required         directory.AddressFlags
	excludeFavorites bool
}

// resolve parses the preset's name lists into masks.
func (p viewPreset) resolve() (viewSettings, error) {
	if p.Limit < 0 {
		return viewSettings{}, fmt.Errorf("limit must not be negative")
	}
	categories, err := event.ParseCategories(p.Categories)
	if err != nil {
		return viewSettings{}, err
	}
	required, err := directory.ParseAddressFlags(p.Required)
	if err != nil {
		return viewSettings{}, err
	}
	return viewSettings{
		limit:            p.Limit,
		categories:       categories,
		required:         required,
		excludeFavorites: p.ExcludeFavorites,
	}, nil
}

// loadViews reads a views file: a JSONC object mapping preset names to
// presets. JSONC is JSON extended with // line comments, /* block
// comments */, and trailing commas.
func loadViews(path string) (map[string]viewPreset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading views file: %w", err)
	}
	views := make(map[string]viewPreset)
	if err := json.Unmarshal(jsonc.ToJSON(data), &views); err != nil {
		return nil, fmt.Errorf("parsing views file %s: %w", path, err)
	}
	return views, nil
}

// defaultViewsPath is where --view looks for presets when --views is
// not given. Empty when no user config directory exists.
func defaultViewsPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, "commtrail", "views.jsonc")
}

// loadNamedView finds the preset in the views file and resolves it.
func loadNamedView(viewsPath, name string) (viewSettings, error) {
	if viewsPath == "" {
		viewsPath = defaultViewsPath()
	}
	if viewsPath == "" {
		return viewSettings{}, fmt.Errorf("no views file: pass --views or create commtrail/views.jsonc under your user config directory")
	}
	views, err := loadViews(viewsPath)
	if err != nil {
		return viewSettings{}, err
	}
	preset, ok := views[name]
	if !ok {
		names := make([]string, 0, len(views))
		for n := range views {
			names = append(names, n)
		}
		slices.Sort(names)
		return viewSettings{}, fmt.Errorf("view %q not found in %s (have: %s)", name, viewsPath, strings.Join(names, ", "))
	}
	settings, err := preset.resolve()
	if err != nil {
		return viewSettings{}, fmt.Errorf("view %q: %w", name, err)
	}
	return settings, nil
}

// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"

	"github.com/commtrail/commtrail/lib/directory"
	"github.com/commtrail/commtrail/lib/event"
)

func writeViews(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "views.jsonc")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleViews = `{
	// calls only, most recent twenty
	"calls": {
		"categories": ["voicecall", "voicemail"],
		"limit": 20,
	},
	"messages": {
		"categories": ["sms", "im", "mms"],
		"required": ["phone", "account"],
	},
	"frequent": {
		"exclude_favorites": true,
	},
}`

func TestLoadViewsParsesJSONC(t *testing.T) {
	path := writeViews(t, sampleViews)

	views, err := loadViews(path)
	if err != nil {
		t.Fatalf("loadViews() = %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("parsed %d views, want 3", len(views))
	}
	if views["calls"].Limit != 20 {
		t.Fatalf("calls.limit = %d, want 20", views["calls"].Limit)
	}
	if !views["frequent"].ExcludeFavorites {
		t.Fatal("frequent should exclude favorites")
	}
}

func TestLoadNamedView(t *testing.T) {
	path := writeViews(t, sampleViews)

	view, err := loadNamedView(path, "messages")
	if err != nil {
		t.Fatalf("loadNamedView() = %v", err)
	}
	wantCategories := event.CategoryShortMessaging | event.CategoryInstantMessaging | event.CategoryMultimediaMessaging
	if view.categories != wantCategories {
		t.Fatalf("categories = %v, want %v", view.categories, wantCategories)
	}
	if view.required != directory.HasPhoneNumber|directory.HasOnlineAccount {
		t.Fatalf("required = %v", view.required)
	}
	if view.limit != 0 || view.excludeFavorites {
		t.Fatalf("unexpected settings: %+v", view)
	}
}

func TestLoadNamedViewUnknownName(t *testing.T) {
	path := writeViews(t, sampleViews)

	_, err := loadNamedView(path, "nope")
	if err == nil {
		t.Fatal("unknown view name should fail")
	}
}

func TestViewPresetRejectsBadNames(t *testing.T) {
	if _, err := (viewPreset{Categories: []string{"fax"}}).resolve(); err == nil {
		t.Fatal("unknown category should fail")
	}
	if _, err := (viewPreset{Required: []string{"pager"}}).resolve(); err == nil {
		t.Fatal("unknown capability should fail")
	}
	if _, err := (viewPreset{Limit: -1}).resolve(); err == nil {
		t.Fatal("negative limit should fail")
	}
}

// viewerFlagSet builds the subset of the binary's flags that
// resolveViewSettings consults.
func viewerFlagSet(limit *int, categories, required *[]string, excludeFavorites *bool) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flagSet.IntVar(limit, "limit", 0, "")
	flagSet.StringSliceVar(categories, "categories", nil, "")
	flagSet.StringSliceVar(required, "required", nil, "")
	flagSet.BoolVar(excludeFavorites, "exclude-favorites", false, "")
	return flagSet
}

func TestResolveViewSettingsFlagsOverridePreset(t *testing.T) {
	path := writeViews(t, sampleViews)

	var (
		limit            int
		categories       []string
		required         []string
		excludeFavorites bool
	)
	flagSet := viewerFlagSet(&limit, &categories, &required, &excludeFavorites)
	if err := flagSet.Parse([]string{"--limit", "5"}); err != nil {
		t.Fatal(err)
	}

	view, err := resolveViewSettings(flagSet, "calls", path, limit, categories, required, excludeFavorites)
	if err != nil {
		t.Fatalf("resolveViewSettings() = %v", err)
	}
	if view.limit != 5 {
		t.Fatalf("limit = %d, want the flag override 5", view.limit)
	}
	// Preset fields without an override keep their file values.
	if view.categories != event.CategoryVoicecall|event.CategoryVoicemail {
		t.Fatalf("categories = %v, want the preset mask", view.categories)
	}
}

func TestResolveViewSettingsNoPreset(t *testing.T) {
	var (
		limit            int
		categories       []string
		required         []string
		excludeFavorites bool
	)
	flagSet := viewerFlagSet(&limit, &categories, &required, &excludeFavorites)
	if err := flagSet.Parse([]string{"--categories", "sms,im", "--exclude-favorites"}); err != nil {
		t.Fatal(err)
	}

	view, err := resolveViewSettings(flagSet, "", "", limit, categories, required, excludeFavorites)
	if err != nil {
		t.Fatalf("resolveViewSettings() = %v", err)
	}
	if view.categories != event.CategoryShortMessaging|event.CategoryInstantMessaging {
		t.Fatalf("categories = %v", view.categories)
	}
	if !view.excludeFavorites {
		t.Fatal("exclude-favorites flag should apply")
	}
	if view.limit != 0 || view.required != 0 {
		t.Fatalf("unexpected settings: %+v", view)
	}
}

func TestResolveViewSettingsRejectsBadFlagValues(t *testing.T) {
	var (
		limit            int
		categories       []string
		required         []string
		excludeFavorites bool
	)
	flagSet := viewerFlagSet(&limit, &categories, &required, &excludeFavorites)
	if err := flagSet.Parse([]string{"--limit", "-3"}); err != nil {
		t.Fatal(err)
	}

	if _, err := resolveViewSettings(flagSet, "", "", limit, categories, required, excludeFavorites); err == nil {
		t.Fatal("negative --limit should fail")
	}
}

// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package recentsui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/commtrail/commtrail/lib/event"
)

// Theme defines the color palette for the recents browser. All colors
// use lipgloss ANSI 256-color codes for broad terminal compatibility.
//
// The fields cover universal chrome (text, selection, borders) and the
// semantic accents the list rows need: one color per event type, plus
// accents for favorites, unread rows, and missed calls.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Selected row.
	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// Event type colors, keyed by event.Type.
	TypeCall          lipgloss.Color
	TypeVoicemail     lipgloss.Color
	TypeSMS           lipgloss.Color
	TypeIM            lipgloss.Color
	TypeMMS           lipgloss.Color
	TypeStatusMessage lipgloss.Color

	// Row accents.
	Favorite   lipgloss.Color // Star glyph for favorite contacts.
	Unread     lipgloss.Color // Name color for rows with unread events.
	MissedCall lipgloss.Color // Direction glyph for missed inbound calls.
	Resolving  lipgloss.Color // Spinner shown while resolution is in flight.

	// UI chrome.
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// Search and filter match highlighting.
	SearchHighlightBackground lipgloss.Color // Background tint for matched characters.
}

// TypeColor returns the color for an event type. Unknown types return
// NormalText.
func (theme Theme) TypeColor(eventType event.Type) lipgloss.Color {
	switch eventType {
	case event.TypeCall:
		return theme.TypeCall
	case event.TypeVoicemail:
		return theme.TypeVoicemail
	case event.TypeSMS:
		return theme.TypeSMS
	case event.TypeIM:
		return theme.TypeIM
	case event.TypeMMS:
		return theme.TypeMMS
	case event.TypeStatusMessage:
		return theme.TypeStatusMessage
	default:
		return theme.NormalText
	}
}

// DefaultTheme is the built-in dark-terminal color scheme. Designed for
// 256-color terminals with a dark background.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	TypeCall:          lipgloss.Color("114"), // green
	TypeVoicemail:     lipgloss.Color("208"), // orange
	TypeSMS:           lipgloss.Color("75"),  // blue
	TypeIM:            lipgloss.Color("141"), // light purple
	TypeMMS:           lipgloss.Color("81"),  // cyan
	TypeStatusMessage: lipgloss.Color("245"), // gray

	Favorite:   lipgloss.Color("220"), // amber star
	Unread:     lipgloss.Color("255"), // bright white
	MissedCall: lipgloss.Color("196"), // red
	Resolving:  lipgloss.Color("220"), // amber, matches the star

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	SearchHighlightBackground: lipgloss.Color("58"), // dark amber
}

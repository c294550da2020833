// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package cache

import "testing"

func TestKeyFormat(t *testing.T) {
	inv := NewInvalidator(nil, "lastplayed")
	if got := inv.Key("30672329", "111"); got != "lastplayed:30672329:111" {
		t.Errorf("Key = %q, want lastplayed:30672329:111", got)
	}
}

func TestKeyPrefixDefault(t *testing.T) {
	inv := NewInvalidator(nil, "")
	if got := inv.Key("1", "2"); got != "lastplayed:1:2" {
		t.Errorf("Key = %q, want lastplayed:1:2", got)
	}
}

func TestKeyCustomPrefix(t *testing.T) {
	inv := NewInvalidator(nil, "gametime:lp")
	if got := inv.Key("1", "2"); got != "gametime:lp:1:2" {
		t.Errorf("Key = %q", got)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("not-a-url"); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}

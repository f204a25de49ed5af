package ui

import "testing"

func TestThemeLookups(t *testing.T) {
	th := GetTheme("Nightfox")

	if got := th.StatusColor(" MQ5 "); got != th.StatusColors["MQ5"] {
		t.Fatalf("StatusColor = %q, want %q", got, th.StatusColors["MQ5"])
	}
	if got := th.StatusColor("unknown"); got != th.Muted {
		t.Fatalf("StatusColor unknown = %q, want %q", got, th.Muted)
	}
}

func TestThemesDefineEveryStatusColor(t *testing.T) {
	keys := []string{"DHT22", "MQ5", "MQ2", "live", "active", "inactive"}
	for _, name := range ThemeNames() {
		th := GetTheme(name)
		for _, k := range keys {
			if th.StatusColors[k] == "" {
				t.Errorf("theme %s has no color for %q", name, k)
			}
		}
	}
}

func TestThemeNames(t *testing.T) {
	names := ThemeNames()
	if len(names) != 3 {
		t.Fatalf("ThemeNames() returned %d names, want 3", len(names))
	}
	names[0] = "mutated"
	if ThemeNames()[0] != "Nightfox" {
		t.Fatal("ThemeNames() exposes its backing slice")
	}
}

func TestNextTheme(t *testing.T) {
	if got := NextTheme("Nightfox"); got != "Kanagawa" {
		t.Fatalf("NextTheme(Nightfox) = %q, want Kanagawa", got)
	}
	if got := NextTheme("Slate"); got != "Nightfox" {
		t.Fatalf("NextTheme(Slate) = %q, want Nightfox", got)
	}
	if got := NextTheme("Unknown"); got != "Nightfox" {
		t.Fatalf("NextTheme(Unknown) = %q, want Nightfox", got)
	}
}

func TestGetTheme(t *testing.T) {
	if got := GetTheme("Slate").Name; got != "Slate" {
		t.Fatalf("GetTheme(Slate).Name = %q, want Slate", got)
	}
	if got := GetTheme("nonexistent").Name; got != "Nightfox" {
		t.Fatalf("GetTheme(nonexistent).Name = %q, want Nightfox", got)
	}
}

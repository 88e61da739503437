package mangle

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestMangle(t *testing.T) {
	tests := []struct {
		name   string
		app    string
		module string
		want   string
	}{
		{"documented example", "author/my-app", "Native.Something", "_author$my_app$Native_Something"},
		{"only first dash in name", "a/x-y-z", "M", "_a$x_y-z$M"},
		{"no separators to rewrite", "owner/name", "Main", "_owner$name$Main"},
		{"only first dot in module", "o/n", "Native.Json.Decode", "_o$n$Native_Json.Decode"},
		{"owner dashes untouched", "elm-lang/core", "Native.List", "_elm-lang$core$Native_List"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Mangle(tt.app, tt.module)
			if err != nil {
				t.Fatalf("Mangle(%q, %q) error: %v", tt.app, tt.module, err)
			}
			if got != tt.want {
				t.Errorf("Mangle(%q, %q) = %q, want %q", tt.app, tt.module, got, tt.want)
			}
		})
	}
}

func TestMangleDeterministic(t *testing.T) {
	first, err := Mangle("author/my-app", "Native.Something")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		got, err := Mangle("author/my-app", "Native.Something")
		if err != nil {
			t.Fatal(err)
		}
		if got != first {
			t.Fatalf("call %d returned %q, want %q", i, got, first)
		}
	}
}

func TestMangleWithFull(t *testing.T) {
	tests := []struct {
		app    string
		module string
		want   string
	}{
		{"a/x-y-z", "M", "_a$x_y_z$M"},
		{"elm-lang/core", "Native.List", "_elm_lang$core$Native_List"},
		{"o/n", "Native.Json.Decode", "_o$n$Native_Json_Decode"},
	}

	for _, tt := range tests {
		got, err := MangleWith(ModeFull, tt.app, tt.module)
		if err != nil {
			t.Fatalf("MangleWith(full, %q, %q) error: %v", tt.app, tt.module, err)
		}
		if got != tt.want {
			t.Errorf("MangleWith(full, %q, %q) = %q, want %q", tt.app, tt.module, got, tt.want)
		}
		if strings.ContainsAny(got, "-./") {
			t.Errorf("full key %q still contains a separator", got)
		}
	}
}

func TestMangleInvalidIdentifier(t *testing.T) {
	tests := []struct {
		name   string
		app    string
		module string
	}{
		{"no slash", "my-app", "Native.Something"},
		{"two slashes", "a/b/c", "M"},
		{"empty owner", "/name", "M"},
		{"empty name", "owner/", "M"},
		{"empty app", "", "M"},
		{"dollar in app", "own$er/name", "M"},
		{"empty module", "owner/name", ""},
		{"dollar in module", "owner/name", "Na$tive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, mode := range []Mode{ModeCompat, ModeFull} {
				_, err := MangleWith(mode, tt.app, tt.module)
				if err == nil {
					t.Fatalf("MangleWith(%s, %q, %q) succeeded, want error", mode, tt.app, tt.module)
				}
				if !stderrors.Is(err, ErrInvalidIdentifier) {
					t.Errorf("error %v does not wrap ErrInvalidIdentifier", err)
				}
			}
		})
	}
}

func TestMangleUnknownMode(t *testing.T) {
	_, err := MangleWith(Mode(42), "a/b", "M")
	if !stderrors.Is(err, ErrUnknownMode) {
		t.Errorf("err = %v, want ErrUnknownMode", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeCompat, false},
		{"compat", ModeCompat, false},
		{" Full ", ModeFull, false},
		{"general", ModeCompat, true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if ModeFull.String() != "full" || ModeCompat.String() != "compat" {
		t.Error("Mode.String mismatch")
	}
}

func TestParse(t *testing.T) {
	key, err := Mangle("author/my-app", "Native.Something")
	if err != nil {
		t.Fatal(err)
	}

	parts, err := Parse(key)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", key, err)
	}
	want := Parts{Owner: "author", Name: "my_app", Module: "Native_Something"}
	if parts != want {
		t.Errorf("Parse(%q) = %+v, want %+v", key, parts, want)
	}
	if parts.String() != key {
		t.Errorf("Parts.String() = %q, want %q", parts.String(), key)
	}
}

func TestParseInvalid(t *testing.T) {
	for _, key := range []string{
		"",
		"author$app$Mod",
		"_author$app",
		"_a$b$c$d",
		"_$b$c",
		"_a$$c",
	} {
		if _, err := Parse(key); !stderrors.Is(err, ErrInvalidKey) {
			t.Errorf("Parse(%q) err = %v, want ErrInvalidKey", key, err)
		}
	}
}

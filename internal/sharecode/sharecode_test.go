package sharecode

import (
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_UsesRestrictedAlphabet(t *testing.T) {
	for range 2000 {
		code := Generate()
		require.Len(t, code, Length)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(Alphabet, c), "unexpected char %q in %s", c, code)
		}
		assert.True(t, IsValid(code), "generated code %s should be valid", code)
	}
}

func TestGenerate_NeverEmitsAmbiguousChars(t *testing.T) {
	for range 2000 {
		code := Generate()
		assert.False(t, strings.ContainsAny(code, "IO01"), code)
	}
	assert.False(t, strings.ContainsAny(Alphabet, "IO01"))
	assert.Len(t, Alphabet, 32)
}

func TestGenerate_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	codes := make(chan string, 800)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				codes <- Generate()
			}
		}()
	}
	wg.Wait()
	close(codes)

	seen := map[string]bool{}
	for c := range codes {
		assert.True(t, IsValid(c))
		seen[c] = true
	}
	// 32^6 possibilities; 800 draws colliding heavily means a broken source
	assert.Greater(t, len(seen), 790)
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		code string
		want bool
	}{
		{"uppercase alnum", "ABC123", true},
		{"generated style", "BEARS7", true},
		{"ambiguous chars accepted", "IO01IO", true},
		{"lowercase", "abc123", false},
		{"mixed case", "Abc123", false},
		{"empty", "", false},
		{"five chars", "ABC12", false},
		{"seven chars", "ABC1234", false},
		{"hyphen", "ABC-12", false},
		{"formatted", "ABC-123", false},
		{"space", "ABC 12", false},
		{"symbol", "ABC12!", false},
		{"non ascii letter", "ÄBC12", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValid(tt.code))
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{" be-ars7 ", "BEARS7"},
		{"  bea-rs7 ", "BEARS7"},
		{"BEARS7", "BEARS7"},
		{"b-e-a-r-s-7", "BEARS7"},
		{"\tbea rs7\n", "BEA RS7"},
		{"-  ab", "AB"},
		{"- bears7", "BEARS7"},
		{"", ""},
		{"---", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"", " ", "-", " - a - ", "-  ab", "abc-def", "  xyz789  ", "ß-straße", " ab-c ", "BEA-RS7",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "BEA-RS7", Format("BEARS7"))
	assert.Equal(t, "AB", Format("AB"))
	assert.Equal(t, "", Format(""))
	assert.Equal(t, "ABCDEFG", Format("ABCDEFG"))
}

func TestFormat_CountsCharactersNotBytes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ÄBCDE", "ÄBCDE"},
		{"ÄBCDEF", "ÄBC-DEF"},
		{"ÄÄÄ", "ÄÄÄ"},
		{"ÄÄÄÄÄÄ", "ÄÄÄ-ÄÄÄ"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Format(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestFormat_RoundTripsThroughNormalize(t *testing.T) {
	for range 500 {
		c := Generate()
		assert.Equal(t, c, Normalize(Format(c)))
		assert.Equal(t, c, Normalize(strings.ToLower(Format(c))))
	}
	assert.Equal(t, "IO01IO", Normalize(Format("IO01IO")))
}

func TestParse_UserTypesFormattedCodeBack(t *testing.T) {
	shown := Format("BEARS7")
	require.Equal(t, "BEA-RS7", shown)

	code, ok := Parse("  bea-rs7 ")
	assert.True(t, ok)
	assert.Equal(t, "BEARS7", code)

	// a stray hyphen before the space is dropped along with the space
	code, ok = Parse("- bears7")
	assert.True(t, ok)
	assert.Equal(t, "BEARS7", code)

	code, ok = Parse("bears")
	assert.False(t, ok)
	assert.Equal(t, "BEARS", code)
}

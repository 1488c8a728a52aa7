package expr

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type player struct{ hp int }

func (p player) Get(key string) (any, bool) {
	if key == "hp" {
		return p.hp, true
	}
	return nil, false
}

func testEnv() Env {
	return Env{
		"counters": map[string]any{"clues": 1.0, "samples": 2.0, "analyzed": false, "flag": true},
		"tracks": map[string]any{
			"eco.pollution": map[string]any{"name": "Pollution", "value": 4.0, "max": 10.0},
		},
		"route":  "official",
		"player": player{hp: 7},
	}
}

func TestEval(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want bool
	}{
		{"number compare", "counters.clues >= 1", true},
		{"bracket track access", "tracks['eco.pollution'].value > 3", true},
		{"double quoted key", `tracks["eco.pollution"].max == 10`, true},
		{"and", "counters.samples == 2 && route == 'official'", true},
		{"or short-circuit", "counters.clues > 5 || counters.flag", true},
		{"not", "!counters.analyzed", true},
		{"bool equality", "counters.analyzed == false", true},
		{"strict mismatch", "counters.samples === '2'", false},
		{"loose string number", "counters.samples == '2'", true},
		{"arithmetic precedence", "1 + 2 * 3 == 7", true},
		{"parentheses", "(1 + 2) * 3 == 9", true},
		{"modulo", "counters.samples % 2 === 0", true},
		{"unary minus", "-counters.clues < 0", true},
		{"missing key is undefined", "counters.unknown == null", true},
		{"missing key falsy", "counters.unknown", false},
		{"null equals undefined", "null == undefined", true},
		{"string concat", "'a' + 1 == 'a1'", true},
		{"string compare", "route < 'zeta'", true},
		{"getter binding", "player.hp == 7", true},
		{"missing track value", "tracks['none'] === undefined", true},
		{"route length", "route.length == 8", true},
		{"not equal", "route != 'community'", true},
		{"strict not equal", "counters.clues !== 1", false},
		{"NaN comparison", "route > 1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.src, testEnv())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr error
	}{
		{"empty", "", ErrSyntax},
		{"assignment", "counters.clues = 2", ErrSyntax},
		{"dangling operator", "counters.clues >", ErrSyntax},
		{"unbalanced bracket", "tracks['x'", ErrSyntax},
		{"unterminated string", "route == 'abc", ErrSyntax},
		{"function call", "alert(1)", ErrSyntax},
		{"constructor access", "route.constructor('x')", ErrSyntax},
		{"unknown identifier", "window.location", ErrEval},
		{"property of undefined", "tracks['none'].value > 1", ErrEval},
		{"trailing tokens", "1 2", ErrSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Eval(tt.src, testEnv())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestShortCircuitSkipsErrors(t *testing.T) {
	got, err := Eval("false && tracks['none'].value > 1", testEnv())
	require.NoError(t, err)
	assert.False(t, got)

	got, err = Eval("true || missing.value", testEnv())
	require.NoError(t, err)
	assert.True(t, got)
}

func TestProgramEvalReturnsValue(t *testing.T) {
	p, err := Compile("counters.samples * 3")
	require.NoError(t, err)
	v, err := p.Eval(testEnv())
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)
	assert.Equal(t, "counters.samples * 3", p.String())
}

func TestCache(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.Compile("counters.clues > 0")
			if assert.NoError(t, err) {
				ok, err := p.EvalBool(testEnv())
				assert.NoError(t, err)
				assert.True(t, ok)
			}
		}()
	}
	wg.Wait()

	_, err := c.Compile("((")
	assert.ErrorIs(t, err, ErrSyntax)
	_, err = c.Compile("((")
	assert.ErrorIs(t, err, ErrSyntax)
	assert.Equal(t, 2, c.Len())
}

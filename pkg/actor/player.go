package actor

import (
	"fmt"
	"maps"

	"github.com/jwebster45206/d20"
	"github.com/jwebster45206/situation-engine/pkg/rules"
)

// DefaultPlayerID is the actor id used when a profile carries no name.
const DefaultPlayerID = "player"

// Player is the runtime player character, built from a rules.PlayerProfile.
// It is exposed to condition expressions as `player`.
type Player struct {
	Profile rules.PlayerProfile
	Actor   *d20.Actor // Built at runtime from Profile
}

// NewPlayer builds the d20 actor for a profile. A nil profile yields a nil Player.
func NewPlayer(profile *rules.PlayerProfile) (*Player, error) {
	if profile == nil {
		return nil, nil
	}

	id := profile.Name
	if id == "" {
		id = DefaultPlayerID
	}
	maxHP := profile.MaxHP
	if maxHP == 0 {
		maxHP = profile.HP
	}

	a, err := d20.NewActor(id).
		WithHP(maxHP).
		WithAC(profile.AC).
		WithAttributes(maps.Clone(profile.Attributes)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build player actor: %w", err)
	}

	if profile.HP != maxHP && profile.HP > 0 {
		if err := a.SetHP(profile.HP); err != nil {
			return nil, fmt.Errorf("failed to set HP: %w", err)
		}
	}

	return &Player{Profile: *profile, Actor: a}, nil
}

// Get resolves player.<key> in expressions. Unknown keys fall through to
// actor attributes, so `player.investigation` works as well as
// `player.attributes.investigation`.
func (p *Player) Get(key string) (any, bool) {
	if p == nil || p.Actor == nil {
		return nil, false
	}
	switch key {
	case "name":
		return p.Profile.Name, true
	case "hp":
		return p.Actor.HP(), true
	case "max_hp":
		return p.Actor.MaxHP(), true
	case "ac":
		return p.Actor.AC(), true
	case "attributes":
		attrs := make(map[string]int, len(p.Profile.Attributes))
		for k := range p.Profile.Attributes {
			if v, ok := p.Actor.Attribute(k); ok {
				attrs[k] = v
			}
		}
		return attrs, true
	}
	if v, ok := p.Actor.Attribute(key); ok {
		return v, true
	}
	return nil, false
}

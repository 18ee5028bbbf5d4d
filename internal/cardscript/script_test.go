package cardscript

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleScript = `{
  "handlers": [
    {
      "event": {"type": "postSpawn"},
      "actions": [
        {"type": "hurt", "damage": 2, "target": {"type": "query", "kind": "unit", "team": "enemy", "filters": [{"type": "wounded"}], "n": 1}},
        {"type": "singleConditional", "target": "me", "conditions": [{"type": "attr", "attr": "attack", "op": "greater", "value": 2}],
         "actions": [{"type": "draw", "n": 1, "filters": []}]}
      ]
    },
    {
      "event": {"type": "postUnitHurt", "team": "ally", "dealt": false},
      "actions": [{"type": "modifier", "isBuff": true, "value": 1, "attr": "attack", "target": {"type": "me"}, "duration": 0}]
    }
  ]
}`

func TestParse(t *testing.T) {
	sc, err := Parse([]byte(sampleScript))
	require.NoError(t, err)
	require.Len(t, sc.Handlers, 2)

	assert.IsType(t, &PostSpawnEvent{}, sc.Handlers[0].Event.Event)
	require.Len(t, sc.Handlers[0].Actions, 2)

	hurt, ok := sc.Handlers[0].Actions[0].(*HurtAction)
	require.True(t, ok)
	assert.Equal(t, 2, hurt.Damage)
	q, ok := hurt.Target.Target.(*QueryTarget)
	require.True(t, ok)
	assert.Equal(t, EntityUnit, q.Kind)
	assert.Equal(t, TeamEnemy, q.Team)
	assert.Equal(t, 1, q.N)
	require.Len(t, q.Filters, 1)
	assert.IsType(t, &WoundedFilter{}, q.Filters[0])

	cond, ok := sc.Handlers[0].Actions[1].(*SingleConditionalAction)
	require.True(t, ok)
	assert.Equal(t, CondMe, cond.Target)
	attr := cond.Conditions[0].(*AttrFilter)
	assert.Equal(t, AttrAttack, attr.Attr)
	assert.Equal(t, OpGreater, attr.Op)

	ev := sc.Handlers[1].Event.Event.(*PostUnitHurtEvent)
	assert.Equal(t, TeamAlly, ev.Team)
	assert.False(t, ev.Dealt)
}

func TestParse_RoundTrip(t *testing.T) {
	sc, err := Parse([]byte(sampleScript))
	require.NoError(t, err)

	data, err := json.Marshal(sc)
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, sc, again)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown event", `{"handlers":[{"event":{"type":"postExplode"},"actions":[]}]}`},
		{"unknown action", `{"handlers":[{"event":{"type":"postSpawn"},"actions":[{"type":"teleport"}]}]}`},
		{"missing target", `{"handlers":[{"event":{"type":"postSpawn"},"actions":[{"type":"hurt","damage":1}]}]}`},
		{"bad team", `{"handlers":[{"event":{"type":"postTurn","team":"neutral"},"actions":[]}]}`},
		{"bad filter", `{"handlers":[{"event":{"type":"postSpawn"},"actions":[{"type":"draw","n":1,"filters":[{"type":"shiny"}]}]}]}`},
		{"not an object", `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestDecode_UnknownVariantIsHardError(t *testing.T) {
	// bypasses the schema
	var as Actions
	err := json.Unmarshal([]byte(`[{"type":"teleport"}]`), &as)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownVariant))
}

func TestWalk(t *testing.T) {
	sc, err := Parse([]byte(sampleScript))
	require.NoError(t, err)

	var tags []string
	sc.Walk(func(a Action) { tags = append(tags, a.Tag()) })
	assert.Equal(t, []string{"hurt", "singleConditional", "draw", "modifier"}, tags)
}

func TestFromValue(t *testing.T) {
	v := map[string]any{
		"handlers": []any{
			map[string]any{
				"event":   map[string]any{"type": "postTurn", "team": "self"},
				"actions": []any{map[string]any{"type": "heal", "damage": 2, "target": map[string]any{"type": "core", "enemy": false}}},
			},
		},
	}
	sc, err := FromValue(v)
	require.NoError(t, err)
	heal := sc.Handlers[0].Actions[0].(*HealAction)
	assert.Equal(t, 2, heal.Damage)
	assert.Equal(t, &CoreTarget{Enemy: false}, heal.Target.Target)
}

func TestDirectionDelta(t *testing.T) {
	dx, dy := DirUp.Delta()
	assert.Equal(t, 0, dx)
	assert.Equal(t, 1, dy)
	dx, dy = DirLeft.Delta()
	assert.Equal(t, -1, dx)
	assert.Equal(t, 0, dy)
}

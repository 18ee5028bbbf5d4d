package duel

// FragSwitchTurn starts the next turn of Player: it refills energy, readies
// the player's units and ticks modifiers. It does not draw.
type FragSwitchTurn struct {
	FragmentBase
	Player PlayerIndex

	PrevPlayer PlayerIndex
}

func NewFragSwitchTurn(player PlayerIndex) *FragSwitchTurn {
	return &FragSwitchTurn{FragmentBase: newFragmentBase(false), Player: player}
}

func (f *FragSwitchTurn) Verify(d *Duel) bool {
	return f.Player.Valid()
}

func (f *FragSwitchTurn) Run(d *Duel) bool {
	st := d.State
	f.PrevPlayer = st.WhoseTurn
	turn := st.Turn + 1
	if err := f.ApplyDelta(&SwitchTurnDelta{Turn: turn, WhoseTurn: f.Player}); err != nil {
		return false
	}

	pl := st.Player(f.Player)
	maxEnergy := min(d.Settings.MaxEnergy, pl.Attribs().GetBase(AttrMaxEnergy)+1)
	_ = f.ApplyDelta(&UpdateEntityAttribsDelta{
		EntityID: pl.ID,
		Set: map[AttributeID]int{
			AttrMaxEnergy: maxEnergy,
			// clamped down to the new max energy
			AttrEnergy:              d.Settings.MaxEnergy,
			AttrCardsPlayedThisTurn: 0,
		},
	})

	for _, u := range st.PlayerUnits(f.Player) {
		a := u.Attribs()
		_ = f.ApplyDelta(&UpdateEntityAttribsDelta{
			EntityID: u.ID,
			Set: map[AttributeID]int{
				AttrInactionTurns: max(0, a.GetBase(AttrInactionTurns)-1),
				AttrActionsLeft:   a.GetActual(AttrActionsPerTurn),
			},
		})
	}

	if expired := st.tickModifiers(); len(expired) > 0 {
		f.EnqueueFragment(NewFragRemoveModifiers(expired...))
	}

	for _, s := range st.ActiveScripts() {
		d.runHook(f, s, "PostTurnChange", func() { s.PostTurnChange(f, f.PrevPlayer, f.Player, turn) })
	}

	f.Mutation().RequestTimerStart()
	return true
}

// FragEndGame ends the duel with Winner as the victor.
type FragEndGame struct {
	FragmentBase
	Winner PlayerIndex
}

func NewFragEndGame(winner PlayerIndex) *FragEndGame {
	return &FragEndGame{FragmentBase: newFragmentBase(false), Winner: winner}
}

func (f *FragEndGame) Verify(d *Duel) bool {
	return f.Winner.Valid()
}

func (f *FragEndGame) Run(d *Duel) bool {
	w := f.Winner
	if err := f.ApplyDelta(&EndGameDelta{Winner: &w}); err != nil {
		return false
	}
	f.Mutation().RequestTimerStop()
	return true
}

package game

// ViewFor returns a copy of the table as seen by viewerID: the deck is
// removed and hole cards are hidden except the viewer's own, and those of
// players still in the hand once it has been shown down.
func (t *Table) ViewFor(viewerID string) *Table {
	v := t.Clone()
	v.Deck = nil
	reveal := t.Stage == Showdown && t.Results != nil && !t.Results.Uncontested
	for _, s := range v.Seats {
		if s.PlayerID == viewerID || (reveal && !s.Folded) {
			continue
		}
		s.Hand = nil
	}
	return v
}

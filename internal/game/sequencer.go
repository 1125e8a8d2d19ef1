package game

// NextActable scans the seats in seating order starting just after from,
// wrapping around, and returns the first seat that is neither folded nor
// all-in. from itself is never returned. It returns NoSeat when no other
// seat can act.
func NextActable(t *Table, from int) int {
	n := len(t.Seats)
	if n == 0 {
		return NoSeat
	}
	for i := 1; i < n; i++ {
		pos := ((from+i)%n + n) % n
		if t.Seats[pos].Actable() {
			return pos
		}
	}
	return NoSeat
}

// contenders returns the positions of seats that have not folded.
func contenders(t *Table) []int {
	var out []int
	for i, s := range t.Seats {
		if !s.Folded {
			out = append(out, i)
		}
	}
	return out
}

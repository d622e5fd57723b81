package display

const (
	frontDir = "assets/fronts/"
	// BackAsset is shown by every empty slot.
	BackAsset = "assets/backs/blue.svg"
)

// FrontAsset is the face image path for a card id.
func FrontAsset(cardID string) string {
	return frontDir + cardID + ".svg"
}

// Slot is one pre-allocated card placeholder.
type Slot struct {
	Card    string // "" when empty
	Visible bool
	Src     string
}

func (s Slot) Occupied() bool { return s.Visible }

func emptySlot() Slot { return Slot{Src: BackAsset} }

// Row is a fixed-size sequence of slots, e.g. the hand or the table.
// A Row has a single writer; callers serialize access.
type Row struct {
	Name      string
	slots     []Slot
	listeners []func()
}

func NewRow(name string, size int) *Row {
	if size < 0 {
		size = 0
	}
	r := &Row{Name: name, slots: make([]Slot, size), listeners: make([]func(), size)}
	for i := range r.slots {
		r.slots[i] = emptySlot()
	}
	return r
}

func (r *Row) Len() int { return len(r.slots) }

// Render projects cardIDs onto the row: the first len(cardIDs) slots show
// those faces in order and the rest are hidden backs. Ids past the end of
// the row are not written; their count is returned.
func (r *Row) Render(cardIDs []string) (dropped int) {
	n := len(cardIDs)
	if n > len(r.slots) {
		dropped = n - len(r.slots)
		n = len(r.slots)
	}
	for i := 0; i < n; i++ {
		r.slots[i] = Slot{Card: cardIDs[i], Visible: true, Src: FrontAsset(cardIDs[i])}
	}
	for i := n; i < len(r.slots); i++ {
		r.slots[i] = emptySlot()
	}
	return dropped
}

// Slots returns a copy of the current slot state.
func (r *Row) Slots() []Slot {
	out := make([]Slot, len(r.slots))
	copy(out, r.slots)
	return out
}

// ---------- click listeners ----------

// Bind sets the click listener of slot i, replacing any previous one.
func (r *Row) Bind(i int, fn func()) {
	if i < 0 || i >= len(r.listeners) {
		return
	}
	r.listeners[i] = fn
}

// Unbind detaches every listener in the row.
func (r *Row) Unbind() {
	for i := range r.listeners {
		r.listeners[i] = nil
	}
}

// Listener returns the listener bound to slot i, or nil.
func (r *Row) Listener(i int) func() {
	if i < 0 || i >= len(r.listeners) {
		return nil
	}
	return r.listeners[i]
}

// Bound counts slots that currently have a listener.
func (r *Row) Bound() int {
	n := 0
	for _, fn := range r.listeners {
		if fn != nil {
			n++
		}
	}
	return n
}

// ---------- board ----------

// Board is the whole display state: the viewer's hand and the shared table.
type Board struct {
	Hand  *Row
	Table *Row
}

func NewBoard(handSlots, tableSlots int) *Board {
	return &Board{Hand: NewRow("hand", handSlots), Table: NewRow("table", tableSlots)}
}

// View is an immutable copy of a Board for painting.
type View struct {
	Hand  []Slot
	Table []Slot
}

func (b *Board) View() View {
	return View{Hand: b.Hand.Slots(), Table: b.Table.Slots()}
}

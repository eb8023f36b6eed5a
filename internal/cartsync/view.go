package cartsync

// Status is the loading state of the cart panel.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// AddButtonState is the appearance of a product's add-to-cart control.
type AddButtonState string

const (
	AddIdle      AddButtonState = "idle"
	AddPending   AddButtonState = "pending"
	AddConfirmed AddButtonState = "confirmed"
)

// LineView is a rendered line plus its in-flight markers. Pending lines have
// their controls disabled; dimmed lines are awaiting removal.
type LineView struct {
	Line
	Pending bool
	Dimmed  bool
}

type Badge struct {
	Count  int
	Hidden bool
}

// View is everything a renderer needs to draw the cart widgets.
type View struct {
	Open            bool
	Status          Status
	Snapshot        Snapshot
	Lines           []LineView
	Badge           Badge
	CheckoutEnabled bool
	AddButtons      map[int]AddButtonState
	Version         uint64
}

func newView() View {
	return View{
		Status:     StatusIdle,
		Lines:      []LineView{},
		Badge:      Badge{Hidden: true},
		AddButtons: map[int]AddButtonState{},
	}
}

// AddButton returns the state of the product's add control.
func (v View) AddButton(productID int) AddButtonState {
	if state, ok := v.AddButtons[productID]; ok {
		return state
	}
	return AddIdle
}

// LineView looks up a rendered line by id.
func (v View) LineView(lineID int) (LineView, bool) {
	for _, lv := range v.Lines {
		if lv.ID == lineID {
			return lv, true
		}
	}
	return LineView{}, false
}

func (v View) clone() View {
	out := v
	out.Snapshot = v.Snapshot.clone()
	out.Lines = append([]LineView(nil), v.Lines...)
	out.AddButtons = make(map[int]AddButtonState, len(v.AddButtons))
	for id, state := range v.AddButtons {
		out.AddButtons[id] = state
	}
	return out
}

func badgeFor(count int) Badge {
	return Badge{Count: count, Hidden: count <= 0}
}

// FrameKind tells subscribers which widget a frame changed.
type FrameKind string

const (
	FramePanel     FrameKind = "panel"
	FrameCart      FrameKind = "cart"
	FrameLine      FrameKind = "line"
	FrameBadge     FrameKind = "badge"
	FrameAddButton FrameKind = "add-button"
)

// Frame is a published copy of the view after one change.
type Frame struct {
	Kind      FrameKind
	ProductID int
	LineID    int
	View      View
}

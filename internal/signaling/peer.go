package signaling

// Conn is the outbound half of one client connection. Send must not block; it reports
// whether the frame was queued.
type Conn interface {
	ID() string
	Send(frame []byte) bool
}

// Peer is one gateway connection plus the identity bound to it by a successful join.
// It is only touched from the hub goroutine.
type Peer struct {
	Conn
	participantID string
	roomID        string
}

// NewPeer wraps a connection in the unjoined state.
func NewPeer(conn Conn) *Peer {
	return &Peer{Conn: conn}
}

// ParticipantID returns the bound participant id, or "" before join.
func (p *Peer) ParticipantID() string { return p.participantID }

// RoomID returns the bound room id, or "" before join.
func (p *Peer) RoomID() string { return p.roomID }

// Joined reports whether a join has succeeded on this connection.
func (p *Peer) Joined() bool { return p.participantID != "" || p.roomID != "" }

func (p *Peer) bind(roomID, participantID string) {
	p.roomID = roomID
	p.participantID = participantID
}

func (p *Peer) unbind() {
	p.roomID = ""
	p.participantID = ""
}

// Package webrtc negotiates the peer connection over the signaling broker
// and exposes the resulting data channel as a transfer.Channel.
package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/codedrop/codedrop/internal/config"
	"github.com/codedrop/codedrop/internal/signaling"
	"github.com/codedrop/codedrop/internal/transfer"
)

// ChannelLabel is the label of the single file channel.
const ChannelLabel = "fileTransfer"

// Signaler relays negotiation messages to the other peer.
type Signaler interface {
	SendSignal(v any) error
}

type offerMessage struct {
	Type  string                   `json:"type"`
	Offer *pion.SessionDescription `json:"offer"`
}

type answerMessage struct {
	Type   string                   `json:"type"`
	Answer *pion.SessionDescription `json:"answer"`
}

type candidateMessage struct {
	Type      string                 `json:"type"`
	Candidate *pion.ICECandidateInit `json:"candidate"`
}

// signal is any inbound negotiation message.
type signal struct {
	Type      string                   `json:"type"`
	Offer     *pion.SessionDescription `json:"offer"`
	Answer    *pion.SessionDescription `json:"answer"`
	Candidate *pion.ICECandidateInit   `json:"candidate"`
}

// Peer is one side of the connection. The offerer creates the data channel;
// the answerer receives it.
type Peer struct {
	pc       *pion.PeerConnection
	signaler Signaler

	opened    chan *DataChannel
	failed    chan struct{}
	onChannel func(*DataChannel)

	mu        sync.Mutex
	remoteSet bool
	pending   []pion.ICECandidateInit
	failOnce  sync.Once
}

// NewPeerConnection builds a pion connection from the configured ICE servers.
func NewPeerConnection(cfg *config.Client) (*pion.PeerConnection, error) {
	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}
	if turn := cfg.GetTURNServers(); turn != nil {
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turn,
			Username:   cfg.TURNUser,
			Credential: cfg.TURNPass,
		})
	}

	pc, err := pion.NewPeerConnection(pion.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, transfer.NewError("create peer connection", err)
	}
	return pc, nil
}

// NewPeer creates a peer that trickles its candidates through signaler.
func NewPeer(cfg *config.Client, signaler Signaler) (*Peer, error) {
	pc, err := NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}

	p := &Peer{
		pc:       pc,
		signaler: signaler,
		opened:   make(chan *DataChannel, 1),
		failed:   make(chan struct{}),
	}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		if err := signaler.SendSignal(candidateMessage{Type: signaling.TypeICECandidate, Candidate: &init}); err != nil {
			slog.Debug("failed to send ICE candidate", "error", err)
		}
	})

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		slog.Debug("peer connection state", "state", state.String())
		switch state {
		case pion.PeerConnectionStateFailed, pion.PeerConnectionStateClosed, pion.PeerConnectionStateDisconnected:
			p.fail()
		}
	})

	pc.OnDataChannel(func(dc *pion.DataChannel) {
		if dc.Label() != ChannelLabel {
			slog.Debug("ignoring data channel", "label", dc.Label())
			return
		}
		p.watch(dc)
	})

	return p, nil
}

func (p *Peer) fail() {
	p.failOnce.Do(func() { close(p.failed) })
}

// OnChannel registers fn to run when the file channel is created, before it
// opens, so no message is missed. Call it before Offer or HandleSignal.
func (p *Peer) OnChannel(fn func(*DataChannel)) {
	p.onChannel = fn
}

func (p *Peer) watch(dc *pion.DataChannel) {
	ch := newDataChannel(dc)
	if p.onChannel != nil {
		p.onChannel(ch)
	}
	dc.OnOpen(func() {
		select {
		case p.opened <- ch:
		default:
		}
	})
}

// Offer creates the ordered file channel and sends the offer.
func (p *Peer) Offer() error {
	ordered := true
	dc, err := p.pc.CreateDataChannel(ChannelLabel, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return transfer.NewError("create data channel", err)
	}
	p.watch(dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return transfer.NewError("create offer", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return transfer.NewError("set local description", err)
	}

	return p.signaler.SendSignal(offerMessage{Type: signaling.TypeOffer, Offer: p.pc.LocalDescription()})
}

// HandleSignal applies a relayed offer, answer or candidate. An offer is
// answered immediately. Candidates that arrive before the remote
// description are queued.
func (p *Peer) HandleSignal(raw []byte) error {
	var s signal
	if err := json.Unmarshal(raw, &s); err != nil {
		return transfer.NewError("parse signal", err)
	}

	switch s.Type {
	case signaling.TypeOffer:
		if s.Offer == nil {
			return transfer.WrapError("handle signal", transfer.ErrUnexpectedSignal, "offer without description")
		}
		if err := p.setRemote(*s.Offer); err != nil {
			return err
		}
		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return transfer.NewError("create answer", err)
		}
		if err := p.pc.SetLocalDescription(answer); err != nil {
			return transfer.NewError("set local description", err)
		}
		return p.signaler.SendSignal(answerMessage{Type: signaling.TypeAnswer, Answer: p.pc.LocalDescription()})

	case signaling.TypeAnswer:
		if s.Answer == nil {
			return transfer.WrapError("handle signal", transfer.ErrUnexpectedSignal, "answer without description")
		}
		return p.setRemote(*s.Answer)

	case signaling.TypeICECandidate:
		if s.Candidate == nil {
			return nil
		}
		return p.addCandidate(*s.Candidate)
	}

	return transfer.WrapError("handle signal", transfer.ErrUnexpectedSignal, s.Type)
}

func (p *Peer) setRemote(desc pion.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return transfer.NewError("set remote description", err)
	}

	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			return transfer.NewError("add ICE candidate", err)
		}
	}
	return nil
}

func (p *Peer) addCandidate(c pion.ICECandidateInit) error {
	p.mu.Lock()
	if !p.remoteSet {
		p.pending = append(p.pending, c)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(c); err != nil {
		return transfer.NewError("add ICE candidate", err)
	}
	return nil
}

// WaitChannel blocks until the file channel is open.
func (p *Peer) WaitChannel(ctx context.Context) (*DataChannel, error) {
	select {
	case ch := <-p.opened:
		return ch, nil
	case <-p.failed:
		return nil, transfer.ErrConnectionFailed
	case <-ctx.Done():
		return nil, transfer.WrapError("wait channel", transfer.ErrTimeout, ctx.Err().Error())
	}
}

// Failed is closed when the connection fails or closes.
func (p *Peer) Failed() <-chan struct{} {
	return p.failed
}

// Close tears down the connection.
func (p *Peer) Close() error {
	if err := p.pc.Close(); err != nil {
		return fmt.Errorf("close peer connection: %w", err)
	}
	return nil
}

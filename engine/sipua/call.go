package sipua

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"braces.dev/errtrace"
	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/ghettovoice/softphone/engine"
	"github.com/ghettovoice/softphone/internal/errorutil"
	"github.com/ghettovoice/softphone/tone"
)

// DTMFDuration is the Duration announced in dtmf-relay INFO bodies.
const DTMFDuration = 160 * time.Millisecond

// dialogSession is the part shared by client and server dialog sessions.
type dialogSession interface {
	Context() context.Context
	TransactionRequest(ctx context.Context, req *sip.Request) (sip.ClientTransaction, error)
	Close() error
}

// Call is a SIP call backed by a sipgo dialog session.
type Call struct {
	tp       *Transport
	acc      *Account
	id       string
	remote   string
	incoming bool
	log      *slog.Logger

	// incoming INVITE server transaction
	invite *sip.Request
	tx     sip.ServerTransaction

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	handler  engine.CallHandler
	state    engine.CallState
	answered bool
	muted    bool
	srvSess  *sipgo.DialogServerSession
	sess     dialogSession
}

var _ engine.Call = (*Call)(nil)

func newIncomingCall(tp *Transport, acc *Account, req *sip.Request, tx sip.ServerTransaction) *Call {
	id := string(*req.CallID())
	remote := ""
	if from := req.From(); from != nil {
		remote = from.Address.String()
	}
	ctx, cancel := context.WithCancel(tp.ctx)
	return &Call{
		ctx:      ctx,
		cancel:   cancel,
		tp:       tp,
		acc:      acc,
		id:       id,
		remote:   remote,
		incoming: true,
		log:      acc.log.With(slog.String("call_id", id)),
		invite:   req,
		tx:       tx,
		state:    engine.CallStateIncomingTrying,
	}
}

func newOutgoingCall(tp *Transport, acc *Account, uri string, h engine.CallHandler) (*Call, error) {
	_, dialogs, err := tp.state()
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	if !strings.HasPrefix(uri, "sip:") && !strings.HasPrefix(uri, "sips:") {
		uri = "sip:" + uri
	}
	var recipient sip.Uri
	if err := sip.ParseUri(uri, &recipient); err != nil {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("invalid call URI %q: %v", uri, err))
	}
	if tp.transportType() == engine.TransportTCP {
		if recipient.UriParams == nil {
			recipient.UriParams = sip.NewParams()
		}
		recipient.UriParams.Add("transport", "tcp")
	}

	host, port := tp.media()
	offer, err := BuildOffer(host, port, uint64(time.Now().Unix()))
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(tp.ctx)
	c := &Call{
		tp:      tp,
		acc:     acc,
		id:      id,
		remote:  recipient.String(),
		log:     acc.log.With(slog.String("call_id", id)),
		ctx:     ctx,
		cancel:  cancel,
		handler: h,
		state:   engine.CallStateTrying,
	}
	tp.addCall(c)

	from := &sip.FromHeader{
		Address: sip.Uri{Scheme: "sip", User: acc.params.Username, Host: acc.params.Domain},
		Params:  sip.NewParams(),
	}
	from.Params.Add("tag", sip.GenerateTagN(16))
	callID := sip.CallIDHeader(id)
	ct := sip.ContentTypeHeader("application/sdp")

	sess, err := dialogs.Invite(ctx, recipient, offer, from, &callID, &ct, tp.contact(acc.params.Username))
	if err != nil {
		cancel()
		tp.removeCall(c)
		return nil, errtrace.Wrap(err)
	}

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	c.log.LogAttrs(ctx, slog.LevelInfo, "outgoing call", slog.String("to", c.remote))
	tp.wg.Add(1)
	go c.dial(ctx, sess)
	return c, nil
}

func (c *Call) dial(ctx context.Context, sess *sipgo.DialogClientSession) {
	defer c.tp.wg.Done()

	last := 0
	err := sess.WaitAnswer(ctx, sipgo.AnswerOptions{
		Username: c.acc.params.Username,
		Password: c.acc.params.Password,
		OnResponse: func(res *sip.Response) error {
			last = int(res.StatusCode)
			if res.StatusCode < 200 {
				c.setState(OutgoingCallState(last))
			}
			return nil
		},
	})
	if err != nil {
		st := engine.CallStateError
		switch {
		case ctx.Err() != nil:
			st = engine.CallStateTerminated
		case last >= 300:
			st = OutgoingCallState(last)
		}
		c.log.LogAttrs(ctx, slog.LevelInfo, "outgoing call failed",
			slog.Int("code", last),
			slog.Any("error", err),
		)
		sess.Close()
		c.setState(st)
		return
	}

	if err := sess.Ack(ctx); err != nil {
		c.log.LogAttrs(ctx, slog.LevelWarn, "failed to send ACK", slog.Any("error", err))
	}
	c.setState(engine.CallStateEstablished)

	select {
	case <-sess.Context().Done():
	case <-ctx.Done():
	}
	c.setState(engine.CallStateTerminated)
}

// cancelNotifier is implemented by sipgo server transactions that answer
// CANCEL themselves.
type cancelNotifier interface {
	OnCancel(f func(r *sip.Request))
}

// watchInvite reports a missed call when the INVITE transaction is canceled
// or ends unanswered.
func (c *Call) watchInvite() {
	if tx, ok := c.tx.(cancelNotifier); ok {
		tx.OnCancel(func(*sip.Request) {
			if c.claimUnanswered() {
				c.setState(engine.CallStateIncomingMissed)
			}
		})
	}

	c.tp.wg.Add(1)
	go func() {
		defer c.tp.wg.Done()

		select {
		case <-c.tx.Done():
		case <-c.ctx.Done():
		}
		if c.claimUnanswered() {
			c.setState(engine.CallStateIncomingMissed)
		}
	}()
}

// claimUnanswered marks an unanswered incoming call as answered.
// It reports whether the caller won the claim.
func (c *Call) claimUnanswered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.incoming || c.answered {
		return false
	}
	c.answered = true
	return true
}

func (c *Call) ID() string        { return c.id }
func (c *Call) RemoteURI() string { return c.remote }

func (c *Call) SetHandler(h engine.CallHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// State returns the last reported call state.
func (c *Call) State() engine.CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Answer responds to an incoming INVITE.
func (c *Call) Answer(code engine.AnswerCode) error {
	if !c.incoming {
		return errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidState, "answer of outgoing call"))
	}

	c.mu.Lock()
	if c.answered || c.state.IsTerminal() {
		c.mu.Unlock()
		return errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidState, "call already answered"))
	}
	final := code >= 200
	if final {
		c.answered = true
	}
	c.mu.Unlock()

	if code != engine.AnswerOK {
		if err := respond(c.tx, c.invite, int(code), reasonOf(code)); err != nil {
			return errtrace.Wrap(err)
		}
		c.setState(IncomingCallState(code))
		return nil
	}

	_, dialogs, err := c.tp.state()
	if err != nil {
		return errtrace.Wrap(err)
	}
	host, port := c.tp.media()
	answer, err := BuildAnswer(c.invite.Body(), host, port, uint64(time.Now().Unix()))
	if err != nil {
		respond(c.tx, c.invite, 488, "Not Acceptable Here")
		c.setState(engine.CallStateError)
		return errtrace.Wrap(err)
	}

	sess, err := dialogs.ReadInvite(c.invite, c.tx)
	if err != nil {
		c.setState(engine.CallStateError)
		return errtrace.Wrap(err)
	}
	if err := sess.RespondSDP(answer); err != nil {
		sess.Close()
		c.setState(engine.CallStateError)
		return errtrace.Wrap(err)
	}

	c.mu.Lock()
	c.srvSess, c.sess = sess, sess
	c.mu.Unlock()

	c.tp.wg.Add(1)
	go func() {
		defer c.tp.wg.Done()
		select {
		case <-sess.Context().Done():
		case <-c.ctx.Done():
		}
		c.setState(engine.CallStateTerminated)
	}()
	return nil
}

// Hangup declines, cancels or ends the call depending on its progress.
func (c *Call) Hangup() error {
	c.mu.Lock()
	st, answered, sess := c.state, c.answered, c.sess
	c.answered = true
	c.mu.Unlock()

	if st.IsTerminal() {
		return nil
	}

	switch {
	case c.incoming && !answered:
		err := respond(c.tx, c.invite, 603, "Decline")
		c.setState(engine.CallStateIncomingRejected)
		return errtrace.Wrap(err)
	case !c.incoming && st != engine.CallStateEstablished:
		// WaitAnswer sends CANCEL when its context ends
		c.cancel()
		return nil
	}

	if sess == nil {
		c.setState(engine.CallStateTerminated)
		return nil
	}

	err := c.send(sess, sip.NewRequest(sip.BYE, c.remoteTarget(sess)), true)
	c.setState(engine.CallStateTerminated)
	return errtrace.Wrap(err)
}

// SetMute records the microphone mute flag.
func (c *Call) SetMute(mute bool) error {
	c.mu.Lock()
	c.muted = mute
	c.mu.Unlock()

	c.log.LogAttrs(context.Background(), slog.LevelDebug, "call mute changed", slog.Bool("muted", mute))
	return nil
}

// Muted reports the mute flag.
func (c *Call) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// DialDTMF sends each digit as an application/dtmf-relay INFO request.
// It returns once the requests are sent.
func (c *Call) DialDTMF(digits string) error {
	for i := range len(digits) {
		if _, ok := tone.DigitFreqs[digits[i]]; !ok {
			return errtrace.Wrap(errorutil.NewInvalidArgumentError("invalid DTMF digit %q", digits[i]))
		}
	}

	c.mu.Lock()
	st, sess := c.state, c.sess
	c.mu.Unlock()
	if st != engine.CallStateEstablished || sess == nil {
		return errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidState, "call is not established"))
	}

	for i := range len(digits) {
		req := sip.NewRequest(sip.INFO, c.remoteTarget(sess))
		ct := sip.ContentTypeHeader("application/dtmf-relay")
		req.AppendHeader(&ct)
		req.SetBody(DTMFRelayBody(digits[i], DTMFDuration))
		if err := c.send(sess, req, false); err != nil {
			return errtrace.Wrap(err)
		}
	}
	return nil
}

// send starts an in-dialog request and waits for its final response in the background.
// With closeSess the session is closed once the transaction ends.
func (c *Call) send(sess dialogSession, req *sip.Request, closeSess bool) error {
	if c.tp.transportType() == engine.TransportTCP {
		req.SetTransport("TCP")
	}

	ctx, cancel := context.WithTimeout(c.tp.ctx, c.tp.opts.reqTimeout())
	tx, err := sess.TransactionRequest(ctx, req)
	if err != nil {
		cancel()
		if closeSess {
			sess.Close()
		}
		return errtrace.Wrap(err)
	}

	c.tp.wg.Add(1)
	go func() {
		defer c.tp.wg.Done()
		defer cancel()
		if closeSess {
			defer sess.Close()
		}

		res, err := waitFinal(ctx, tx)
		switch {
		case err != nil:
			c.log.LogAttrs(ctx, slog.LevelDebug, "in-dialog request failed",
				slog.String("method", req.Method.String()),
				slog.Any("error", err),
			)
		case res.StatusCode >= 300:
			c.log.LogAttrs(ctx, slog.LevelWarn, "in-dialog request rejected",
				slog.String("method", req.Method.String()),
				slog.Int("code", int(res.StatusCode)),
				slog.String("reason", res.Reason),
			)
		}
	}()
	return nil
}

// remoteTarget is the Contact of the remote party or its address of record.
func (c *Call) remoteTarget(sess dialogSession) sip.Uri {
	if cs, ok := sess.(*sipgo.DialogClientSession); ok && cs.InviteResponse != nil {
		if ct := cs.InviteResponse.Contact(); ct != nil {
			return *ct.Address.Clone()
		}
	}
	if c.incoming {
		if ct := c.invite.Contact(); ct != nil {
			return *ct.Address.Clone()
		}
	}
	var u sip.Uri
	sip.ParseUri(c.remote, &u)
	return u
}

// DTMFRelayBody renders an application/dtmf-relay body.
func DTMFRelayBody(digit byte, dur time.Duration) []byte {
	return fmt.Appendf(nil, "Signal=%c\r\nDuration=%d\r\n", digit, dur.Milliseconds())
}

func (c *Call) onAck(req *sip.Request, tx sip.ServerTransaction) {
	c.mu.Lock()
	sess := c.srvSess
	c.mu.Unlock()
	if sess == nil {
		return
	}
	if err := sess.ReadAck(req, tx); err != nil {
		c.log.LogAttrs(context.Background(), slog.LevelDebug, "failed to read ACK", slog.Any("error", err))
	}
	c.setState(engine.CallStateEstablished)
}

func (c *Call) onBye(req *sip.Request, tx sip.ServerTransaction) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()

	var err error
	switch s := sess.(type) {
	case *sipgo.DialogServerSession:
		err = s.ReadBye(req, tx)
	case *sipgo.DialogClientSession:
		err = s.ReadBye(req, tx)
	default:
		err = respond(tx, req, 200, "OK")
	}
	if err != nil {
		c.log.LogAttrs(context.Background(), slog.LevelDebug, "failed to read BYE", slog.Any("error", err))
	}
	c.setState(engine.CallStateTerminated)
}

func (c *Call) onCancel() {
	if !c.claimUnanswered() {
		return
	}
	respond(c.tx, c.invite, 487, "Request Terminated")
	c.setState(engine.CallStateIncomingMissed)
}

func (c *Call) onReinvite(req *sip.Request, tx sip.ServerTransaction) {
	host, port := c.tp.media()
	answer, err := BuildAnswer(req.Body(), host, port, uint64(time.Now().Unix()))
	if err != nil {
		respond(tx, req, 488, "Not Acceptable Here")
		return
	}
	res := sip.NewResponseFromRequest(req, 200, "OK", answer)
	ct := sip.ContentTypeHeader("application/sdp")
	res.AppendHeader(&ct)
	res.AppendHeader(c.tp.contact(c.acc.params.Username))
	if err := tx.Respond(res); err != nil {
		c.log.LogAttrs(context.Background(), slog.LevelDebug, "failed to answer re-INVITE", slog.Any("error", err))
	}
}

// setState reports st unless the call already reached a terminal state or st repeats.
func (c *Call) setState(st engine.CallState) {
	c.mu.Lock()
	if c.state.IsTerminal() && c.state != engine.CallStateUnknown || c.state == st {
		c.mu.Unlock()
		return
	}
	c.state = st
	h := c.handler
	c.mu.Unlock()

	if st.IsTerminal() {
		c.tp.removeCall(c)
		c.cancel()
	}

	c.log.LogAttrs(context.Background(), slog.LevelDebug, "call state changed", slog.Any("state", st))
	if h != nil {
		h.OnCallStateChanged(c, st)
	}
}

func reasonOf(code engine.AnswerCode) string {
	switch code {
	case engine.AnswerRinging:
		return "Ringing"
	case engine.AnswerOK:
		return "OK"
	case engine.AnswerBusyHere:
		return "Busy Here"
	default:
		return "Unknown"
	}
}

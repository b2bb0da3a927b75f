// Package pwm exposes configured PWM generators as bus capabilities:
// retained info/status/state per generator plus apply/read control
// verbs. All hardware access happens on the Run goroutine.
package pwm

import (
	"context"

	"pwmgen-go/bus"
	"pwmgen-go/drivers/imxpwm"
	"pwmgen-go/errcode"
	"pwmgen-go/types"
	"pwmgen-go/x/strx"
	"pwmgen-go/x/timex"
)

const defaultDomain = "io"

type capKey struct {
	domain string
	name   string
}

type generator struct {
	spec types.Generator
	ctrl *imxpwm.Controller
	addr types.CapabilityAddress
}

type Service struct {
	conn *bus.Connection
	hw   Hardware

	gens map[capKey]*generator

	// Degraded code raised by the driver during the control operation
	// in flight. Written by the warn hooks, which only ever fire on the
	// Run goroutine.
	opWarn errcode.Code
}

func NewService(conn *bus.Connection, hw Hardware) *Service {
	return &Service{conn: conn, hw: hw, gens: map[capKey]*generator{}}
}

func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig())
	ctrlSub := s.conn.Subscribe(ctrlWildcard())
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)

	// Retained idle marker: once visible, the subscriptions above are
	// live and control traffic will not be dropped on the floor.
	s.pubServiceState("idle", "")

	ready := false
	for {
		select {
		case <-ctx.Done():
			s.pubServiceState("stopped", "context_cancelled")
			return
		case msg := <-cfgSub.Channel():
			cfg, code := As[types.ServiceConfig](msg.Payload)
			if code != "" {
				s.replyErr(msg, code)
				continue
			}
			// applyConfig is additive and idempotent for known
			// generators.
			s.applyConfig(cfg)
			if !ready {
				ready = true
				s.pubServiceState("ready", "")
			}
		case msg := <-ctrlSub.Channel():
			if !ready {
				s.replyErr(msg, errcode.Busy)
				continue
			}
			s.handleControl(msg)
		}
	}
}

func (s *Service) applyConfig(cfg types.ServiceConfig) {
	for i := range cfg.Generators {
		g := cfg.Generators[i]
		domain := strx.Coalesce(g.Domain, defaultDomain)
		key := capKey{domain: domain, name: g.ID}
		if _, exists := s.gens[key]; exists {
			continue
		}

		win, err := s.hw.Window(g)
		if err != nil {
			println("[pwm] window failed for:", g.ID, "err:", err.Error())
			continue
		}
		clks, err := s.hw.Clocks(g)
		if err != nil {
			println("[pwm] clocks failed for:", g.ID, "err:", err.Error())
			continue
		}

		addr := types.CapabilityAddress{Domain: domain, Kind: types.KindPWM, Name: g.ID}
		ctrl, err := imxpwm.New(imxpwm.Config{
			Window: win,
			Clocks: clks,
			Tuning: driverTuning(g.Tuning),
			Warn:   s.warnHook(addr),
		})
		if err != nil {
			println("[pwm] attach failed for:", g.ID, "err:", err.Error())
			continue
		}
		s.gens[key] = &generator{spec: g, ctrl: ctrl, addr: addr}

		s.conn.Publish(s.conn.NewMessage(
			capInfo(domain, g.ID),
			types.Info{
				SchemaVersion: 1,
				Driver:        "imxpwm",
				Detail:        types.PWMInfo{Base: g.Base, ClockHz: g.ClockHz},
			},
			true,
		))
		// Initial status (retained)
		s.conn.Publish(s.conn.NewMessage(
			capStatus(domain, g.ID),
			types.CapabilityStatus{Link: types.LinkDown, TS: timex.NowNs()},
			true,
		))
	}
}

// warnHook publishes a retained status whenever the driver rides
// through a fault, and flags the operation in flight so the success
// path does not overwrite it with link:up.
func (s *Service) warnHook(addr types.CapabilityAddress) func(op string, code errcode.Code) {
	return func(op string, code errcode.Code) {
		s.opWarn = code
		s.conn.Publish(s.conn.NewMessage(
			capStatus(addr.Domain, addr.Name),
			types.CapabilityStatus{Link: linkFor(code), TS: timex.NowNs(), Error: string(code)},
			true,
		))
	}
}

// linkFor classifies a fault code: warn-and-continue conditions leave
// the capability degraded, hard failures take it down.
func linkFor(code errcode.Code) types.Link {
	if errcode.Degraded(code) {
		return types.LinkDegraded
	}
	return types.LinkDown
}

func (s *Service) handleControl(msg *bus.Message) {
	// pwm/cap/<domain>/pwm/<name>/control/<verb>
	if len(msg.Topic) != 7 {
		s.replyErr(msg, errcode.InvalidTopic)
		return
	}
	domain, name, verb := msg.Topic[2], msg.Topic[4], msg.Topic[6]
	gen, ok := s.gens[capKey{domain: domain, name: name}]
	if !ok {
		s.replyErr(msg, errcode.UnknownPWM)
		return
	}

	switch verb {
	case "apply":
		s.handleApply(gen, msg)
	case "read":
		s.handleRead(gen, msg)
	default:
		s.replyErr(msg, errcode.Unsupported)
	}
}

func (s *Service) handleApply(g *generator, msg *bus.Message) {
	cfg, code := asPWMConfig(msg.Payload)
	if code != "" {
		s.replyErr(msg, code)
		return
	}
	if cfg.DutyNs > cfg.PeriodNs {
		s.replyErr(msg, errcode.InvalidParams)
		return
	}

	s.opWarn = ""
	if err := g.ctrl.Apply(cfg); err != nil {
		s.pubStatus(g, linkFor(errcode.Of(err)), errcode.Of(err))
		s.replyErr(msg, errcode.Of(err))
		return
	}
	if _, err := s.publishState(g); err != nil {
		s.pubStatus(g, linkFor(errcode.Of(err)), errcode.Of(err))
		s.replyErr(msg, errcode.Of(err))
		return
	}
	if s.opWarn == "" {
		s.pubStatus(g, types.LinkUp, "")
	}
	s.replyOK(msg)
}

func (s *Service) handleRead(g *generator, msg *bus.Message) {
	s.opWarn = ""
	st, err := s.publishState(g)
	if err != nil {
		s.pubStatus(g, linkFor(errcode.Of(err)), errcode.Of(err))
		s.replyErr(msg, errcode.Of(err))
		return
	}
	if s.opWarn == "" {
		s.pubStatus(g, types.LinkUp, "")
	}
	if msg.CanReply() {
		s.conn.Reply(msg, st, false)
	}
}

// publishState reads the generator back and publishes the observed
// state, retained.
func (s *Service) publishState(g *generator) (types.PWMState, error) {
	st, err := g.ctrl.State()
	if err != nil {
		return types.PWMState{}, err
	}
	s.conn.Publish(s.conn.NewMessage(capState(g.addr.Domain, g.addr.Name), st, true))
	return st, nil
}

func (s *Service) pubStatus(g *generator, link types.Link, code errcode.Code) {
	st := types.CapabilityStatus{Link: link, TS: timex.NowNs()}
	if code != "" && code != errcode.OK {
		st.Error = string(code)
	}
	s.conn.Publish(s.conn.NewMessage(capStatus(g.addr.Domain, g.addr.Name), st, true))
}

func (s *Service) pubServiceState(level, status string) {
	s.conn.Publish(s.conn.NewMessage(
		topicState(),
		types.ServiceState{Level: level, Status: status, TS: timex.NowNs()},
		true,
	))
}

func (s *Service) replyOK(m *bus.Message) {
	if m.CanReply() {
		s.conn.Reply(m, types.OKReply{OK: true}, false)
	}
}

func (s *Service) replyErr(m *bus.Message, code errcode.Code) {
	if !m.CanReply() {
		return
	}
	if code == "" {
		code = errcode.Error
	}
	s.conn.Reply(m, types.ErrorReply{OK: false, Error: string(code)}, false)
}
